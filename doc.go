/*

Couchsite publishes a site directory into a CouchDB database.

A site directory holds two subdirectories:

	design/   design files, one or more design documents each
	site/     arbitrary files, uploaded as attachments of one document

Vocabulary:

- store: the document database, reached through the Client and
	Database interfaces; see the couch package for the CouchDB
	implementation and MemClient for the in-memory one
- document: a record with an ID, a revision token (rev) and a body
- rev: revision token issued by the store on every write; a write or
	delete carrying a stale rev fails with a ConflictError
- attachment: named blob stored alongside a document
- attachment name: a file's path relative to the synced directory,
	always slash separated, e.g. "css/site.css"
- site document: the document holding the site attachments, ".site"
	unless configured otherwise
- design file: YAML or JSON file in design/ mapping design names to
	design document bodies; parsed, never executed
- design document: document with ID "_design/<name>"

Every upload replaces: the target document is deleted and recreated
before anything is attached to it, so stale attachments and stale
design fields never survive a run.

*/

package couchsite
