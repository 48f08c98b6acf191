package couchsite

import (
	"context"
	"fmt"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemClient is an in-memory store.  It enforces revisions the way
// CouchDB does, which makes it usable for dry runs and tests.
type MemClient struct {
	mu  sync.Mutex
	dbs map[string]*MemDatabase
}

func NewMemClient() *MemClient {
	return &MemClient{dbs: make(map[string]*MemDatabase)}
}

func (c *MemClient) GetOrCreateDatabase(ctx context.Context, name string) (db Database, err error) {
	return c.DB(name), nil
}

// DB returns the named database, creating it if needed.
func (c *MemClient) DB(name string) *MemDatabase {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.dbs[name]
	if !ok {
		db = &MemDatabase{Name: name, docs: make(map[string]*memDoc)}
		c.dbs[name] = db
	}
	return db
}

func (c *MemClient) Close() error { return nil }

type memAttachment struct {
	contentType string
	data        []byte
}

type memDoc struct {
	gen         int
	rev         string
	fields      map[string]interface{}
	attachments map[string]memAttachment
}

// MemDatabase is one database of a MemClient.
type MemDatabase struct {
	Name string
	mu   sync.Mutex
	seq  int
	docs map[string]*memDoc
}

func (db *MemDatabase) nextRev(gen int) string {
	db.seq++
	return fmt.Sprintf("%d-%016x", gen, db.seq)
}

func (db *MemDatabase) Get(ctx context.Context, id string) (doc *Document, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	md, ok := db.docs[id]
	if !ok {
		return nil, nil
	}
	fields := make(map[string]interface{}, len(md.fields))
	for k, v := range md.fields {
		fields[k] = v
	}
	return &Document{ID: id, Rev: md.rev, Fields: fields}, nil
}

func (db *MemDatabase) Delete(ctx context.Context, doc *Document) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	md, ok := db.docs[doc.ID]
	if !ok {
		return &StoreError{Op: "delete", ID: doc.ID, Err: ErrNotFound}
	}
	if md.rev != doc.Rev {
		return &ConflictError{ID: doc.ID, Rev: doc.Rev}
	}
	delete(db.docs, doc.ID)
	doc.Rev = ""
	return
}

// Save creates or replaces a document.  Replacing drops the old
// attachments, as a CouchDB PUT without _attachments does.
func (db *MemDatabase) Save(ctx context.Context, doc *Document) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if doc.ID == "" {
		return &StoreError{Op: "save", Err: ErrEmptyID}
	}
	md, ok := db.docs[doc.ID]
	switch {
	case !ok && doc.Rev != "":
		return &ConflictError{ID: doc.ID, Rev: doc.Rev}
	case ok && md.rev != doc.Rev:
		return &ConflictError{ID: doc.ID, Rev: doc.Rev}
	case !ok:
		md = &memDoc{}
		db.docs[doc.ID] = md
	}
	md.gen++
	md.rev = db.nextRev(md.gen)
	md.fields = make(map[string]interface{}, len(doc.Fields))
	for k, v := range doc.Fields {
		md.fields[k] = v
	}
	md.attachments = make(map[string]memAttachment)
	doc.Rev = md.rev
	return
}

func (db *MemDatabase) PutAttachment(ctx context.Context, doc *Document, att *Attachment) (err error) {
	// read before locking; Content may be slow
	data, err := ioutil.ReadAll(att.Content)
	if err != nil {
		return &StoreError{Op: "attach " + att.Name, ID: doc.ID, Err: err}
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	md, ok := db.docs[doc.ID]
	if !ok {
		return &StoreError{Op: "attach " + att.Name, ID: doc.ID, Err: ErrNotFound}
	}
	if md.rev != doc.Rev {
		return &ConflictError{ID: doc.ID, Rev: doc.Rev}
	}
	md.attachments[att.Name] = memAttachment{contentType: att.ContentType, data: data}
	md.gen++
	md.rev = db.nextRev(md.gen)
	doc.Rev = md.rev
	return
}

// IDs returns the IDs of all documents, sorted.
func (db *MemDatabase) IDs() (ids []string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id := range db.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return
}

// AttachmentNames returns the attachment names of document id,
// sorted.
func (db *MemDatabase) AttachmentNames(id string) (names []string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	md, ok := db.docs[id]
	if !ok {
		return
	}
	for name := range md.attachments {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// Attachment returns the content and content type of one attachment.
func (db *MemDatabase) Attachment(id, name string) (data []byte, contentType string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	md, ok := db.docs[id]
	if !ok {
		return nil, "", &StoreError{Op: "get attachment " + name, ID: id, Err: ErrNotFound}
	}
	att, ok := md.attachments[name]
	if !ok {
		return nil, "", &StoreError{Op: "get attachment " + name, ID: id, Err: errors.Errorf("no attachment %q", name)}
	}
	return att.data, att.contentType, nil
}
