// Package couch implements the couchsite store interfaces on top of
// kivik.  http:// and https:// URLs reach a CouchDB server; file://
// URLs and absolute or ./ paths use kivik's filesystem driver, which
// keeps one directory per database.
package couch

import (
	"context"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // CouchDB driver
	_ "github.com/go-kivik/kivik/v4/x/fsdb"  // filesystem driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	cs "github.com/t7a/couchsite"
)

// Client is a kivik connection.
type Client struct {
	URL    string
	Driver string
	kc     *kivik.Client
}

// driverFor picks the kivik driver and DSN for url.  Without a scheme
// only absolute or dot-relative paths are accepted, so a mistyped
// server address like "localhost:5984" is an error rather than a new
// local directory.
func driverFor(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return "couch", url, nil
	case strings.HasPrefix(url, "file://"):
		return "fs", strings.TrimPrefix(url, "file://"), nil
	case strings.Contains(url, "://"):
		return "", "", errors.Errorf("unsupported URL scheme in %s", url)
	case filepath.IsAbs(url), url == ".", url == "..",
		strings.HasPrefix(url, "./"), strings.HasPrefix(url, "../"):
		log.Infof("%s has no scheme, using it as a local directory", url)
		return "fs", url, nil
	}
	return "", "", errors.Errorf("%s is neither a URL nor a path; use http://, https:// or file://", url)
}

// Open connects to url.  No request is made until the first database
// call.
func Open(ctx context.Context, url string) (c *Client, err error) {
	driver, dsn, err := driverFor(url)
	if err != nil {
		return nil, err
	}
	kc, err := kivik.New(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", url)
	}
	log.Debugf("opened %s with %s driver", url, driver)
	return &Client{URL: url, Driver: driver, kc: kc}, nil
}

func (c *Client) GetOrCreateDatabase(ctx context.Context, name string) (db cs.Database, err error) {
	exists, err := c.kc.DBExists(ctx, name)
	if err != nil {
		return nil, &cs.StoreError{Op: "check database", ID: name, Err: err}
	}
	if !exists {
		log.Infof("creating database %s", name)
		err = c.kc.CreateDB(ctx, name)
		// someone else may have created it in between
		if err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
			return nil, &cs.StoreError{Op: "create database", ID: name, Err: err}
		}
	}
	kdb := c.kc.DB(name)
	err = kdb.Err()
	if err != nil {
		return nil, &cs.StoreError{Op: "open database", ID: name, Err: err}
	}
	return &Database{Name: name, db: kdb}, nil
}

func (c *Client) Close() error {
	return c.kc.Close()
}

// Database is one kivik database.
type Database struct {
	Name string
	db   *kivik.DB
}

// storeError converts a kivik error into the couchsite error types.
func storeError(op, id, rev string, err error) error {
	if kivik.HTTPStatus(err) == http.StatusConflict {
		return &cs.ConflictError{ID: id, Rev: rev, Err: err}
	}
	return &cs.StoreError{Op: op, ID: id, Err: err}
}

func (d *Database) Get(ctx context.Context, id string) (doc *cs.Document, err error) {
	var body map[string]interface{}
	err = d.db.Get(ctx, id).ScanDoc(&body)
	if kivik.HTTPStatus(err) == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get", id, "", err)
	}
	rev, _ := body["_rev"].(string)
	delete(body, "_id")
	delete(body, "_rev")
	delete(body, "_attachments")
	return &cs.Document{ID: id, Rev: rev, Fields: body}, nil
}

func (d *Database) Delete(ctx context.Context, doc *cs.Document) (err error) {
	_, err = d.db.Delete(ctx, doc.ID, doc.Rev)
	if err != nil {
		return storeError("delete", doc.ID, doc.Rev, err)
	}
	doc.Rev = ""
	return
}

func (d *Database) Save(ctx context.Context, doc *cs.Document) (err error) {
	body := make(map[string]interface{}, len(doc.Fields)+2)
	for k, v := range doc.Fields {
		body[k] = v
	}
	body["_id"] = doc.ID
	if doc.Rev != "" {
		body["_rev"] = doc.Rev
	} else {
		delete(body, "_rev")
	}
	rev, err := d.db.Put(ctx, doc.ID, body)
	if err != nil {
		return storeError("save", doc.ID, doc.Rev, err)
	}
	doc.Rev = rev
	return
}

func (d *Database) PutAttachment(ctx context.Context, doc *cs.Document, att *cs.Attachment) (err error) {
	katt := &kivik.Attachment{
		Filename:    att.Name,
		ContentType: att.ContentType,
		Size:        att.Size,
		Content:     ioutil.NopCloser(att.Content),
	}
	rev, err := d.db.PutAttachment(ctx, doc.ID, katt, kivik.Rev(doc.Rev))
	if err != nil {
		return storeError("attach "+att.Name, doc.ID, doc.Rev, err)
	}
	doc.Rev = rev
	return
}

var (
	_ cs.Client   = (*Client)(nil)
	_ cs.Database = (*Database)(nil)
)
