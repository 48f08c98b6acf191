package couchsite

import (
	"context"
	"io"
)

// Document is a stored record.  Fields holds the document body
// without the reserved _id, _rev and _attachments members; store
// implementations add and strip those.
type Document struct {
	ID     string
	Rev    string
	Fields map[string]interface{}
}

func NewDocument(id string, fields map[string]interface{}) *Document {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return &Document{ID: id, Fields: fields}
}

// Attachment is a blob on its way to the store.  Size may be zero
// when unknown.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Client is a connection to a document store.
type Client interface {
	// GetOrCreateDatabase returns the named database, creating it
	// first if it does not exist.
	GetOrCreateDatabase(ctx context.Context, name string) (Database, error)
	Close() error
}

// Database holds the document operations couchsite needs.  Write
// operations update doc.Rev in place so the same Document can be
// passed to the next call.
type Database interface {
	// Get returns nil and no error when id does not exist.
	Get(ctx context.Context, id string) (*Document, error)
	// Delete returns a ConflictError if doc.Rev is stale.
	Delete(ctx context.Context, doc *Document) error
	Save(ctx context.Context, doc *Document) error
	PutAttachment(ctx context.Context, doc *Document, att *Attachment) error
}
