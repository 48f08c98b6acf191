package couchsite

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyID is returned when an upload is asked to target a
// document without an ID.
var ErrEmptyID = errors.New("empty document ID")

// ErrNotFound is wrapped by a StoreError when an operation needs a
// document that does not exist.
var ErrNotFound = errors.New("document not found")

// FileError is a local filesystem failure.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// StoreError is a failed store operation on document ID.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConflictError is returned when a write or delete names a revision
// that is no longer current.
type ConflictError struct {
	ID  string
	Rev string
	Err error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("conflict on %s", e.ID)
	if e.Rev != "" {
		msg += fmt.Sprintf(" rev %s", e.Rev)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return e.Err }

// DesignError is an unreadable or invalid design file.
type DesignError struct {
	File string
	Err  error
}

func (e *DesignError) Error() string {
	return fmt.Sprintf("design file %s: %v", e.File, e.Err)
}

func (e *DesignError) Unwrap() error { return e.Err }

// PartialSyncError lists the files a sync could not attach.  The
// document itself was replaced.
type PartialSyncError struct {
	DocID  string
	Failed []Failure
}

func (e *PartialSyncError) Error() string {
	var paths []string
	for _, f := range e.Failed {
		paths = append(paths, f.Path)
	}
	return fmt.Sprintf("%s: %d file(s) not attached: %s", e.DocID, len(e.Failed), strings.Join(paths, ", "))
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsPartial reports whether err is or wraps a PartialSyncError.
func IsPartial(err error) bool {
	var partial *PartialSyncError
	return errors.As(err, &partial)
}
