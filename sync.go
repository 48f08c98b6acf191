package couchsite

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// Uploader copies a site directory into one database.
type Uploader struct {
	Db Database
}

// replace deletes document id if it exists and saves a fresh one
// holding fields.  There is no merge and no conflict handling; a
// concurrent writer makes this fail with a ConflictError.
func (u *Uploader) replace(ctx context.Context, id string, fields map[string]interface{}) (doc *Document, err error) {
	old, err := u.Db.Get(ctx, id)
	if err != nil {
		return
	}
	if old != nil {
		log.Debugf("deleting %s rev %s", id, old.Rev)
		err = u.Db.Delete(ctx, old)
		if err != nil {
			return
		}
	}
	doc = NewDocument(id, fields)
	err = u.Db.Save(ctx, doc)
	if err != nil {
		return nil, err
	}
	return
}

// UploadDirectory replaces document docID with a new one carrying
// every non-hidden file under dir as an attachment.  Files that cannot
// be read or attached are recorded in the report and skipped; see
// SyncReport.Err.  The returned error is reserved for failures that
// abort the whole document: a bad dir, or a failed get, delete or
// save of the document itself.
//
// The operation is not atomic.  If the process dies mid-walk the
// document holds a partial attachment set until the next run.
func (u *Uploader) UploadDirectory(ctx context.Context, dir, docID string) (report *SyncReport, err error) {
	if docID == "" {
		return nil, ErrEmptyID
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &FileError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &FileError{Path: dir, Err: syscall.ENOTDIR}
	}
	// walk the target of a symlinked root, not the link
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, &FileError{Path: dir, Err: err}
	}

	log.Infof("uploading %s to %s", dir, docID)
	report = &SyncReport{DocID: docID, Dir: dir, Attached: []string{}, Started: time.Now()}
	defer func() {
		report.Finished = time.Now()
	}()

	doc, err := u.replace(ctx, docID, map[string]interface{}{"fromDirectory": dir})
	if err != nil {
		return
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable directory: report it and carry on with the
			// rest of the tree
			log.Warnf("couldn't read %s: %v", path, err)
			report.fail(path, &FileError{Path: path, Err: err})
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if IsHidden(d.Name()) {
			log.Debugf("skipping hidden file %s", path)
			return nil
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			// links to directories are not followed; dangling links
			// fall through and fail in attach
			target, err := os.Stat(path)
			if err == nil && target.IsDir() {
				log.Debugf("not following directory link %s", path)
				return nil
			}
		case !d.Type().IsRegular():
			log.Debugf("skipping special file %s", path)
			return nil
		}
		u.attach(ctx, doc, root, path, report)
		return nil
	})
	if err != nil {
		return report, &FileError{Path: dir, Err: err}
	}
	log.Info(report.Summary())
	return
}

// attach uploads one file.  Failures are recorded in report, never
// returned.
func (u *Uploader) attach(ctx context.Context, doc *Document, root, path string, report *SyncReport) {
	name, err := AttachmentName(root, path)
	if err != nil {
		u.failed(report, path, &FileError{Path: path, Err: err})
		return
	}
	fh, err := os.Open(path)
	if err != nil {
		u.failed(report, path, &FileError{Path: path, Err: err})
		return
	}
	defer fh.Close()
	var size int64
	if info, err := fh.Stat(); err == nil {
		size = info.Size()
	}
	counter := &countingReader{rd: fh}
	att := &Attachment{
		Name:        name,
		ContentType: ContentType(name),
		Size:        size,
		Content:     counter,
	}
	err = u.Db.PutAttachment(ctx, doc, att)
	if err != nil {
		u.failed(report, path, err)
		return
	}
	report.Attached = append(report.Attached, name)
	report.Bytes += counter.n
	log.Debugf("attached %s (%s)", name, humanize.Bytes(uint64(counter.n)))
}

func (u *Uploader) failed(report *SyncReport, path string, err error) {
	log.Warnf("couldn't attach file %s: %v", path, err)
	report.fail(path, err)
}

type countingReader struct {
	rd io.Reader
	n  int64
}

func (c *countingReader) Read(p []byte) (n int, err error) {
	n, err = c.rd.Read(p)
	c.n += int64(n)
	return
}
