package couchsite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
	. "github.com/stevegt/goadapt"
)

// Failure is one file a sync could not attach.
type Failure struct {
	Path    string `json:"path"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// SyncReport describes one UploadDirectory call.
type SyncReport struct {
	DocID    string    `json:"doc"`
	Dir      string    `json:"dir"`
	Attached []string  `json:"attached"`
	Failed   []Failure `json:"failed,omitempty"`
	Bytes    int64     `json:"bytes"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

func (r *SyncReport) fail(path string, err error) {
	r.Failed = append(r.Failed, Failure{Path: path, Message: err.Error(), Err: err})
}

// Err returns a PartialSyncError if any file failed, else nil.
func (r *SyncReport) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	return &PartialSyncError{DocID: r.DocID, Failed: r.Failed}
}

// Summary is a one-line description for humans.
func (r *SyncReport) Summary() string {
	s := fmt.Sprintf("%s: attached %d file(s), %s", r.DocID, len(r.Attached), humanize.Bytes(uint64(r.Bytes)))
	if len(r.Failed) > 0 {
		s += fmt.Sprintf(", %d failed", len(r.Failed))
	}
	return s
}

// PublishedDesign is one design document written by UploadDesigns.
type PublishedDesign struct {
	ID   string `json:"id"`
	File string `json:"file"`
}

// PublishReport describes one UploadDesigns call.
type PublishReport struct {
	Dir       string            `json:"dir"`
	Files     []string          `json:"files"`
	Published []PublishedDesign `json:"published"`
}

// IDs returns the published design document IDs in publish order.
func (r *PublishReport) IDs() (ids []string) {
	if r == nil {
		return
	}
	for _, p := range r.Published {
		ids = append(ids, p.ID)
	}
	return
}

// RunReport is everything one run of couchsite did.
type RunReport struct {
	Database string         `json:"database"`
	Designs  *PublishReport `json:"designs,omitempty"`
	Site     *SyncReport    `json:"site,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
}

// WriteReport stores report as indented JSON at path.  Readers see
// either the previous report or the complete new one.
func WriteReport(path string, report *RunReport) (err error) {
	defer Return(&err)
	buf, err := json.MarshalIndent(report, "", "  ")
	Ck(err)
	buf = append(buf, '\n')
	err = renameio.WriteFile(path, buf, 0644)
	Ck(err)
	return
}
