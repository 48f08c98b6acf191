package couchsite

import (
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// AttachmentName returns the attachment name of file: its path
// relative to root, slash separated on every platform.  Names are
// unique within one tree because relative paths are.
func AttachmentName(root, file string) (name string, err error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not below %s", file, root)
	}
	return filepath.ToSlash(rel), nil
}

// IsHidden reports whether the base name of p starts with a dot.
// Only the last element counts; "dir/.keep" is hidden, ".git/config"
// is not.
func IsHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}

// ContentType guesses the MIME type of an attachment from its
// extension.
func ContentType(name string) string {
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		return defaultContentType
	}
	return ct
}
