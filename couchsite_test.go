package couchsite

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/stevegt/goadapt"
)

const testDirPrefix = "couchsite"

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

// tmpdir returns a scratch directory.  With DEBUG=1 it is left behind
// for inspection.
func tmpdir(t *testing.T) (dir string) {
	var err error
	if os.Getenv("DEBUG") == "1" {
		dir, err = ioutil.TempDir("", testDirPrefix)
		Ck(err)
		fmt.Println(dir)
		// no cleanup
	} else {
		dir = t.TempDir()
		// automatically cleaned up
	}
	return
}

// mkfiles creates files below dir; keys are slash separated relative
// paths.
func mkfiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		err := os.MkdirAll(filepath.Dir(path), 0755)
		tassert(t, err == nil, "%v", err)
		err = ioutil.WriteFile(path, []byte(content), 0644)
		tassert(t, err == nil, "%v", err)
	}
}

// setup returns an empty in-memory database and an Uploader bound to
// it.
func setup(t *testing.T) (db *MemDatabase, u *Uploader) {
	client := NewMemClient()
	generic, err := client.GetOrCreateDatabase(context.Background(), "test")
	tassert(t, err == nil, "%v", err)
	db = generic.(*MemDatabase)
	u = &Uploader{Db: db}
	return
}
