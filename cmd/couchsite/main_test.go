package main

import (
	"encoding/json"
	"flag"
	"io/fs"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmdtest"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
	cs "github.com/t7a/couchsite"
)

var update = flag.Bool("update", false, "update test files with results")

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

// copySite copies testdata/mysite to dst.
func copySite(srcdir, dst string) error {
	src := filepath.Join(srcdir, "testdata", "mysite")
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return fileutils.CopyFile(target, path)
	})
}

func TestCLI(t *testing.T) {
	ts, err := cmdtest.Read("testdata")
	if err != nil {
		t.Fatal(err)
	}
	ts.KeepRootDirs = os.Getenv("DEBUG") == "1"
	srcdir, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	ts.Setup = func(dir string) (err error) {
		return copySite(srcdir, filepath.Join(dir, "mysite"))
	}
	ts.Commands["couchsite"] = cmdtest.InProcessProgram("couchsite", run)
	ts.Run(t, *update)
}

// runWith calls run with args as the command line.
func runWith(args ...string) int {
	orig := os.Args
	defer func() { os.Args = orig }()
	os.Args = append([]string{"couchsite"}, args...)
	return run()
}

func TestRunReportAndLog(t *testing.T) {
	srcdir, err := os.Getwd()
	tassert(t, err == nil, "%v", err)
	dir := t.TempDir()
	site := filepath.Join(dir, "mysite")
	err = copySite(srcdir, site)
	tassert(t, err == nil, "%v", err)

	report := filepath.Join(dir, "report.json")
	logfile := filepath.Join(dir, "run.log")
	rc := runWith("-n", "-v", "--report="+report, "--log="+logfile, site)
	tassert(t, rc == 0, "rc %d", rc)

	buf, err := ioutil.ReadFile(report)
	tassert(t, err == nil, "%v", err)
	var got cs.RunReport
	err = json.Unmarshal(buf, &got)
	tassert(t, err == nil, "%v", err)
	tassert(t, got.Database == "pages", "%#v", got)
	tassert(t, got.Site.DocID == ".www", "%#v", got.Site)
	tassert(t, len(got.Site.Attached) == 3, "%#v", got.Site)
	tassert(t, len(got.Designs.Published) == 2, "%#v", got.Designs)
	tassert(t, len(got.Errors) == 0, "%#v", got.Errors)

	buf, err = ioutil.ReadFile(logfile)
	tassert(t, err == nil, "%v", err)
	tassert(t, strings.Contains(string(buf), "uploading"), "%s", buf)
}

func TestRunPartialFailure(t *testing.T) {
	srcdir, err := os.Getwd()
	tassert(t, err == nil, "%v", err)
	dir := t.TempDir()
	site := filepath.Join(dir, "mysite")
	err = copySite(srcdir, site)
	tassert(t, err == nil, "%v", err)
	err = os.Symlink(filepath.Join(dir, "gone"), filepath.Join(site, "site", "broken.html"))
	tassert(t, err == nil, "%v", err)

	report := filepath.Join(dir, "report.json")
	rc := runWith("-n", "--report="+report, site)
	tassert(t, rc == 1, "rc %d", rc)

	buf, err := ioutil.ReadFile(report)
	tassert(t, err == nil, "%v", err)
	var got cs.RunReport
	err = json.Unmarshal(buf, &got)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(got.Site.Failed) == 1, "%#v", got.Site.Failed)
	tassert(t, len(got.Site.Attached) == 3, "%#v", got.Site.Attached)
	tassert(t, len(got.Errors) == 1, "%#v", got.Errors)
}

func TestRunBadDesign(t *testing.T) {
	srcdir, err := os.Getwd()
	tassert(t, err == nil, "%v", err)
	dir := t.TempDir()
	site := filepath.Join(dir, "mysite")
	err = copySite(srcdir, site)
	tassert(t, err == nil, "%v", err)
	err = ioutil.WriteFile(filepath.Join(site, "design", "bad.yaml"), []byte("bad: 1\n"), 0644)
	tassert(t, err == nil, "%v", err)

	// the site is still synced
	report := filepath.Join(dir, "report.json")
	rc := runWith("-n", "--report="+report, site)
	tassert(t, rc == 42, "rc %d", rc)
	buf, err := ioutil.ReadFile(report)
	tassert(t, err == nil, "%v", err)
	var got cs.RunReport
	err = json.Unmarshal(buf, &got)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(got.Site.Attached) == 3, "%#v", got.Site)
	tassert(t, len(got.Errors) == 1, "%#v", got.Errors)
	tassert(t, strings.Contains(got.Errors[0], "bad.yaml"), "%#v", got.Errors)
}

func TestExitCode(t *testing.T) {
	partial := &cs.PartialSyncError{DocID: ".site", Failed: []cs.Failure{{Path: "x"}}}
	store := &cs.StoreError{Op: "save", ID: ".site", Err: errors.New("down")}
	cases := []struct {
		err error
		rc  int
	}{
		{nil, 0},
		{partial, 1},
		{store, 42},
		{&cs.DesignError{File: "a.yaml", Err: errors.New("bad")}, 42},
		{&UsageError{Msg: "no"}, 22},
		{cs.ErrEmptyID, 22},
		{multierror.Append(nil, partial), 1},
		{multierror.Append(nil, partial, store), 42},
		{multierror.Append(nil, store, partial), 42},
		{errors.Wrap(partial, "sync"), 1},
	}
	for i, c := range cases {
		rc := exitCode(c.err)
		tassert(t, rc == c.rc, "case %d: expected %d, got %d", i, c.rc, rc)
	}
}
