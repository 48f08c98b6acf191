package main

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func writeConfig(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFile)
	err := ioutil.WriteFile(path, []byte(text), 0644)
	tassert(t, err == nil, "%v", err)
	return path
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv(EnvURL, "")
	t.Setenv(EnvDB, "")
	t.Setenv(EnvDoc, "")
	dir := t.TempDir()
	cfg, err := loadConfig(&Opts{Sitedir: dir})
	tassert(t, err == nil, "%v", err)
	tassert(t, cfg.URL == "http://localhost:5984", "%#v", cfg)
	tassert(t, cfg.Database == "test", "%#v", cfg)
	tassert(t, cfg.Doc == ".site", "%#v", cfg)
	tassert(t, cfg.SiteDir == filepath.Join(dir, "site"), "%#v", cfg)
	tassert(t, cfg.DesignDir == filepath.Join(dir, "design"), "%#v", cfg)
	tassert(t, cfg.Delay == 500*time.Millisecond, "%v", cfg.Delay)
	tassert(t, cfg.File == "", "%s", cfg.File)
}

func TestConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
url = "http://couch.example:5984"
database = "fromfile"
doc = "fromfile"
site_dir = "public"
design_dir = "/etc/couchsite/design"
watch_delay = "2s"
`)
	t.Setenv(EnvURL, "")
	t.Setenv(EnvDB, "fromenv")
	t.Setenv(EnvDoc, "fromenv")

	cfg, err := loadConfig(&Opts{Sitedir: dir, Doc: "fromargs"})
	tassert(t, err == nil, "%v", err)
	tassert(t, cfg.File == filepath.Join(dir, ConfigFile), "%s", cfg.File)
	tassert(t, cfg.URL == "http://couch.example:5984", "%#v", cfg)
	tassert(t, cfg.Database == "fromenv", "%#v", cfg)
	tassert(t, cfg.Doc == "fromargs", "%#v", cfg)
	tassert(t, cfg.SiteDir == filepath.Join(dir, "public"), "%#v", cfg)
	tassert(t, cfg.DesignDir == "/etc/couchsite/design", "%#v", cfg)
	tassert(t, cfg.Delay == 2*time.Second, "%v", cfg.Delay)

	cfg, err = loadConfig(&Opts{Sitedir: dir, URL: "http://other:5984", Database: "fromargs"})
	tassert(t, err == nil, "%v", err)
	tassert(t, cfg.URL == "http://other:5984", "%#v", cfg)
	tassert(t, cfg.Database == "fromargs", "%#v", cfg)
	tassert(t, cfg.Doc == "fromenv", "%#v", cfg)
}

func TestConfigExplicitFile(t *testing.T) {
	t.Setenv(EnvDB, "")
	dir := t.TempDir()
	other := t.TempDir()
	path := writeConfig(t, other, `database = "elsewhere"`)
	cfg, err := loadConfig(&Opts{Sitedir: dir, Config: path})
	tassert(t, err == nil, "%v", err)
	tassert(t, cfg.Database == "elsewhere", "%#v", cfg)

	_, err = loadConfig(&Opts{Sitedir: dir, Config: filepath.Join(dir, "missing.toml")})
	var cerr *ConfigError
	tassert(t, errors.As(err, &cerr), "%#v", err)
	tassert(t, exitCode(err) == 42, "rc %d", exitCode(err))
}

func TestConfigBad(t *testing.T) {
	for _, text := range []string{
		`database = `,
		`watch_delay = "soon"`,
		`database = 5`,
	} {
		dir := t.TempDir()
		writeConfig(t, dir, text)
		_, err := loadConfig(&Opts{Sitedir: dir})
		var cerr *ConfigError
		tassert(t, errors.As(err, &cerr), "%q: %#v", text, err)
	}
}
