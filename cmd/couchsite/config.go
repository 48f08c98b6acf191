package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConfigFile is looked for in the site directory when -c isn't given.
const ConfigFile = "couchsite.toml"

// Config is the merged result of defaults, config file, environment
// and arguments, in increasing precedence.
type Config struct {
	URL        string `toml:"url"`
	Database   string `toml:"database"`
	Doc        string `toml:"doc"`
	DesignDir  string `toml:"design_dir"`
	SiteDir    string `toml:"site_dir"`
	Report     string `toml:"report"`
	Log        string `toml:"log"`
	WatchDelay string `toml:"watch_delay"`

	// set by loadConfig
	Root  string        `toml:"-"`
	File  string        `toml:"-"`
	Delay time.Duration `toml:"-"`
}

func defaultConfig() *Config {
	return &Config{
		URL:        "http://localhost:5984",
		Database:   "test",
		Doc:        ".site",
		DesignDir:  "design",
		SiteDir:    "site",
		WatchDelay: "500ms",
	}
}

// ConfigError is a config file that can't be read or makes no sense.
type ConfigError struct {
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	return "config " + e.File + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// env names
const (
	EnvURL = "COUCHSITE_URL"
	EnvDB  = "COUCHSITE_DB"
	EnvDoc = "COUCHSITE_DOC"
)

func setIf(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

// loadConfig builds the run configuration for opts.  A missing default
// config file is fine; a missing -c file is not.
func loadConfig(opts *Opts) (cfg *Config, err error) {
	cfg = defaultConfig()
	root, err := homedir.Expand(opts.Sitedir)
	if err != nil {
		return nil, &UsageError{Msg: err.Error()}
	}
	cfg.Root = root

	explicit := opts.Config != ""
	file := filepath.Join(root, ConfigFile)
	if explicit {
		file, err = homedir.Expand(opts.Config)
		if err != nil {
			return nil, &UsageError{Msg: err.Error()}
		}
	}
	md, err := toml.DecodeFile(file, cfg)
	switch {
	case err == nil:
		cfg.File = file
		log.Debugf("loaded %s", file)
		for _, key := range md.Undecoded() {
			log.Warnf("%s: unknown setting %s", file, key)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		err = nil
	default:
		return nil, &ConfigError{File: file, Err: err}
	}

	setIf(&cfg.URL, os.Getenv(EnvURL))
	setIf(&cfg.Database, os.Getenv(EnvDB))
	setIf(&cfg.Doc, os.Getenv(EnvDoc))

	setIf(&cfg.URL, opts.URL)
	setIf(&cfg.Database, opts.Database)
	setIf(&cfg.Doc, opts.Doc)
	setIf(&cfg.Report, opts.Report)
	setIf(&cfg.Log, opts.Log)

	cfg.Delay, err = time.ParseDuration(cfg.WatchDelay)
	if err != nil {
		return nil, &ConfigError{File: file, Err: errors.Wrap(err, "watch_delay")}
	}
	for _, dir := range []*string{&cfg.DesignDir, &cfg.SiteDir} {
		*dir, err = homedir.Expand(*dir)
		if err != nil {
			return nil, &ConfigError{File: file, Err: err}
		}
		if !filepath.IsAbs(*dir) {
			*dir = filepath.Join(root, *dir)
		}
	}
	for _, path := range []*string{&cfg.Report, &cfg.Log} {
		*path, err = homedir.Expand(*path)
		if err != nil {
			return nil, &ConfigError{File: file, Err: err}
		}
	}
	return
}
