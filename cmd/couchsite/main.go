package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	cs "github.com/t7a/couchsite"
	"github.com/t7a/couchsite/couch"
	"gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.1.0"

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number`. e.g. `/internal/app/api.go:25`
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d", strings.TrimPrefix(f.File, p), f.Line)
	}
}

type Opts struct {
	Sitedir  string `docopt:"<sitedir>"`
	URL      string `docopt:"<url>"`
	Database string `docopt:"<database>"`
	DryRun   bool   `docopt:"--dry-run"`
	Watch    bool   `docopt:"--watch"`
	Doc      string `docopt:"--doc"`
	Config   string `docopt:"--config"`
	Report   string `docopt:"--report"`
	Log      string `docopt:"--log"`
	Verbose  bool   `docopt:"--verbose"`
}

// UsageError is a bad invocation.  Nothing has touched the store.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Msg
}

const usage = `couchsite

Publish a site directory to CouchDB: every file under <sitedir>/site
becomes an attachment of one document, and every design file under
<sitedir>/design becomes a _design document.

Usage:
  couchsite [options] <sitedir> [<database>]
  couchsite [options] <sitedir> <url> <database>
  couchsite -h | --help
  couchsite --version

Options:
  -h --help           Show this screen.
  --version           Show version.
  -n --dry-run        Sync into memory and print what would be stored.
  -w --watch          Keep running and sync again after changes.
  -d --doc=<id>       Site document ID.
  -c --config=<file>  Config file, <sitedir>/couchsite.toml if not given.
  --report=<file>     Write a JSON report of each run.
  --log=<file>        Log to a rotated file instead of stderr.
  -v --verbose        Log progress.
`

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

// parseArgs returns ok false when the run is over, either because help
// was shown or because the arguments were bad; rc is the exit code
// then.
func parseArgs(args []string) (opts *Opts, rc int, ok bool) {
	var badArgs bool
	parser := &docopt.Parser{
		HelpHandler: func(err error, out string) {
			if err != nil {
				badArgs = true
				return
			}
			fmt.Println(out)
		},
	}
	o, err := parser.ParseArgs(usage, args, version)
	if badArgs || err != nil {
		fmt.Fprintln(os.Stderr, "couchsite: bad arguments (see couchsite --help)")
		return nil, 22, false
	}
	if o == nil {
		// help or version
		return nil, 0, false
	}
	opts = &Opts{}
	err = o.Bind(opts)
	if err != nil {
		log.Error(err)
		return nil, 22, false
	}
	return opts, 0, true
}

func run() (rc int) {
	opts, rc, ok := parseArgs(os.Args[1:])
	if !ok {
		return
	}
	log.Debugf("%#v", opts)
	if opts.Verbose && !log.IsLevelEnabled(log.InfoLevel) {
		log.SetLevel(log.InfoLevel)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Error(err)
		return exitCode(err)
	}
	if cfg.Doc == "" {
		fmt.Fprintln(os.Stderr, "couchsite: empty document ID")
		return 22
	}

	if cfg.Log != "" {
		logfile := &lumberjack.Logger{
			Filename:   cfg.Log,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		out := log.StandardLogger().Out
		log.SetOutput(logfile)
		defer func() {
			log.SetOutput(out)
			logfile.Close()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client cs.Client
	var mem *cs.MemClient
	if opts.DryRun {
		mem = cs.NewMemClient()
		client = mem
	} else {
		client, err = couch.Open(ctx, cfg.URL)
		if err != nil {
			log.Error(err)
			return 42
		}
	}
	defer client.Close()

	db, err := client.GetOrCreateDatabase(ctx, cfg.Database)
	if err != nil {
		log.Error(err)
		return exitCode(err)
	}
	u := &cs.Uploader{Db: db}

	report, err := syncAll(ctx, u, cfg)
	if opts.DryRun {
		printDryRun(mem.DB(cfg.Database), cfg.Doc, report)
	} else if report.Site != nil {
		fmt.Println(report.Site.Summary())
	}

	if opts.Watch {
		dirs := []string{cfg.DesignDir, cfg.SiteDir}
		log.Infof("watching %s", strings.Join(dirs, ", "))
		err = cs.Watch(ctx, dirs, cfg.Delay, func() error {
			report, err := syncAll(ctx, u, cfg)
			if report.Site != nil {
				fmt.Println(report.Site.Summary())
			}
			return err
		})
	}
	return exitCode(err)
}

// syncAll publishes the designs and then syncs the site document.  Each
// step runs even if the other failed.
func syncAll(ctx context.Context, u *cs.Uploader, cfg *Config) (report *cs.RunReport, err error) {
	var errs *multierror.Error
	report = &cs.RunReport{Database: cfg.Database}

	report.Designs, err = u.UploadDesigns(ctx, cfg.DesignDir)
	if err != nil {
		log.Error(err)
		errs = multierror.Append(errs, err)
	}

	report.Site, err = u.UploadDirectory(ctx, cfg.SiteDir, cfg.Doc)
	if err != nil {
		log.Error(err)
		errs = multierror.Append(errs, err)
	}
	if partial := report.Site.Err(); partial != nil {
		log.Warn(partial)
		errs = multierror.Append(errs, partial)
	}

	err = errs.ErrorOrNil()
	if err != nil {
		for _, e := range errs.Errors {
			report.Errors = append(report.Errors, e.Error())
		}
	}
	if cfg.Report != "" {
		werr := cs.WriteReport(cfg.Report, report)
		if werr != nil {
			log.Error(werr)
			err = multierror.Append(err, werr)
		}
	}
	return
}

// printDryRun shows the design IDs and the attachment tree the run
// produced.
func printDryRun(db *cs.MemDatabase, docID string, report *cs.RunReport) {
	for _, id := range report.Designs.IDs() {
		fmt.Println(id)
	}
	fmt.Print(cs.RenderTree(docID, db.AttachmentNames(docID)))
	if report.Site != nil {
		fmt.Println(report.Site.Summary())
	}
}

// exitCode maps a run's error to the process exit code: 0 for none, 1
// when only attachments failed, 22 for usage errors and 42 for the
// rest.
func exitCode(err error) (rc int) {
	if err == nil {
		return 0
	}
	errs := []error{err}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	}
	for _, e := range errs {
		var uerr *UsageError
		switch {
		case errors.As(e, &uerr), errors.Is(e, cs.ErrEmptyID):
			return 22
		case cs.IsPartial(e):
			if rc < 1 {
				rc = 1
			}
		default:
			rc = 42
		}
	}
	return
}
