package couchsite

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Watcher reports changes anywhere below a set of directories.
// fsnotify watches single directories, so every subdirectory gets its
// own watch, including ones created later.
type Watcher struct {
	watcher *fsnotify.Watcher
	Events  chan fsnotify.Event
}

// NewWatcher starts watching dirs.  Directories that don't exist are
// skipped.
func NewWatcher(dirs ...string) (w *Watcher, err error) {
	defer Return(&err)
	w = &Watcher{}
	w.watcher, err = fsnotify.NewWatcher()
	Ck(err)
	w.Events = w.watcher.Events
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Debugf("not watching missing %s", dir)
			continue
		}
		err = w.addTree(dir)
		if err != nil {
			w.watcher.Close()
			return nil, err
		}
	}
	return
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("can't watch %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		log.Debugf("watching %s", path)
		return w.watcher.Add(path)
	})
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run calls fn once after each burst of events, a burst ending when
// quiet passes without another event.  Errors from fn are logged and
// don't stop the watch.  Run returns when ctx is done and closes the
// watcher.
func (w *Watcher) Run(ctx context.Context, quiet time.Duration, fn func() error) (err error) {
	defer w.Close()
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			log.Debugf("event %v", event)
			if event.Op&fsnotify.Create != 0 {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					err = w.addTree(event.Name)
					if err != nil {
						log.Warn(err)
					}
				}
			}
			timer = time.After(quiet)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn(err)
		case <-timer:
			timer = nil
			err = fn()
			if err != nil {
				log.Error(err)
			}
		}
	}
}

// Watch runs fn after every burst of changes below dirs until ctx is
// done.
func Watch(ctx context.Context, dirs []string, quiet time.Duration, fn func() error) (err error) {
	w, err := NewWatcher(dirs...)
	if err != nil {
		return
	}
	return w.Run(ctx, quiet, fn)
}
