package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// stalenessWatcher watches deployment inputs while a plan waits for
// operator confirmation. Any edit under the content root or to the
// environments file flips the stale flag, and a stale plan is
// rejected at the gate instead of applied.
type stalenessWatcher struct {
	watcher *fsnotify.Watcher
	logger  *telemetry.Logger
	stale   atomic.Bool
	done    chan struct{}
}

// newStalenessWatcher starts watching the given paths. Directories
// are watched recursively. Empty or missing paths are skipped with a
// warning; confirmation still proceeds, it just loses staleness cover
// for that input.
func newStalenessWatcher(paths []string, logger *telemetry.Logger) (*stalenessWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	sw := &stalenessWatcher{watcher: w, logger: logger, done: make(chan struct{})}

	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn().Str("path", p).Err(err).Msg("Cannot watch deployment input")
			continue
		}
		if info.IsDir() {
			if err := sw.watchTree(p); err != nil {
				w.Close()
				return nil, err
			}
			continue
		}
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, err
		}
	}

	go sw.loop()
	return sw, nil
}

// watchTree adds a directory and every subdirectory. Dot-directories
// are skipped; editors and version control churn in them constantly.
func (sw *stalenessWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return sw.watcher.Add(path)
	})
}

func (sw *stalenessWatcher) loop() {
	defer close(sw.done)
	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			if !sw.stale.Swap(true) {
				sw.logger.Warn().
					Str("path", ev.Name).
					Msg("Deployment inputs changed while awaiting confirmation")
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn().Err(err).Msg("Staleness watcher error")
		}
	}
}

// Stale reports whether any watched input changed since the watcher
// started.
func (sw *stalenessWatcher) Stale() bool {
	return sw.stale.Load()
}

// Close stops watching and waits for the event loop to drain.
func (sw *stalenessWatcher) Close() error {
	err := sw.watcher.Close()
	<-sw.done
	return err
}
