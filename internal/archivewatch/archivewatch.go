// Package archivewatch hot-reloads the classifier resource archive
// (VERSION, fingerprint_db.json, and friends) when any file in its
// directory changes, debounced the way mbeema-olly-agent's config
// watcher debounces YAML directory reloads. The teacher itself has no
// hot-reload of anything; this is pack enrichment gated behind
// config.ClassifierConfig.WatchArchive.
package archivewatch

import (
	"log"
	"sync"
	"time"

	"github.com/andrewchi/mercury/internal/classifier"
	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Watcher monitors a classifier archive directory and calls onChange
// with a freshly loaded Model whenever a file in it settles after a
// change.
type Watcher struct {
	dir      string
	onChange func(*classifier.Model)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher builds a Watcher for dir. onChange is invoked from the
// watcher's own goroutine; callers that share state with it must
// synchronize themselves (e.g. atomic.Pointer, as cmd/mercuryd does).
func NewWatcher(dir string, onChange func(*classifier.Model)) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins watching dir for changes.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.watcher = fsw

	go w.loop()
	log.Printf("archivewatch: watching %s for changes", w.dir)
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	var debounceTimer *time.Timer
	var lastFile string

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			lastFile = event.Name
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				w.reload(lastFile)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("archivewatch: watch error: %v", err)

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload(changedFile string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mdl, err := classifier.LoadArchive(w.dir)
	if err != nil {
		log.Printf("archivewatch: reload failed after change to %s: %v", changedFile, err)
		return
	}
	log.Printf("archivewatch: reloaded classifier archive (triggered by %s)", changedFile)
	w.onChange(mdl)
}
