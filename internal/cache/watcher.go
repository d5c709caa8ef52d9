package cache

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"templateguard/internal/logging"
)

// Watcher keeps the memory tier honest in multi-process deployments sharing
// one disk tier: when another process removes or truncates an entry file, the
// corresponding memory entry is evicted so the next Get re-reads disk.
type Watcher struct {
	tiered  *TieredCache
	logger  logging.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher over the tiered cache's disk directory.
func NewWatcher(tiered *TieredCache, logger logging.Logger) *Watcher {
	return &Watcher{
		tiered: tiered,
		logger: logger.WithComponent("cache-watcher"),
	}
}

// Start begins watching. It is a no-op when no disk tier is configured.
func (w *Watcher) Start() error {
	if w.tiered.disk == nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := fw.Add(w.tiered.disk.Dir()); err != nil {
		fw.Close()

		return err
	}

	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop()

	return nil
}

// Stop halts watching.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}

	w.watcher.Close()
	<-w.done
	w.watcher = nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(context.Background(), err, "cache directory watch error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, entrySuffix) {
		return
	}

	// Only removal matters: entry content is immutable per key (the hash is
	// in the name), so a Create from a writer publishing an entry carries the
	// same bytes the memory tier already holds. Create is also what this
	// process's own rename-into-place fires, and reacting to it would evict
	// every entry right after writing it.
	if event.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
		w.tiered.EvictMemory(name)
	}
}
