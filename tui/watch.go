package main

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	libraryReloadDelay = 300 * time.Millisecond
	// selfWriteGrace covers the WAL and journal events that trail our own
	// commits.
	selfWriteGrace = time.Second
)

// libraryChangedMsg tells the UI that the library file changed on disk.
type libraryChangedMsg struct{}

// debouncer runs only the last of a burst of triggers.
type debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := seq == d.seq
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// libraryWatcher turns writes to the library database (and its WAL/journal
// siblings) into libraryChangedMsg values.
type libraryWatcher struct {
	watcher  *fsnotify.Watcher
	debounce *debouncer
	changes  chan struct{}
	done     chan struct{}
	logger   *zap.Logger
	dbPath   string

	// ignoreUntil holds unix nanos; events before it come from this process.
	ignoreUntil atomic.Int64
}

func startLibraryWatcher(dbPath string, logger *zap.Logger) (*libraryWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(dbPath)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %q: %w", dir, err)
	}
	lw := &libraryWatcher{
		watcher:  w,
		debounce: newDebouncer(libraryReloadDelay),
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger,
		dbPath:   dbPath,
	}
	go lw.loop()
	return lw, nil
}

func (lw *libraryWatcher) loop() {
	for {
		select {
		case ev, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if !lw.relevant(ev) {
				continue
			}
			if time.Now().UnixNano() < lw.ignoreUntil.Load() {
				continue
			}
			lw.debounce.trigger(func() {
				select {
				case lw.changes <- struct{}{}:
				default:
				}
			})
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Warn("library watcher error", zap.Error(err))
		case <-lw.done:
			return
		}
	}
}

// markSelfWrite hides the events of a write this process is about to make.
// A nil watcher ignores the call.
func (lw *libraryWatcher) markSelfWrite() {
	if lw == nil {
		return
	}
	lw.ignoreUntil.Store(time.Now().Add(selfWriteGrace).UnixNano())
	lw.debounce.cancel()
}

func (lw *libraryWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(lw.dbPath)
	switch filepath.Base(ev.Name) {
	case base, base + "-wal", base + "-journal":
		return true
	}
	return false
}

// wait returns a command that blocks until the next change.
func (lw *libraryWatcher) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-lw.changes:
			return libraryChangedMsg{}
		case <-lw.done:
			return nil
		}
	}
}

func (lw *libraryWatcher) Close() error {
	lw.debounce.cancel()
	close(lw.done)
	return lw.watcher.Close()
}
