// Package watch reports changes to individual files.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op represents the kind of change seen on the watched file
type Op int

const (
	// Changed indicates the file was created, written or replaced
	Changed Op = iota
	// Removed indicates the file was removed or renamed away
	Removed
)

// String returns a human-readable representation of the operation
func (op Op) String() string {
	switch op {
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a debounced change of the watched file
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// DefaultDebounceDelay coalesces the bursts of events editors and atomic
// renames produce.
const DefaultDebounceDelay = 100 * time.Millisecond

// FileWatcher watches one file. The parent directory is watched so the file
// may be created, replaced or removed while the watcher runs.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	path    string

	mu            sync.Mutex
	debounceDelay time.Duration
	timer         *time.Timer
	closed        bool
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithDebounceDelay overrides DefaultDebounceDelay.
func WithDebounceDelay(delay time.Duration) Option {
	return func(fw *FileWatcher) { fw.debounceDelay = delay }
}

// NewFileWatcher starts watching path. Its directory must exist.
func NewFileWatcher(path string, opts ...Option) (*FileWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("failed to watch %s: %s is not a directory", path, dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fw := &FileWatcher{
		watcher:       watcher,
		events:        make(chan Event, 16),
		errors:        make(chan error, 4),
		done:          make(chan struct{}),
		path:          path,
		debounceDelay: DefaultDebounceDelay,
	}
	for _, opt := range opts {
		opt(fw)
	}

	go fw.processEvents()
	return fw, nil
}

func (fw *FileWatcher) processEvents() {
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
				// Error channel full, drop the error
			}
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.path {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		fw.debounce(Changed)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fw.debounce(Removed)
	default:
		// Ignore chmod events
	}
}

// debounce restarts the timer; only the last operation of a burst is sent.
func (fw *FileWatcher) debounce(op Op) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return
	}
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounceDelay, func() {
		fw.send(op)
	})
}

func (fw *FileWatcher) send(op Op) {
	event := Event{Path: fw.path, Op: op, Timestamp: time.Now()}
	select {
	case fw.events <- event:
	case <-fw.done:
	default:
		// Events channel full, drop the event
	}
}

// Events returns the channel of debounced changes.
func (fw *FileWatcher) Events() <-chan Event {
	return fw.events
}

// Errors returns the channel of watcher errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// Path returns the absolute path being watched.
func (fw *FileWatcher) Path() string {
	return fw.path
}

// Close stops the watcher. It is safe to call more than once.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()

	close(fw.done)
	return fw.watcher.Close()
}
