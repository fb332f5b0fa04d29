// Package fileindex watches the incoming directory for raw subband files
// and registers them in the State Store's file index as they arrive.
package fileindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dsa110/continuum-pipeline/internal/logging"
	"github.com/dsa110/continuum-pipeline/internal/pipeerr"
)

// filenamePattern is the §6 filename grammar: YYYY-MM-DDTHH:MM:SS_sbNN.hdf5.
var filenamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})_sb(\d{2})\.hdf5$`)

// Registrar is the subset of *store.Store the watcher needs, accepted as
// an interface so tests can substitute a fake without spinning up sqlite.
type Registrar interface {
	RegisterFile(path string, timestamp time.Time, subbandIndex int, sizeBytes int64) error
}

// ParseFilename extracts the timestamp and subband index from a raw
// filename. Returns a *pipeerr.Error of kind Input on a grammar mismatch.
func ParseFilename(name string) (time.Time, int, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, pipeerr.New(pipeerr.Input, fmt.Sprintf("filename %q does not match YYYY-MM-DDTHH:MM:SS_sbNN.hdf5", name))
	}
	ts, err := time.Parse("2006-01-02T15:04:05", m[1])
	if err != nil {
		return time.Time{}, 0, pipeerr.Wrap(pipeerr.Input, fmt.Sprintf("filename %q has unparseable timestamp", name), err)
	}
	sb, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, pipeerr.Wrap(pipeerr.Input, fmt.Sprintf("filename %q has unparseable subband index", name), err)
	}
	return ts.UTC(), sb, nil
}

// pending tracks a file seen by the watcher that has not yet settled.
type pending struct {
	lastSize int64
	lastSeen time.Time
}

// Watcher observes the incoming directory for new/modified raw files,
// debounces rapid writes until the file size is stable, parses the
// filename grammar, and registers well-formed files with the store.
// Malformed names are quarantined rather than crashing the watcher,
// grounded on the teacher's MangleWatcher debounce-then-validate loop.
type Watcher struct {
	mu            sync.Mutex
	watcher       *fsnotify.Watcher
	store         Registrar
	incomingDir   string
	quarantineDir string
	debounceDur   time.Duration
	pendingFiles  map[string]pending
	stopCh        chan struct{}
	doneCh        chan struct{}
	running       bool
}

// New creates a Watcher over incomingDir. The quarantine subdirectory is
// created lazily on first malformed file.
func New(incomingDir string, st Registrar) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fileindex: create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher:       fw,
		store:         st,
		incomingDir:   incomingDir,
		quarantineDir: filepath.Join(incomingDir, "quarantine"),
		debounceDur:   500 * time.Millisecond,
		pendingFiles:  make(map[string]pending),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins watching the incoming directory. Non-blocking; runs in a
// goroutine until Stop or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.incomingDir, 0o755); err != nil {
		return fmt.Errorf("fileindex: create incoming dir: %w", err)
	}
	if err := w.watcher.Add(w.incomingDir); err != nil {
		return fmt.Errorf("fileindex: watch incoming dir: %w", err)
	}
	logging.FileIndex("watching incoming directory: %s", w.incomingDir)

	// Pick up anything already present before the watch was established.
	if err := w.ScanExisting(); err != nil {
		logging.Get(logging.CategoryFileIndex).Warn("initial scan failed: %v", err)
	}

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
	logging.FileIndex("watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryFileIndex).Error("watcher error: %v", err)
		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	w.pendingFiles[event.Name] = pending{lastSize: info.Size(), lastSeen: time.Now()}
	w.mu.Unlock()
}

// processSettled registers any file whose size has not changed since it
// was last observed and whose debounce window has elapsed — the
// size-stable check that avoids registering a file mid-write.
func (w *Watcher) processSettled() {
	now := time.Now()
	w.mu.Lock()
	var ready []string
	for path, p := range w.pendingFiles {
		if now.Sub(p.lastSeen) < w.debounceDur {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pendingFiles, path)
			continue
		}
		if info.Size() != p.lastSize {
			w.pendingFiles[path] = pending{lastSize: info.Size(), lastSeen: now}
			continue
		}
		ready = append(ready, path)
		delete(w.pendingFiles, path)
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.ingest(path)
	}
}

func (w *Watcher) ingest(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	ts, subband, err := ParseFilename(filepath.Base(path))
	if err != nil {
		w.quarantine(path, err)
		return
	}
	if err := w.store.RegisterFile(path, ts, subband, info.Size()); err != nil {
		logging.Get(logging.CategoryFileIndex).Error("register %s: %v", path, err)
		return
	}
	logging.FileIndex("registered %s (sb=%02d ts=%s)", path, subband, ts.Format(time.RFC3339))
}

func (w *Watcher) quarantine(path string, reason error) {
	if err := os.MkdirAll(w.quarantineDir, 0o755); err != nil {
		logging.Get(logging.CategoryFileIndex).Error("create quarantine dir: %v", err)
		return
	}
	dest := filepath.Join(w.quarantineDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		logging.Get(logging.CategoryFileIndex).Error("quarantine %s: %v", path, err)
		return
	}
	logging.Get(logging.CategoryFileIndex).Warn("quarantined %s: %v", path, reason)
}

// ScanExisting registers every well-formed file already present in the
// incoming directory, skipping the quarantine subdirectory itself. Used
// at startup to catch files that arrived before the watch was attached.
func (w *Watcher) ScanExisting() error {
	entries, err := os.ReadDir(w.incomingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.ingest(filepath.Join(w.incomingDir, e.Name()))
	}
	return nil
}
