package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	processedDir = "processed"
	rejectedDir  = "rejected"

	// DefaultSettle is how long a file must go unmodified before it is read.
	DefaultSettle = 500 * time.Millisecond
)

// Inbox ingests event batch files dropped into a directory. Accepted files
// move to processed/, invalid ones to rejected/. Files that fail for a
// retryable reason stay in place and are tried again on the next change.
type Inbox struct {
	dir      string
	recorder Recorder
	onBatch  func()
	settle   time.Duration
	logger   zerolog.Logger

	fsWatcher *fsnotify.Watcher

	// path -> last modification seen
	pending   map[string]time.Time
	pendingMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInbox creates an inbox over dir. onBatch, if set, runs after each
// accepted file.
func NewInbox(dir string, recorder Recorder, onBatch func(), logger zerolog.Logger) (*Inbox, error) {
	for _, sub := range []string{"", processedDir, rejectedDir} {
		if err := storage.EnsureDir(filepath.Join(dir, sub)); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	return &Inbox{
		dir:      dir,
		recorder: recorder,
		onBatch:  onBatch,
		settle:   DefaultSettle,
		logger:   logger.With().Str("component", "inbox").Str("dir", dir).Logger(),
		pending:  make(map[string]time.Time),
	}, nil
}

// SetSettle overrides the settle delay.
func (in *Inbox) SetSettle(d time.Duration) {
	in.settle = d
}

// Start begins watching. Files already present are queued immediately.
func (in *Inbox) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(in.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", in.dir, err)
	}
	in.fsWatcher = w

	entries, err := os.ReadDir(in.dir)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to scan inbox: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && isBatchFile(entry.Name()) {
			in.track(filepath.Join(in.dir, entry.Name()), time.Time{})
		}
	}

	ctx, in.cancel = context.WithCancel(ctx)
	in.wg.Add(2)
	go in.eventLoop(ctx)
	go in.settleLoop(ctx)

	in.logger.Info().Int("queued", len(entries)).Msg("Inbox watcher started")
	return nil
}

// Stop shuts the watcher down and waits for in-flight files.
func (in *Inbox) Stop() error {
	if in.cancel != nil {
		in.cancel()
	}
	in.wg.Wait()
	if in.fsWatcher != nil {
		return in.fsWatcher.Close()
	}
	return nil
}

func isBatchFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

func (in *Inbox) track(path string, at time.Time) {
	in.pendingMu.Lock()
	in.pending[path] = at
	in.pendingMu.Unlock()
}

func (in *Inbox) eventLoop(ctx context.Context) {
	defer in.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-in.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Dir(event.Name) != filepath.Clean(in.dir) || !isBatchFile(filepath.Base(event.Name)) {
				continue
			}
			in.track(event.Name, time.Now())

		case err, ok := <-in.fsWatcher.Errors:
			if !ok {
				return
			}
			in.logger.Warn().Err(err).Msg("Inbox watcher error")
		}
	}
}

func (in *Inbox) settleLoop(ctx context.Context) {
	defer in.wg.Done()

	interval := in.settle / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, path := range in.settled(now) {
				in.processFile(ctx, path)
			}
		}
	}
}

// settled removes and returns the files untouched for the settle delay.
func (in *Inbox) settled(now time.Time) []string {
	in.pendingMu.Lock()
	defer in.pendingMu.Unlock()

	var ready []string
	for path, at := range in.pending {
		if now.Sub(at) >= in.settle {
			ready = append(ready, path)
			delete(in.pending, path)
		}
	}
	return ready
}

// processFile ingests one file and files it away.
func (in *Inbox) processFile(ctx context.Context, path string) {
	logger := in.logger.With().Str("file", filepath.Base(path)).Logger()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read batch file")
		return
	}

	count, err := IngestBytes(ctx, in.recorder, "inbox", data)
	switch {
	case errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnsupportedVersion):
		logger.Warn().Err(err).Msg("Rejected batch file")
		in.move(logger, path, rejectedDir)
		return
	case err != nil:
		// Storage trouble; leave the file for the next change or restart
		logger.Error().Err(err).Msg("Failed to ingest batch file")
		return
	}

	logger.Info().Int("events", count).Msg("Batch file ingested")
	in.move(logger, path, processedDir)

	if in.onBatch != nil {
		in.onBatch()
	}
}

func (in *Inbox) move(logger zerolog.Logger, path, sub string) {
	dest := filepath.Join(in.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		logger.Error().Err(err).Str("dest", dest).Msg("Failed to move batch file")
	}
}
