package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu      sync.Mutex
	events  []usage.RawEvent
	granted *bool
	failErr error
}

func (m *memRecorder) Record(ctx context.Context, source string, events []usage.RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memRecorder) SetPermission(ctx context.Context, granted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = &granted
	return nil
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestIngest(t *testing.T) {
	rec := &memRecorder{}

	n, err := IngestBytes(context.Background(), rec, "test", []byte(validBatch))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, rec.count())
	require.NotNil(t, rec.granted)
	assert.True(t, *rec.granted)
}

func TestIngest_RecorderError(t *testing.T) {
	boom := errors.New("boom")
	rec := &memRecorder{failErr: boom}

	_, err := IngestBytes(context.Background(), rec, "test", []byte(validBatch))
	assert.ErrorIs(t, err, boom)
}

func TestInbox_ProcessesAndFilesAway(t *testing.T) {
	dir := t.TempDir()

	// Present before start
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.json"), []byte(validBatch), 0o644))

	rec := &memRecorder{}
	var batches atomic.Int32
	inbox, err := NewInbox(dir, rec, func() { batches.Add(1) }, zerolog.Nop())
	require.NoError(t, err)
	inbox.SetSettle(20 * time.Millisecond)

	require.NoError(t, inbox.Start(context.Background()))
	defer func() { _ = inbox.Stop() }()

	// Written after start
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"schema_version": 9, "events": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	assert.Eventually(t, func() bool {
		_, errProcessed := os.Stat(filepath.Join(dir, processedDir, "early.json"))
		_, errRejected := os.Stat(filepath.Join(dir, rejectedDir, "bad.json"))
		return errProcessed == nil && errRejected == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 3, rec.count())
	assert.Equal(t, int32(1), batches.Load())
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestInbox_RetryableFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	rec := &memRecorder{failErr: errors.New("database is locked")}

	inbox, err := NewInbox(dir, rec, nil, zerolog.Nop())
	require.NoError(t, err)

	path := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(validBatch), 0o644))

	inbox.processFile(context.Background(), path)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(dir, processedDir, "batch.json"))
	assert.NoFileExists(t, filepath.Join(dir, rejectedDir, "batch.json"))
}
