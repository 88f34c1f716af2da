package limits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/focuspact/focuspact/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("limits: store closed")

	// ErrInvalidType is returned for a limit type other than time or sessions.
	ErrInvalidType = errors.New("limits: invalid limit type")
)

// DefaultCacheSize is used when Options.CacheSize is not set.
const DefaultCacheSize = 256

// Options configures a Store.
type Options struct {
	CacheSize int
	Logger    zerolog.Logger
}

// Meta carries optional display fields stored with a limit.
type Meta = storage.LimitMeta

// Store holds the limits of one owner (user or device) for the lifetime of a
// session. It reads through a bounded cache and writes through to backend.
type Store struct {
	backend storage.LimitStore
	owner   string
	cache   *lru.Cache[string, AppLimit]
	logger  zerolog.Logger

	mu     sync.RWMutex // guards closed
	closed bool

	writeMu sync.Mutex // serializes mutations and cache fills

	// writes is bumped on entry to and exit from every mutation. A read
	// only caches what it fetched if no mutation overlapped it.
	writes atomic.Uint64
}

// NewStore creates a limit store for owner. Call Close when the session ends.
func NewStore(backend storage.LimitStore, owner string, opts Options) (*Store, error) {
	if owner == "" {
		return nil, fmt.Errorf("limit store owner is required")
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[string, AppLimit](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create limit cache: %w", err)
	}

	return &Store{
		backend: backend,
		owner:   owner,
		cache:   cache,
		logger:  opts.Logger.With().Str("component", "limits").Str("owner", owner).Logger(),
	}, nil
}

// Owner returns the user/device scope of the store.
func (s *Store) Owner() string {
	return s.owner
}

// Close ends the session. The cache is purged and later calls fail with
// ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	s.logger.Debug().Msg("Limit store closed")
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func validateType(limitType LimitType) error {
	if limitType != Time && limitType != Sessions {
		return fmt.Errorf("%w: %q", ErrInvalidType, limitType)
	}
	return nil
}

// beginWrite takes the write lock for a mutation and returns its release.
func (s *Store) beginWrite() func() {
	s.writeMu.Lock()
	s.writes.Add(1)
	return func() {
		s.writes.Add(1)
		s.writeMu.Unlock()
	}
}

// fill caches limits fetched by a read that started at write count since.
// Nothing is cached when a mutation ran meanwhile: the fetched values may
// predate it.
func (s *Store) fill(since uint64, fetched ...AppLimit) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writes.Load() != since {
		s.logger.Debug().Int("limits", len(fetched)).Msg("Skipped cache fill after concurrent write")
		return
	}
	for _, limit := range fetched {
		s.cache.Add(limit.AppID, limit)
	}
}

// SetLimit sets and enables one limit type for appID. The other type is
// left untouched. Setting the same value twice stores the same state.
func (s *Store) SetLimit(ctx context.Context, appID string, limitType LimitType, value uint32) (*AppLimit, error) {
	return s.SetLimitWithMeta(ctx, appID, limitType, value, Meta{})
}

// SetLimitWithMeta is SetLimit that also records the app's display name and
// public flag.
func (s *Store) SetLimitWithMeta(ctx context.Context, appID string, limitType LimitType, value uint32, meta Meta) (*AppLimit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateType(limitType); err != nil {
		return nil, err
	}

	defer s.beginWrite()()

	record, err := s.backend.SaveLimit(ctx, s.owner, appID, limitType, &value, meta)
	if err != nil {
		s.cache.Remove(appID)
		metrics.LimitMutations.WithLabelValues("set", string(limitType), "error").Inc()
		return nil, fmt.Errorf("failed to set %s limit for %s: %w", limitType, appID, err)
	}

	limit := fromRecord(record)
	s.cache.Add(appID, limit)
	metrics.LimitMutations.WithLabelValues("set", string(limitType), "ok").Inc()

	s.logger.Info().
		Str("app", appID).
		Str("type", string(limitType)).
		Uint32("value", value).
		Msg("Limit set")

	out := limit.clone()
	return &out, nil
}

// RemoveLimit disables and clears one limit type for appID. When neither
// type remains enabled the record is deleted and nil is returned. Removing a
// limit that does not exist is not an error.
func (s *Store) RemoveLimit(ctx context.Context, appID string, limitType LimitType) (*AppLimit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateType(limitType); err != nil {
		return nil, err
	}

	defer s.beginWrite()()

	// The entry is stale whatever happens below
	s.cache.Remove(appID)

	fail := func(err error) (*AppLimit, error) {
		metrics.LimitMutations.WithLabelValues("remove", string(limitType), "error").Inc()
		return nil, fmt.Errorf("failed to remove %s limit for %s: %w", limitType, appID, err)
	}

	if _, err := s.backend.GetLimit(ctx, s.owner, appID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.LimitMutations.WithLabelValues("remove", string(limitType), "ok").Inc()
			return nil, nil
		}
		return fail(err)
	}

	record, err := s.backend.SaveLimit(ctx, s.owner, appID, limitType, nil, Meta{})
	if err != nil {
		return fail(err)
	}

	metrics.LimitMutations.WithLabelValues("remove", string(limitType), "ok").Inc()
	s.logger.Info().Str("app", appID).Str("type", string(limitType)).Msg("Limit removed")

	if record.Empty() {
		if err := s.backend.DeleteLimit(ctx, s.owner, appID); err != nil {
			return fail(err)
		}
		s.logger.Debug().Str("app", appID).Msg("Limit record dropped")
		return nil, nil
	}

	limit := fromRecord(record)
	s.cache.Add(appID, limit)
	out := limit.clone()
	return &out, nil
}

// GetLimit returns the limit configured for appID, or nil when there is none.
func (s *Store) GetLimit(ctx context.Context, appID string) (*AppLimit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if limit, ok := s.cache.Get(appID); ok {
		metrics.LimitCacheHits.Inc()
		out := limit.clone()
		return &out, nil
	}
	metrics.LimitCacheMisses.Inc()

	since := s.writes.Load()
	record, err := s.backend.GetLimit(ctx, s.owner, appID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get limit for %s: %w", appID, err)
	}

	limit := fromRecord(record)
	s.fill(since, limit)
	out := limit.clone()
	return &out, nil
}

// ListLimits returns every limit of the owner, sorted by app id.
func (s *Store) ListLimits(ctx context.Context) ([]AppLimit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	since := s.writes.Load()
	records, err := s.backend.ListLimits(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list limits: %w", err)
	}

	fetched := make([]AppLimit, 0, len(records))
	out := make([]AppLimit, 0, len(records))
	for i := range records {
		limit := fromRecord(&records[i])
		fetched = append(fetched, limit)
		out = append(out, limit.clone())
	}
	s.fill(since, fetched...)
	return out, nil
}

// Snapshot returns the owner's limits keyed by app id, read in one backend
// call. The map is not shared with the store.
func (s *Store) Snapshot(ctx context.Context) (map[string]AppLimit, error) {
	list, err := s.ListLimits(ctx)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]AppLimit, len(list))
	for _, limit := range list {
		snap[limit.AppID] = limit
	}
	return snap, nil
}
