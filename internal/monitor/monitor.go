package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/focuspact/focuspact/internal/policy"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// UsageQuerier is the usage half of a poll.
type UsageQuerier interface {
	GetUsageStats(ctx context.Context, start, end time.Time) (*usage.Stats, error)
	Clock() usage.Clock
}

// LimitSnapshotter is the limits half of a poll.
type LimitSnapshotter interface {
	Snapshot(ctx context.Context) (map[string]limits.AppLimit, error)
}

// AppStatus is one app's usage paired with its limit and the resulting
// restriction decision.
type AppStatus struct {
	Usage      usage.AppUsage
	Projection usage.Projection
	Limit      *limits.AppLimit
	Decision   policy.Decision
	Budget     policy.Budget
}

// Snapshot is the outcome of one poll. Apps is only ever built from a usage
// result and a limit snapshot taken in the same poll. A failed poll carries
// Err and no apps.
type Snapshot struct {
	TakenAt time.Time
	Start   time.Time
	End     time.Time
	Apps    []AppStatus
	Err     error
}

// NoData reports a successful poll that measured no usage.
func (s *Snapshot) NoData() bool {
	return s.Err == nil && len(s.Apps) == 0
}

// Find returns the status of appID, if present.
func (s *Snapshot) Find(appID string) (AppStatus, bool) {
	for _, a := range s.Apps {
		if a.Usage.AppID == appID {
			return a, true
		}
	}
	return AppStatus{}, false
}

// Restricted returns the apps currently over a limit.
func (s *Snapshot) Restricted() []AppStatus {
	var out []AppStatus
	for _, a := range s.Apps {
		if a.Decision.IsRestricted {
			out = append(out, a)
		}
	}
	return out
}

// Monitor periodically pairs usage with limits and keeps the latest result.
type Monitor struct {
	usage      UsageQuerier
	limits     LimitSnapshotter
	evaluator  *policy.Evaluator
	windowDays int
	logger     zerolog.Logger

	latest  atomic.Pointer[Snapshot]
	trigger chan struct{}
	pollMu  sync.Mutex
}

// New creates a monitor. windowDays is the number of calendar days, counting
// today, that each poll queries.
func New(u UsageQuerier, l LimitSnapshotter, evaluator *policy.Evaluator, windowDays int, logger zerolog.Logger) *Monitor {
	if windowDays < 1 {
		windowDays = 1
	}
	return &Monitor{
		usage:      u,
		limits:     l,
		evaluator:  evaluator,
		windowDays: windowDays,
		logger:     logger.With().Str("component", "monitor").Logger(),
		trigger:    make(chan struct{}, 1),
	}
}

// Window returns the query range used by a poll at now.
func (m *Monitor) Window(now time.Time) (start, end time.Time) {
	start = usage.StartOfDay(now).AddDate(0, 0, -(m.windowDays - 1))
	end = now
	if !start.Before(end) {
		end = start.Add(time.Millisecond)
	}
	return start, end
}

// Latest returns the last stored snapshot, or nil before the first poll.
func (m *Monitor) Latest() *Snapshot {
	return m.latest.Load()
}

// Trigger requests a poll from Run as soon as possible. Requests made while
// one is already pending are coalesced.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Poll queries usage and the limit snapshot concurrently and evaluates only
// once both have arrived. If either half or an evaluation fails, or ctx is
// cancelled, everything is discarded and the previous complete snapshot is
// kept; the failure is recorded on the returned snapshot.
func (m *Monitor) Poll(ctx context.Context) (*Snapshot, error) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	now := m.usage.Clock().Now()
	start, end := m.Window(now)

	var (
		stats    *usage.Stats
		snapshot map[string]limits.AppLimit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := m.usage.GetUsageStats(gctx, start, end)
		if err != nil {
			return fmt.Errorf("usage query: %w", err)
		}
		stats = s
		return nil
	})
	g.Go(func() error {
		s, err := m.limits.Snapshot(gctx)
		if err != nil {
			return fmt.Errorf("limit snapshot: %w", err)
		}
		snapshot = s
		return nil
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.recordFailure(now, start, end, err)
		return nil, err
	}

	result := &Snapshot{
		TakenAt: now,
		Start:   start,
		End:     end,
		Apps:    make([]AppStatus, 0, len(stats.Apps)),
	}
	for _, a := range stats.Apps {
		status := AppStatus{
			Usage:      a,
			Projection: usage.Project(a, now),
		}
		if l, ok := snapshot[a.AppID]; ok {
			status.Limit = &l
		}
		today := policy.TodayOf(a)
		decision, err := m.evaluator.Evaluate(ctx, today, status.Limit)
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			m.recordFailure(now, start, end, err)
			return nil, err
		}
		status.Decision = decision
		status.Budget = policy.Remaining(today, status.Limit)
		result.Apps = append(result.Apps, status)
	}

	m.latest.Store(result)
	m.observe(result)

	m.logger.Debug().
		Int("apps", len(result.Apps)).
		Int("limits", len(snapshot)).
		Int("restricted", len(result.Restricted())).
		Msg("Poll complete")

	return result, nil
}

// recordFailure stores an error snapshot only when there is no complete one
// to keep serving, or when the failure is a permission state that callers
// must see.
func (m *Monitor) recordFailure(now, start, end time.Time, err error) {
	status := "error"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case errors.Is(err, usage.ErrPermissionDenied):
		status = "permission_denied"
	case errors.Is(err, usage.ErrUnavailable):
		status = "unavailable"
	}
	metrics.PollsTotal.WithLabelValues(status).Inc()

	if status == "cancelled" {
		return
	}

	failed := &Snapshot{TakenAt: now, Start: start, End: end, Err: err}
	if status == "permission_denied" || status == "unavailable" || m.latest.Load() == nil {
		m.latest.Store(failed)
		metrics.TrackedApps.Set(0)
		metrics.RestrictedApps.Reset()
	}
}

func (m *Monitor) observe(s *Snapshot) {
	metrics.PollsTotal.WithLabelValues("ok").Inc()
	metrics.TrackedApps.Set(float64(len(s.Apps)))

	counts := map[policy.Reason]int{policy.ReasonTime: 0, policy.ReasonSessions: 0}
	for _, a := range s.Apps {
		for _, r := range a.Decision.Reasons() {
			counts[r]++
		}
	}
	for reason, n := range counts {
		metrics.RestrictedApps.WithLabelValues(string(reason)).Set(float64(n))
	}
}

// Run polls immediately, then on every tick of interval and on Trigger,
// until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Int("window_days", m.windowDays).Msg("Monitor started")

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor stopped")
			return
		case <-ticker.C:
			m.runOnce(ctx)
		case <-m.trigger:
			m.runOnce(ctx)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	if _, err := m.Poll(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, usage.ErrPermissionDenied), errors.Is(err, usage.ErrUnavailable):
			m.logger.Warn().Err(err).Msg("Usage data not accessible")
		default:
			m.logger.Error().Err(err).Msg("Poll failed")
		}
	}
}
