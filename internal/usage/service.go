package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/rs/zerolog"
)

// EventSource supplies raw lifecycle events for a time window.
type EventSource interface {
	QueryEvents(ctx context.Context, start, end time.Time) ([]RawEvent, error)
	HasUsagePermission(ctx context.Context) (bool, error)
}

// Service answers consumer-facing usage queries.
type Service struct {
	source EventSource
	clock  Clock
	logger zerolog.Logger
}

// NewService creates a usage service over source.
func NewService(source EventSource, clock Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		source: source,
		clock:  clock,
		logger: logger.With().Str("component", "usage").Logger(),
	}
}

// Clock returns the clock used for day boundaries.
func (s *Service) Clock() Clock {
	return s.clock
}

// GetUsageStats aggregates events in [start, end) and returns the apps with
// measured usage. An empty result is a valid outcome and is not an error.
func (s *Service) GetUsageStats(ctx context.Context, start, end time.Time) (*Stats, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid window: start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	granted, err := s.source.HasUsagePermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check usage permission: %w", err)
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	now := s.clock.Now()
	began := time.Now()

	events, err := s.source.QueryEvents(ctx, start, end)
	if err != nil {
		metrics.AggregationPasses.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	// Abandoned queries leave nothing behind: the aggregate map is local to
	// this pass and is dropped unless we get to the end.
	g := NewAggregator(now)
	for i, ev := range events {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				metrics.AggregationPasses.WithLabelValues("cancelled").Inc()
				return nil, err
			}
		}
		g.Add(ev)
	}

	stats := &Stats{
		Start: start,
		End:   end,
		Now:   now,
		Apps:  Sorted(g.Result()),
	}

	metrics.AggregationPasses.WithLabelValues("ok").Inc()
	metrics.EventsProcessed.Add(float64(len(events)))
	metrics.AggregationDuration.Observe(time.Since(began).Seconds())

	s.logger.Debug().
		Int("events", len(events)).
		Int("apps", len(stats.Apps)).
		Time("start", start).
		Time("end", end).
		Msg("Usage aggregated")

	return stats, nil
}

// StatsForPeriod runs GetUsageStats over the display window of tf.
func (s *Service) StatsForPeriod(ctx context.Context, tf Timeframe) (*Stats, error) {
	start, end, err := RangeFor(tf, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.GetUsageStats(ctx, start, end)
}

// GetProjections derives the timeframe rollups for one aggregate.
func (s *Service) GetProjections(a AppUsage, now time.Time) Projection {
	return Project(a, now)
}
