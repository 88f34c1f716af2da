package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/rs/zerolog"
)

// JournalPruner removes journaled events older than a cutoff.
type JournalPruner interface {
	DeleteEventsBefore(ctx context.Context, owner string, cutoff time.Time) (int, error)
}

// RetentionScheduler prunes the event journal once a day. Aggregation only
// ever looks back RetentionDays, so older events are dead weight.
type RetentionScheduler struct {
	pruner        JournalPruner
	owner         string
	retentionDays int
	pruneTime     time.Time // Time of day to prune (only hour and minute are used)
	clock         Clock
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewRetentionScheduler creates a new retention scheduler
func NewRetentionScheduler(pruner JournalPruner, owner string, retentionDays int, pruneTime string, clock Clock, logger zerolog.Logger) (*RetentionScheduler, error) {
	// Parse prune time (HH:MM format)
	parsedTime, err := time.Parse("15:04", pruneTime)
	if err != nil {
		return nil, fmt.Errorf("invalid prune time %q: %w", pruneTime, err)
	}
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &RetentionScheduler{
		pruner:        pruner,
		owner:         owner,
		retentionDays: retentionDays,
		pruneTime:     parsedTime,
		clock:         clock,
		logger:        logger.With().Str("component", "retention").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("prune_time", rs.pruneTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("Journal retention scheduler started")
}

// Stop stops the retention scheduler
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("Journal retention scheduler stopped")
}

func (rs *RetentionScheduler) run() {
	for {
		next := rs.NextRun(rs.clock.Now())
		wait := next.Sub(rs.clock.Now())

		rs.logger.Debug().
			Time("next_prune", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next journal prune")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := rs.Prune(ctx); err != nil {
				rs.logger.Error().Err(err).Msg("Failed to prune event journal")
			}
			cancel()
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// NextRun returns the next prune time strictly after now.
func (rs *RetentionScheduler) NextRun(now time.Time) time.Time {
	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.pruneTime.Hour(), rs.pruneTime.Minute(), 0, 0,
		now.Location(),
	)

	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// Cutoff returns the oldest instant kept in the journal.
func (rs *RetentionScheduler) Cutoff(now time.Time) time.Time {
	return StartOfDay(now).AddDate(0, 0, -rs.retentionDays)
}

// Prune deletes events older than the retention cutoff.
func (rs *RetentionScheduler) Prune(ctx context.Context) (int, error) {
	cutoff := rs.Cutoff(rs.clock.Now())

	removed, err := rs.pruner.DeleteEventsBefore(ctx, rs.owner, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	metrics.EventsPruned.Add(float64(removed))
	rs.logger.Info().
		Int("events_deleted", removed).
		Time("cutoff", cutoff).
		Msg("Event journal pruned")

	return removed, nil
}
