package events

import (
	"context"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
)

// JournalSource serves events that devices reported into the event journal.
// Usage access is the per-owner flag stored next to the journal.
type JournalSource struct {
	store  storage.EventStore
	owner  string
	logger zerolog.Logger
}

// NewJournalSource creates a source over owner's journal
func NewJournalSource(store storage.EventStore, owner string, logger zerolog.Logger) *JournalSource {
	return &JournalSource{
		store:  store,
		owner:  owner,
		logger: logger.With().Str("component", "events").Str("owner", owner).Logger(),
	}
}

// QueryEvents returns the events in [start, end) in timestamp order.
func (s *JournalSource) QueryEvents(ctx context.Context, start, end time.Time) ([]usage.RawEvent, error) {
	granted, err := s.HasUsagePermission(ctx)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, usage.ErrPermissionDenied
	}

	records, err := s.store.QueryEvents(ctx, s.owner, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to read event journal: %w", err)
	}

	events := make([]usage.RawEvent, 0, len(records))
	for _, r := range records {
		kind, err := usage.ParseEventKind(r.Kind)
		if err != nil {
			s.logger.Warn().Err(err).Str("app", r.AppID).Msg("Skipping journal entry")
			continue
		}
		events = append(events, usage.RawEvent{
			AppID:     r.AppID,
			Kind:      kind,
			Timestamp: r.Timestamp,
		})
	}

	return events, nil
}

// HasUsagePermission reports the stored usage-access flag.
func (s *JournalSource) HasUsagePermission(ctx context.Context) (bool, error) {
	granted, err := s.store.UsageAccess(ctx, s.owner)
	if err != nil {
		return false, fmt.Errorf("failed to read usage access: %w", err)
	}
	return granted, nil
}

// RequestPermission re-reads the flag. The grant itself arrives from the
// device, so the answer is whatever the device last reported.
func (s *JournalSource) RequestPermission(ctx context.Context) (PermissionState, error) {
	granted, err := s.HasUsagePermission(ctx)
	if err != nil {
		return PermissionDenied, err
	}
	if granted {
		return PermissionGranted, nil
	}
	return PermissionDenied, nil
}

// SetPermission records the device's usage-access grant or revocation.
func (s *JournalSource) SetPermission(ctx context.Context, granted bool) error {
	if err := s.store.SetUsageAccess(ctx, s.owner, granted); err != nil {
		return fmt.Errorf("failed to store usage access: %w", err)
	}
	s.logger.Info().Bool("granted", granted).Msg("Usage access updated")
	return nil
}

// Record appends events to the journal. source labels the ingestion path in
// metrics.
func (s *JournalSource) Record(ctx context.Context, source string, events []usage.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]storage.EventRecord, len(events))
	for i, ev := range events {
		records[i] = storage.EventRecord{
			AppID:     ev.AppID,
			Kind:      ev.Kind.String(),
			Timestamp: ev.Timestamp,
		}
	}

	if err := s.store.AppendEvents(ctx, s.owner, records); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}

	metrics.EventsIngested.WithLabelValues(source).Add(float64(len(events)))
	s.logger.Debug().Str("source", source).Int("events", len(events)).Msg("Events recorded")
	return nil
}
