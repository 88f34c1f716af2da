package bridge

import (
	"context"
	"fmt"

	"github.com/focuspact/focuspact/internal/metrics"
	"github.com/focuspact/focuspact/internal/usage"
)

// Recorder stores what a device reports.
type Recorder interface {
	Record(ctx context.Context, source string, events []usage.RawEvent) error
	SetPermission(ctx context.Context, granted bool) error
}

// Ingest applies a decoded batch: the usage-access flag first, then the
// events. It returns the number of events recorded.
func Ingest(ctx context.Context, rec Recorder, source string, batch *EventBatch) (int, error) {
	events, err := batch.RawEvents()
	if err != nil {
		metrics.BatchesReceived.WithLabelValues(source, "rejected").Inc()
		return 0, err
	}

	if batch.UsageAccess != nil {
		if err := rec.SetPermission(ctx, *batch.UsageAccess); err != nil {
			metrics.BatchesReceived.WithLabelValues(source, "error").Inc()
			return 0, fmt.Errorf("failed to apply usage access: %w", err)
		}
	}

	if err := rec.Record(ctx, source, events); err != nil {
		metrics.BatchesReceived.WithLabelValues(source, "error").Inc()
		return 0, err
	}

	metrics.BatchesReceived.WithLabelValues(source, "ok").Inc()
	return len(events), nil
}

// IngestBytes decodes, validates and applies one batch.
func IngestBytes(ctx context.Context, rec Recorder, source string, data []byte) (int, error) {
	batch, err := DecodeEventBatch(data)
	if err != nil {
		metrics.BatchesReceived.WithLabelValues(source, "rejected").Inc()
		return 0, err
	}
	return Ingest(ctx, rec, source, batch)
}
