package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrAuthRequired is returned when the backend has no authenticated session.
	ErrAuthRequired = errors.New("storage: authentication required")

	// ErrTransport is returned on network or backend failures. Retryable.
	ErrTransport = errors.New("storage: transport error")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Limits() LimitStore
	Events() EventStore
}

// LimitStore persists per-app limits for an owner (user/device scope).
type LimitStore interface {
	// SaveLimit upserts one limit type. A nil value disables and clears that
	// type. The other type is left as it is.
	SaveLimit(ctx context.Context, owner, appID string, limitType LimitType, value *uint32, meta LimitMeta) (*LimitRecord, error)
	GetLimit(ctx context.Context, owner, appID string) (*LimitRecord, error)
	ListLimits(ctx context.Context, owner string) ([]LimitRecord, error)
	DeleteLimit(ctx context.Context, owner, appID string) error
}

// EventStore is the journal of raw lifecycle events reported by a device.
type EventStore interface {
	AppendEvents(ctx context.Context, owner string, events []EventRecord) error
	// QueryEvents returns events with start <= timestamp < end ordered by
	// timestamp, ties in append order.
	QueryEvents(ctx context.Context, owner string, start, end time.Time) ([]EventRecord, error)
	SetUsageAccess(ctx context.Context, owner string, granted bool) error
	// UsageAccess reports false when access was never recorded.
	UsageAccess(ctx context.Context, owner string) (bool, error)
	DeleteEventsBefore(ctx context.Context, owner string, cutoff time.Time) (int, error)
}
