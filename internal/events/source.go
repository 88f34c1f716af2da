package events

import (
	"context"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/usage"
)

// PermissionState is the definite outcome of a permission request.
type PermissionState int

const (
	PermissionDenied PermissionState = iota
	PermissionGranted
	PermissionUnavailable
)

// String returns the wire name of the state.
func (p PermissionState) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	case PermissionUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PermissionState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Source supplies raw foreground/background events.
//
// QueryEvents fails with usage.ErrPermissionDenied when usage access has not
// been granted and with usage.ErrUnavailable when the platform has no event
// facility. RequestPermission resolves to a definite state; callers re-query
// it themselves when the app resumes.
type Source interface {
	QueryEvents(ctx context.Context, start, end time.Time) ([]usage.RawEvent, error)
	HasUsagePermission(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) (PermissionState, error)
}

// UnavailableSource stands in on platforms without usage events.
type UnavailableSource struct{}

// QueryEvents always fails with usage.ErrUnavailable.
func (UnavailableSource) QueryEvents(ctx context.Context, start, end time.Time) ([]usage.RawEvent, error) {
	return nil, usage.ErrUnavailable
}

// HasUsagePermission always fails with usage.ErrUnavailable.
func (UnavailableSource) HasUsagePermission(ctx context.Context) (bool, error) {
	return false, usage.ErrUnavailable
}

// RequestPermission always resolves to PermissionUnavailable.
func (UnavailableSource) RequestPermission(ctx context.Context) (PermissionState, error) {
	return PermissionUnavailable, nil
}
