package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
	"github.com/tidwall/gjson"
)

// LimitStore implements storage.LimitStore against the hosted app_limits table
type LimitStore struct {
	client *Client
}

// NewLimitStore creates a LimitStore backed by client
func NewLimitStore(client *Client) *LimitStore {
	return &LimitStore{client: client}
}

// limitRow is the writable subset of an app_limits row
type limitRow struct {
	UserID              string  `json:"user_id"`
	PackageName         string  `json:"package_name"`
	AppName             string  `json:"app_name"`
	TimeLimitValue      *uint32 `json:"time_limit_value"`
	SessionLimitValue   *uint32 `json:"session_limit_value"`
	TimeLimitEnabled    bool    `json:"time_limit_enabled"`
	SessionLimitEnabled bool    `json:"session_limit_enabled"`
	IsPublic            bool    `json:"is_public"`
	UpdatedAt           string  `json:"updated_at"`
}

func rowFilter(owner, appID string) url.Values {
	q := url.Values{}
	q.Set("user_id", "eq."+owner)
	if appID != "" {
		q.Set("package_name", "eq."+appID)
	}
	q.Set("select", "*")
	return q
}

func decodeRecords(data []byte) ([]storage.LimitRecord, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return nil, fmt.Errorf("unexpected backend response: %.120s", data)
	}
	var records []storage.LimitRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode limit records: %w", err)
	}
	return records, nil
}

// SaveLimit upserts one limit type for an app, keeping the other type
func (s *LimitStore) SaveLimit(ctx context.Context, owner, appID string, limitType storage.LimitType, value *uint32, meta storage.LimitMeta) (*storage.LimitRecord, error) {
	if limitType != storage.LimitTime && limitType != storage.LimitSessions {
		return nil, fmt.Errorf("invalid limit type: %q", limitType)
	}

	existing, err := s.GetLimit(ctx, owner, appID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	record := storage.LimitRecord{UserID: owner, PackageName: appID, AppName: appID}
	if existing != nil {
		record = *existing
	}
	record.Apply(limitType, value)
	if meta.AppName != "" {
		record.AppName = meta.AppName
	}
	if meta.Public != nil {
		record.IsPublic = *meta.Public
	}

	row := limitRow{
		UserID:              owner,
		PackageName:         appID,
		AppName:             record.AppName,
		TimeLimitValue:      record.TimeLimitValue,
		SessionLimitValue:   record.SessionLimitValue,
		TimeLimitEnabled:    record.TimeLimitEnabled,
		SessionLimitEnabled: record.SessionLimitEnabled,
		IsPublic:            record.IsPublic,
		UpdatedAt:           s.client.now().UTC().Format(time.RFC3339Nano),
	}

	var data []byte
	if existing != nil {
		data, err = s.client.do(ctx, http.MethodPatch, limitsTable, rowFilter(owner, appID), row, "return=representation")
	} else {
		data, err = s.client.do(ctx, http.MethodPost, limitsTable, url.Values{"select": {"*"}}, row, "return=representation")
	}
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("backend returned no record for %s", appID)
	}
	return &records[0], nil
}

// GetLimit retrieves the limit record for an app
func (s *LimitStore) GetLimit(ctx context.Context, owner, appID string) (*storage.LimitRecord, error) {
	data, err := s.client.do(ctx, http.MethodGet, limitsTable, rowFilter(owner, appID), nil, "")
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return &records[0], nil
}

// ListLimits returns all limit records for an owner
func (s *LimitStore) ListLimits(ctx context.Context, owner string) ([]storage.LimitRecord, error) {
	query := rowFilter(owner, "")
	query.Set("order", "package_name.asc")

	data, err := s.client.do(ctx, http.MethodGet, limitsTable, query, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

// DeleteLimit removes the limit record for an app
func (s *LimitStore) DeleteLimit(ctx context.Context, owner, appID string) error {
	query := rowFilter(owner, appID)
	query.Del("select")
	_, err := s.client.do(ctx, http.MethodDelete, limitsTable, query, nil, "return=minimal")
	return err
}
