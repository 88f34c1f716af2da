package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type limitStore struct {
	client     *redis.Client
	saveScript *redis.Script
}

// SaveLimit upserts one limit type for an app
func (s *limitStore) SaveLimit(ctx context.Context, owner, appID string, limitType storage.LimitType, value *uint32, meta storage.LimitMeta) (*storage.LimitRecord, error) {
	keys := []string{limitKey(owner, appID), limitIndexKey(owner)}
	args := []interface{}{
		uuid.NewString(),
		owner,
		appID,
		meta.AppName,
		optionalFlag(meta.Public),
		string(limitType),
		formatOptionalUint32(value),
		time.Now().UTC().Format(time.RFC3339Nano),
	}

	values, err := s.saveScript.Run(ctx, s.client, keys, args...).StringSlice()
	if err != nil {
		return nil, wrapErr("save limit", err)
	}

	return parseLimitRecord(flatToMap(values))
}

// GetLimit retrieves the limit record for an app
func (s *limitStore) GetLimit(ctx context.Context, owner, appID string) (*storage.LimitRecord, error) {
	data, err := s.client.HGetAll(ctx, limitKey(owner, appID)).Result()
	if err != nil {
		return nil, wrapErr("get limit", err)
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseLimitRecord(data)
}

// ListLimits returns all limit records for an owner
func (s *limitStore) ListLimits(ctx context.Context, owner string) ([]storage.LimitRecord, error) {
	appIDs, err := s.client.SMembers(ctx, limitIndexKey(owner)).Result()
	if err != nil {
		return nil, wrapErr("list limits", err)
	}

	if len(appIDs) == 0 {
		return []storage.LimitRecord{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(appIDs))

	for i, appID := range appIDs {
		cmds[i] = pipe.HGetAll(ctx, limitKey(owner, appID))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, wrapErr("list limits", err)
	}

	records := make([]storage.LimitRecord, 0, len(appIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		record, err := parseLimitRecord(data)
		if err != nil {
			return nil, fmt.Errorf("list limits: %w", err)
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].PackageName < records[j].PackageName
	})

	return records, nil
}

// DeleteLimit removes the limit record for an app
func (s *limitStore) DeleteLimit(ctx context.Context, owner, appID string) error {
	keys := []string{limitKey(owner, appID), limitIndexKey(owner)}
	if err := s.client.Eval(ctx, deleteLimitScript, keys, appID).Err(); err != nil {
		return wrapErr("delete limit", err)
	}
	return nil
}
