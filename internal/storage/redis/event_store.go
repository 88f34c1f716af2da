package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
	"github.com/redis/go-redis/v9"
)

type eventStore struct {
	client *redis.Client
}

// AppendEvents adds events to the owner's journal
func (s *eventStore) AppendEvents(ctx context.Context, owner string, events []storage.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	// Reserve a block of sequence numbers for this batch
	last, err := s.client.IncrBy(ctx, eventSeqKey(owner), int64(len(events))).Result()
	if err != nil {
		return wrapErr("append events", err)
	}
	first := last - int64(len(events)) + 1

	members := make([]redis.Z, len(events))
	for i, ev := range events {
		members[i] = redis.Z{
			Score:  float64(ev.Timestamp.UnixMilli()),
			Member: formatEventMember(first+int64(i), ev),
		}
	}

	if err := s.client.ZAdd(ctx, eventsKey(owner), members...).Err(); err != nil {
		return wrapErr("append events", err)
	}

	return nil
}

// QueryEvents returns journaled events in [start, end)
func (s *eventStore) QueryEvents(ctx context.Context, owner string, start, end time.Time) ([]storage.EventRecord, error) {
	results, err := s.client.ZRangeByScoreWithScores(ctx, eventsKey(owner), &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: "(" + strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, wrapErr("query events", err)
	}

	events := make([]storage.EventRecord, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("query events: unexpected member type %T", z.Member)
		}
		ev, err := parseEventMember(member, z.Score)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		events = append(events, ev)
	}

	return events, nil
}

// SetUsageAccess records whether the owner granted usage access
func (s *eventStore) SetUsageAccess(ctx context.Context, owner string, granted bool) error {
	if err := s.client.Set(ctx, accessKey(owner), boolFlag(granted), 0).Err(); err != nil {
		return wrapErr("set usage access", err)
	}
	return nil
}

// UsageAccess reports whether the owner granted usage access
func (s *eventStore) UsageAccess(ctx context.Context, owner string) (bool, error) {
	value, err := s.client.Get(ctx, accessKey(owner)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("get usage access", err)
	}
	return value == "1", nil
}

// DeleteEventsBefore prunes journal entries older than cutoff
func (s *eventStore) DeleteEventsBefore(ctx context.Context, owner string, cutoff time.Time) (int, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, eventsKey(owner),
		"-inf", "("+strconv.FormatInt(cutoff.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, wrapErr("delete events", err)
	}
	return int(removed), nil
}
