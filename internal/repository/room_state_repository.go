package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupKeyPrefix   = "meeting:event:"
	persistKeyPrefix = "meeting:persist:"
)

// RoomStateRepository keeps expiring soft state for meeting rooms in
// Redis: webhook dedup markers and the room persistence flag. A nil
// client disables both features; the database-level guards remain the
// source of truth either way.
type RoomStateRepository struct {
	client *redis.Client
}

// NewRoomStateRepository constructs a RoomStateRepository. client may be
// nil when Redis is not configured.
func NewRoomStateRepository(client *redis.Client) *RoomStateRepository {
	return &RoomStateRepository{client: client}
}

// SeenEvent atomically records the event key and reports whether it was
// already present within the TTL window.
func (r *RoomStateRepository) SeenEvent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	set, err := r.client.SetNX(ctx, dedupKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("event dedup setnx: %w", err)
	}
	return !set, nil
}

// MarkRoomPersistent flags the session's room as expected to survive a
// provider-side close for the duration of the TTL.
func (r *RoomStateRepository) MarkRoomPersistent(ctx context.Context, sessionID string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Set(ctx, persistKeyPrefix+sessionID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("mark room persistent: %w", err)
	}
	return nil
}

// IsRoomPersistent reports whether the persistence mark is live.
func (r *RoomStateRepository) IsRoomPersistent(ctx context.Context, sessionID string) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	if err := r.client.Get(ctx, persistKeyPrefix+sessionID).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("check room persistence: %w", err)
	}
	return true, nil
}

// ClearRoomPersistent drops the persistence mark, typically when the room
// (re)starts.
func (r *RoomStateRepository) ClearRoomPersistent(ctx context.Context, sessionID string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, persistKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("clear room persistence: %w", err)
	}
	return nil
}
