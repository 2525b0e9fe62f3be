// Package cache is a narrow, explicitly-invalidated Redis cache for
// availability reads. It is never a stand-in for the source of truth: the
// reservation write path always re-validates against the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courtbook/internal/availability"
)

// AvailabilityCache caches computed slot sets per venue/date/duration.
type AvailabilityCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a cache. A nil client disables caching entirely.
func New(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{redis: client, ttl: ttl}
}

func slotKey(venueID int64, date string, duration int) string {
	return fmt.Sprintf("availability:%d:%s:%d", venueID, date, duration)
}

func daySetKey(venueID int64, date string) string {
	return fmt.Sprintf("availability-keys:%d:%s", venueID, date)
}

// Get returns the cached slots for a venue/date/duration, if present.
func (c *AvailabilityCache) Get(ctx context.Context, venueID int64, date string, duration int) ([]availability.SlotInfo, bool) {
	if c.redis == nil || c.ttl <= 0 {
		return nil, false
	}
	val, err := c.redis.Get(ctx, slotKey(venueID, date, duration)).Result()
	if err != nil {
		return nil, false
	}
	var slots []availability.SlotInfo
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, false
	}
	return slots, true
}

// Set stores computed slots and registers the key in the day's set so a
// single invalidation call can drop every cached duration for the day.
func (c *AvailabilityCache) Set(ctx context.Context, venueID int64, date string, duration int, slots []availability.SlotInfo) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	key := slotKey(venueID, date, duration)
	setKey := daySetKey(venueID, date)
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
	_ = c.redis.SAdd(ctx, setKey, key).Err()
	_ = c.redis.Expire(ctx, setKey, c.ttl).Err()
}

// Invalidate drops every cached slot set for a venue/date. Called on any
// reservation state change touching that day.
func (c *AvailabilityCache) Invalidate(ctx context.Context, venueID int64, date string) {
	if c.redis == nil {
		return
	}
	setKey := daySetKey(venueID, date)
	keys, err := c.redis.SMembers(ctx, setKey).Result()
	if err == nil && len(keys) > 0 {
		_ = c.redis.Del(ctx, keys...).Err()
	}
	_ = c.redis.Del(ctx, setKey).Err()
}
