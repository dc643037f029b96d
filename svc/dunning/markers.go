package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Markers deduplicates dunning emails across overlapping sweep runs: a
// notice is sent only by the run that claims its marker first.
type Markers interface {
	// Claim atomically claims a marker, returning false when another run
	// already holds it.
	Claim(ctx context.Context, key string) (bool, error)
}

// RedisMarkers implements Markers on Redis SETNX with a TTL, so markers
// clean themselves up after the dedup window.
type RedisMarkers struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMarkers creates a marker store. Panics on a nil client.
func NewRedisMarkers(client *redis.Client, ttl time.Duration) *RedisMarkers {
	if client == nil {
		panic("dunning: redis client is required")
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisMarkers{client: client, ttl: ttl}
}

func (m *RedisMarkers) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := m.client.SetNX(ctx, key, "1", m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dunning: claim marker %s: %w", key, err)
	}
	return ok, nil
}

// NopMarkers always claims. Used when Redis is not configured; every sweep
// run then behaves as the first.
type NopMarkers struct{}

func (NopMarkers) Claim(context.Context, string) (bool, error) { return true, nil }

func markerKey(subID string, notice Notice, day time.Time) string {
	return fmt.Sprintf("dunning:%s:%s:%s", subID, notice, day.Format("2006-01-02"))
}
