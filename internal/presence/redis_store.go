package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// RedisStore implements SignalStore on a Redis sorted set per signal set:
// member = user id, score = expiry in unix milliseconds. Redis key TTLs
// expire whole keys, not members, so the expiry lives in the score and
// reads prune with ZREMRANGEBYSCORE first.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a store from a Redis URL
// ("redis://localhost:6379") and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Put(ctx context.Context, set string, member uuid.UUID, expiresAt time.Time) error {
	err := s.client.ZAdd(ctx, set, redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: member.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("put signal: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, set string, member uuid.UUID) error {
	if err := s.client.ZRem(ctx, set, member.String()).Err(); err != nil {
		return fmt.Errorf("remove signal: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context, set string, now time.Time) ([]uuid.UUID, error) {
	nowMilli := strconv.FormatInt(now.UnixMilli(), 10)

	// Prune first so abandoned signals don't accumulate, then read what's
	// left. Both ops are O(log n); a crash between them only delays
	// pruning to the next read. A signal is active only while its expiry
	// is strictly after now, so the prune is inclusive of now and the
	// read excludes it.
	if err := s.client.ZRemRangeByScore(ctx, set, "-inf", nowMilli).Err(); err != nil {
		return nil, fmt.Errorf("prune signals: %w", err)
	}
	members, err := s.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{
		Min: "(" + nowMilli,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read signals: %w", err)
	}

	active := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			// A foreign member in the set is ignored, not fatal.
			continue
		}
		active = append(active, id)
	}
	return active, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
