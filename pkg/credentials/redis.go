package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys and channels used for credential exchange.
const (
	RedisKeyPrefix       = "connsync:credentials"
	RedisRequestsChannel = "connsync:credentials:requests"
)

// RedisKey returns the key holding the bundle for a tenant/subject pair.
func RedisKey(tenant, subject string) string {
	return fmt.Sprintf("%s:%s:%s", RedisKeyPrefix, tenant, subject)
}

// RedisSource reads bundles published as JSON strings in Redis.
type RedisSource struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisSource creates a Redis-backed source. ttl applies to Save; 0 keeps bundles forever.
func NewRedisSource(redisClient *redis.Client, ttl time.Duration) *RedisSource {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisSource{redis: redisClient, ttl: ttl}
}

// Load implements Source.
func (s *RedisSource) Load(ctx context.Context, tenant, subject string) (*Bundle, error) {
	data, err := s.redis.Get(ctx, RedisKey(tenant, subject)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get credentials: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &bundle, nil
}

// Save publishes a bundle for a tenant/subject pair.
func (s *RedisSource) Save(ctx context.Context, tenant, subject string, bundle Bundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := s.redis.Set(ctx, RedisKey(tenant, subject), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set credentials: %w", err)
	}
	return nil
}

// RedisRequester publishes acquisition requests on a Redis channel.
// Delivery is fire-and-forget: nobody has to be subscribed.
type RedisRequester struct {
	redis   *redis.Client
	channel string
}

// NewRedisRequester creates a requester publishing on RedisRequestsChannel.
func NewRedisRequester(redisClient *redis.Client) *RedisRequester {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisRequester{redis: redisClient, channel: RedisRequestsChannel}
}

// RequestCredentials implements Requester.
func (r *RedisRequester) RequestCredentials(ctx context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal credential request: %w", err)
	}
	if err := r.redis.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish credential request: %w", err)
	}
	return nil
}
