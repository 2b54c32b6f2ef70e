package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list events are pushed to.
const DefaultRedisKey = "connsync:events"

// RedisNotifier pushes JSON envelopes onto a Redis list for an out-of-process
// persistence collaborator.
type RedisNotifier struct {
	redis *redis.Client
	key   string
}

// NewRedisNotifier creates a notifier pushing to key (DefaultRedisKey if empty).
func NewRedisNotifier(client *redis.Client, key string) *RedisNotifier {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisNotifier{redis: client, key: key}
}

// Key returns the Redis list key.
func (n *RedisNotifier) Key() string {
	return n.key
}

// RecordAdded implements Notifier.
func (n *RedisNotifier) RecordAdded(ctx context.Context, ev RecordAdded) error {
	err := n.push(ctx, recordEnvelope(ev))
	observe("redis", TypeRecordAdded, err)
	return err
}

// RunComplete implements Notifier.
func (n *RedisNotifier) RunComplete(ctx context.Context, ev RunCompleted) error {
	err := n.push(ctx, completedEnvelope(ev))
	observe("redis", TypeRunCompleted, err)
	return err
}

func (n *RedisNotifier) push(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := n.redis.RPush(ctx, n.key, data).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next envelope on key.
// It returns redis.Nil when the timeout elapses.
func Pop(ctx context.Context, client *redis.Client, key string, timeout time.Duration) (Envelope, error) {
	res, err := client.BLPop(ctx, timeout, key).Result()
	if err != nil {
		return Envelope{}, err
	}
	// BLPop returns [key, value].
	return DecodeEnvelope([]byte(res[1]))
}
