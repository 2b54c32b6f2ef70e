package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates that no index exists for the key
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored fingerprint is corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager maintains identity indexes in Redis.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a new index manager. ttl bounds how long an unused index
// lingers; 0 keeps indexes until they are rebuilt or deleted.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Fingerprint returns the fingerprint the index of key was built from.
// Returns ErrCacheMiss if no index exists.
func (m *Manager) Fingerprint(ctx context.Context, key IndexKey) (*Fingerprint, error) {
	data, err := m.redis.Get(ctx, key.FingerprintKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			IndexMisses.Inc()
			return nil, ErrCacheMiss
		}
		IndexErrors.WithLabelValues("fingerprint").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		IndexErrors.WithLabelValues("fingerprint").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &fp, nil
}

// Contains reports whether member is in the index of key.
func (m *Manager) Contains(ctx context.Context, key IndexKey, member string) (bool, error) {
	found, err := m.redis.SIsMember(ctx, key.String(), member).Result()
	if err != nil {
		IndexErrors.WithLabelValues("contains").Inc()
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	IndexHits.Inc()
	return found, nil
}

// Rebuild replaces the index of key with members and records fp.
// The replacement is applied in a single MULTI/EXEC transaction.
func (m *Manager) Rebuild(ctx context.Context, key IndexKey, fp Fingerprint, members []string) error {
	fp.Members = len(members)
	fp.BuiltAt = time.Now()

	data, err := json.Marshal(fp)
	if err != nil {
		IndexErrors.WithLabelValues("rebuild").Inc()
		return fmt.Errorf("marshal fingerprint: %w", err)
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key.String())
		if len(members) > 0 {
			args := make([]interface{}, len(members))
			for i, member := range members {
				args[i] = member
			}
			pipe.SAdd(ctx, key.String(), args...)
			if m.ttl > 0 {
				pipe.Expire(ctx, key.String(), m.ttl)
			}
		}
		pipe.Set(ctx, key.FingerprintKey(), data, m.ttl)
		return nil
	})
	if err != nil {
		IndexErrors.WithLabelValues("rebuild").Inc()
		return fmt.Errorf("redis rebuild index: %w", err)
	}

	IndexRebuilds.Inc()
	return nil
}

// Delete removes the index of key.
func (m *Manager) Delete(ctx context.Context, key IndexKey) error {
	if err := m.redis.Del(ctx, key.String(), key.FingerprintKey()).Err(); err != nil {
		IndexErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
