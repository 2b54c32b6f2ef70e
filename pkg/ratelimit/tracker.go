package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_throttle_cooldowns_total",
		Help: "Total number of cooldowns recorded after upstream throttling, by platform",
	}, []string{"platform"})

	throttleBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_throttle_blocks_total",
		Help: "Total number of requests refused during a cooldown, by platform",
	}, []string{"platform"})
)

// Tracker stores throttle cooldowns in Redis and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the throttle state of a platform.
// Returns an unblocked state if nothing is recorded.
func (t *Tracker) GetState(ctx context.Context, platform string) (*ThrottleState, error) {
	data, err := t.redis.Get(ctx, RedisKey(platform)).Bytes()
	if err == redis.Nil {
		return &ThrottleState{Platform: platform}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get throttle state: %w", err)
	}

	var state ThrottleState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse throttle state: %w", err)
	}
	return &state, nil
}

// RecordThrottle stores a cooldown for the platform. The key expires with the
// cooldown, so Redis never holds stale blocks.
func (t *Tracker) RecordThrottle(ctx context.Context, platform string, status int, cooldown time.Duration) error {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	now := t.now()
	state := ThrottleState{
		Platform:     platform,
		BlockedUntil: now.Add(cooldown),
		LastStatus:   status,
		LastUpdate:   now,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal throttle state: %w", err)
	}
	if err := t.redis.Set(ctx, RedisKey(platform), data, cooldown).Err(); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}

	throttleCooldownsTotal.WithLabelValues(platform).Inc()
	t.logger.Warn().
		Str("platform", platform).
		Int("status", status).
		Dur("cooldown", cooldown).
		Time("blocked_until", state.BlockedUntil).
		Msg("Upstream throttled, cooldown recorded")

	return nil
}

// UpdateFromResponse records a cooldown when resp is a 429.
// Other responses leave the state untouched.
func (t *Tracker) UpdateFromResponse(ctx context.Context, platform string, resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	cooldown := ParseRetryAfter(resp.Header.Get("Retry-After"), t.now())
	return t.RecordThrottle(ctx, platform, resp.StatusCode, cooldown)
}

// ShouldAllowRequest reports whether a request to platform may be sent.
// When it returns false, the returned duration is the remaining cooldown.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, platform string) (bool, time.Duration, error) {
	state, err := t.GetState(ctx, platform)
	if err != nil {
		return false, 0, fmt.Errorf("get throttle state: %w", err)
	}

	if state.IsBlocked(t.now()) {
		remaining := state.BlockedUntil.Sub(t.now())
		t.logger.Warn().
			Str("platform", platform).
			Dur("remaining", remaining).
			Msg("Cooldown active - refusing request")
		throttleBlocksTotal.WithLabelValues(platform).Inc()
		return false, remaining, nil
	}

	return true, 0, nil
}

// Clear removes any recorded cooldown of a platform.
func (t *Tracker) Clear(ctx context.Context, platform string) error {
	if err := t.redis.Del(ctx, RedisKey(platform)).Err(); err != nil {
		return fmt.Errorf("clear throttle state: %w", err)
	}
	return nil
}
