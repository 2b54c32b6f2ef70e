// Package ratelimit implements the upstream throttle gate and request pacing.
//
// A 429 from the listing API records a cooldown for the platform in Redis.
// While the cooldown is active every client sharing that Redis refuses to
// send requests for the platform, so parallel or back-to-back runs do not
// keep hammering an upstream that already asked them to back off.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPrefix is the key prefix of per-platform throttle state.
const RedisKeyPrefix = "connsync:throttle"

// DefaultCooldown applies when a 429 carries no usable Retry-After header.
const DefaultCooldown = 60 * time.Second

// MaxCooldown caps Retry-After values.
const MaxCooldown = 1 * time.Hour

// RedisKey returns the Redis key of the throttle state of a platform.
func RedisKey(platform string) string {
	return RedisKeyPrefix + ":" + platform
}

// ThrottleState is the shared throttle state of one platform.
type ThrottleState struct {
	// Platform the state belongs to.
	Platform string `json:"platform"`

	// BlockedUntil is the end of the current cooldown. Zero means never throttled.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the HTTP status that caused the cooldown.
	LastStatus int `json:"last_status"`

	// LastUpdate is when the state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether requests must be refused at now.
func (s *ThrottleState) IsBlocked(now time.Time) bool {
	if s == nil {
		return false
	}
	return now.Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining cooldown, or 0 once it has passed.
func (s *ThrottleState) TimeUntilUnblocked() time.Duration {
	if s == nil {
		return 0
	}
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge.
func (s *ThrottleState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// ParseRetryAfter converts a Retry-After header value (delta seconds or an
// HTTP date) into a cooldown. Missing, invalid or non-positive values yield
// DefaultCooldown; values above MaxCooldown are capped.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultCooldown
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	} else {
		return DefaultCooldown
	}

	switch {
	case d <= 0:
		return DefaultCooldown
	case d > MaxCooldown:
		return MaxCooldown
	}
	return d
}
