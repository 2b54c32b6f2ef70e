// Package config loads connsync settings from CONNSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "CONNSYNC_"

// Config holds the process configuration.
type Config struct {
	DataDir  string `validate:"required"`
	RedisURL string `validate:"omitempty,url"`

	// CredentialSource selects where bundles are read from: file or redis.
	CredentialSource string `validate:"oneof=file redis"`

	// EventSink selects where notifications go: store (append in-process),
	// redis (queue for connsync consume) or both.
	EventSink string `validate:"oneof=store redis both"`

	LogLevel  string `validate:"oneof=debug info warn warning error"`
	LogPretty bool

	BaseURL   string `validate:"required,url"`
	Platform  string `validate:"required"`
	UserAgent string `validate:"required"`

	PageSize          int           `validate:"gte=1,lte=100"`
	PageDelay         time.Duration `validate:"gte=0"`
	StopAfterExisting int           `validate:"gte=1"`

	PollInterval      time.Duration `validate:"gt=0"`
	CredentialTimeout time.Duration `validate:"gte=0"`
	HTTPTimeout       time.Duration `validate:"gte=0"`

	Addr string `validate:"required,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:           filepath.Join(xdg.DataHome, "connsync"),
		CredentialSource:  "file",
		EventSink:         "store",
		LogLevel:          "info",
		BaseURL:           "https://www.linkedin.com",
		Platform:          "linkedin",
		UserAgent:         "connsync/0.1.0",
		PageSize:          40,
		PageDelay:         1 * time.Second,
		StopAfterExisting: 3,
		PollInterval:      500 * time.Millisecond,
		CredentialTimeout: 5 * time.Minute,
		HTTPTimeout:       30 * time.Second,
		Addr:              ":8080",
	}
}

// Load reads the environment over Default and validates the result.
func Load() (Config, error) {
	cfg := Default()
	e := env{prefix: EnvPrefix}

	cfg.DataDir = e.string("DATA_DIR", cfg.DataDir)
	cfg.RedisURL = e.string("REDIS_URL", cfg.RedisURL)
	cfg.CredentialSource = strings.ToLower(e.string("CREDENTIAL_SOURCE", cfg.CredentialSource))
	cfg.EventSink = strings.ToLower(e.string("EVENT_SINK", cfg.EventSink))
	cfg.LogLevel = strings.ToLower(e.string("LOG_LEVEL", cfg.LogLevel))
	cfg.LogPretty = e.bool("LOG_PRETTY", cfg.LogPretty)
	cfg.BaseURL = e.string("BASE_URL", cfg.BaseURL)
	cfg.Platform = e.string("PLATFORM", cfg.Platform)
	cfg.UserAgent = e.string("USER_AGENT", cfg.UserAgent)
	cfg.PageSize = e.int("PAGE_SIZE", cfg.PageSize)
	cfg.PageDelay = e.duration("PAGE_DELAY", cfg.PageDelay)
	cfg.StopAfterExisting = e.int("STOP_AFTER_EXISTING", cfg.StopAfterExisting)
	cfg.PollInterval = e.duration("POLL_INTERVAL", cfg.PollInterval)
	cfg.CredentialTimeout = e.duration("CREDENTIAL_TIMEOUT", cfg.CredentialTimeout)
	cfg.HTTPTimeout = e.duration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.Addr = e.string("ADDR", cfg.Addr)

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrRedisRequired is returned when a Redis-backed feature is selected without a Redis URL.
var ErrRedisRequired = errors.New("redis url required")

// Validate checks value ranges and formats.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RedisURL == "" && (c.CredentialSource == "redis" || c.EventSink != "store") {
		return fmt.Errorf("invalid config: %w for credential source %q and event sink %q",
			ErrRedisRequired, c.CredentialSource, c.EventSink)
	}
	return nil
}

// env is a namespaced view over environment variables that collects parse errors.
type env struct {
	prefix string
	errs   []error
}

func (e *env) lookup(key string) (string, string, bool) {
	k := e.prefix + key
	v := strings.TrimSpace(os.Getenv(k))
	return k, v, v != ""
}

func (e *env) string(key, def string) string {
	if _, v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	k, v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid int %q", k, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	k, v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid bool %q", k, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	k, v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q (e.g. 250ms, 2s, 1h)", k, v))
		return def
	}
	return d
}
