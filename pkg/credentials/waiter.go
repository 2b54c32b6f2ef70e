package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for credential waits.
var (
	credentialWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connsync_credential_wait_seconds",
		Help:    "Time spent waiting for session credentials by outcome",
		Buckets: []float64{0.01, 0.5, 1, 5, 15, 60, 300},
	}, []string{"outcome"})

	credentialRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_credential_requests_total",
		Help: "Credential acquisition requests sent by result",
	}, []string{"result"})
)

// ErrCredentialsTimeout is returned when no bundle was published within the timeout.
var ErrCredentialsTimeout = errors.New("timed out waiting for credentials")

// DefaultSiteURL is the root the hosting session is asked to navigate to.
const DefaultSiteURL = "https://www.linkedin.com/"

// Config holds the waiter configuration.
type Config struct {
	// PollInterval is the delay between two source probes.
	PollInterval time.Duration

	// Timeout bounds the whole wait. Zero leaves only the context as a bound.
	Timeout time.Duration

	// SiteURL is sent with acquisition requests.
	SiteURL string
}

// DefaultConfig returns the default waiter configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		Timeout:      5 * time.Minute,
		SiteURL:      DefaultSiteURL,
	}
}

// Waiter blocks until session credentials are available.
type Waiter struct {
	source    Source
	requester Requester
	config    Config
	logger    zerolog.Logger
}

// NewWaiter creates a waiter. A nil requester falls back to LogRequester.
func NewWaiter(source Source, requester Requester, cfg Config) (*Waiter, error) {
	if source == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be > 0 (got %s)", cfg.PollInterval)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = DefaultSiteURL
	}

	logger := log.With().Str("component", "credentials").Logger()
	if requester == nil {
		requester = LogRequester{Logger: logger}
	}

	return &Waiter{
		source:    source,
		requester: requester,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Await returns the bundle for the session, signalling the requester first
// when the session is not on the target site. It probes the source right away
// and then every PollInterval.
func (w *Waiter) Await(ctx context.Context, session Session) (*Bundle, error) {
	start := time.Now()
	logger := w.logger.With().
		Str("tenant", session.Tenant).
		Str("subject", session.Subject).
		Logger()

	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, w.config.Timeout, ErrCredentialsTimeout)
		defer cancel()
	}

	if !session.OnSite {
		w.request(ctx, logger, session)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		bundle, err := w.source.Load(ctx, session.Tenant, session.Subject)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Credential source unreadable, still waiting")
		case bundle.Usable():
			credentialWaitSeconds.WithLabelValues("obtained").Observe(time.Since(start).Seconds())
			logger.Info().
				Int("attempts", attempt).
				Dur("waited", time.Since(start)).
				Msg("Credentials obtained")
			return bundle, nil
		default:
			logger.Debug().Int("attempt", attempt).Msg("Credentials not yet available")
		}

		select {
		case <-ctx.Done():
			cause := context.Cause(ctx)
			if errors.Is(cause, ErrCredentialsTimeout) {
				credentialWaitSeconds.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
				logger.Error().Dur("timeout", w.config.Timeout).Msg("Gave up waiting for credentials")
				return nil, ErrCredentialsTimeout
			}
			credentialWaitSeconds.WithLabelValues("cancelled").Observe(time.Since(start).Seconds())
			logger.Warn().Err(cause).Msg("Credential wait cancelled")
			return nil, fmt.Errorf("await credentials: %w", cause)
		case <-ticker.C:
		}
	}
}

// request sends the acquisition signal; failures are logged and ignored.
func (w *Waiter) request(ctx context.Context, logger zerolog.Logger, session Session) {
	logger.Info().Str("url", w.config.SiteURL).Msg("Session not on site, requesting credentials")

	err := w.requester.RequestCredentials(ctx, Request{
		Tenant:  session.Tenant,
		Subject: session.Subject,
		URL:     w.config.SiteURL,
	})
	if err != nil {
		credentialRequestsTotal.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("Credential request signal failed")
		return
	}
	credentialRequestsTotal.WithLabelValues("sent").Inc()
}
