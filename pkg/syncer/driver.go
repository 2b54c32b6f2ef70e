package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/connsync/pkg/client"
	"github.com/Sternrassler/connsync/pkg/credentials"
	"github.com/Sternrassler/connsync/pkg/events"
	"github.com/Sternrassler/connsync/pkg/logging"
	"github.com/Sternrassler/connsync/pkg/pagination"
	"github.com/Sternrassler/connsync/pkg/ratelimit"
	"github.com/Sternrassler/connsync/pkg/records"
	"github.com/rs/zerolog"
)

// DefaultStopAfterExisting is the number of consecutive already-captured
// records that ends a run.
const DefaultStopAfterExisting = 3

// Fetcher fetches one listing page.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor pagination.Cursor, bundle *credentials.Bundle) (*client.Page, error)
}

// ExistenceChecker reports whether a record is already captured. It must fail
// open: any read problem is reported as false.
type ExistenceChecker interface {
	Exists(ctx context.Context, scope records.Scope, key records.Key) bool
}

// CredentialWaiter blocks until session credentials are available.
type CredentialWaiter interface {
	Await(ctx context.Context, session credentials.Session) (*credentials.Bundle, error)
}

// Config holds the driver dependencies and tuning.
type Config struct {
	Fetcher  Fetcher
	Store    ExistenceChecker
	Waiter   CredentialWaiter
	Notifier events.Notifier

	// PageSize is the listing window per request.
	PageSize int

	// PageDelay is the pause between two pages.
	PageDelay time.Duration

	// StopAfterExisting ends a run after this many consecutive duplicates.
	StopAfterExisting int
}

// DefaultConfig returns the default tuning without dependencies.
func DefaultConfig() Config {
	return Config{
		PageSize:          pagination.DefaultPageSize,
		PageDelay:         1 * time.Second,
		StopAfterExisting: DefaultStopAfterExisting,
	}
}

// Driver executes runs. It holds no per-run state and is safe for concurrent
// runs on different scopes.
type Driver struct {
	config Config
	logger zerolog.Logger
}

// New creates a driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Waiter == nil {
		return nil, fmt.Errorf("credential waiter is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}
	if cfg.PageDelay < 0 {
		return nil, fmt.Errorf("page_delay must be >= 0 (got %s)", cfg.PageDelay)
	}
	if cfg.StopAfterExisting < 1 {
		return nil, fmt.Errorf("stop_after_existing must be >= 1 (got %d)", cfg.StopAfterExisting)
	}

	return &Driver{
		config: cfg,
		logger: logging.NewLogger("syncer"),
	}, nil
}

// run is the mutable state of one run.
type run struct {
	req    RunRequest
	scope  records.Scope
	result Result
	logger zerolog.Logger

	// consecutiveExisting counts duplicates since the last new record.
	consecutiveExisting int
}

// setState moves the run to s and publishes the result to the request's
// progress hook.
func (r *run) setState(s State) {
	r.result.State = s
	if r.req.Progress != nil {
		r.req.Progress(r.result)
	}
}

// Run executes one run to completion. The returned error is nil iff the
// result status is RUN_COMPLETE.
func (d *Driver) Run(ctx context.Context, req RunRequest) (Result, error) {
	r := &run{
		req:    req,
		scope:  records.Scope{Tenant: req.Tenant, Subject: req.Subject, Platform: req.Platform},
		result: Result{RunID: req.RunID, State: StateAwaitingCredentials, StartedAt: time.Now()},
		logger: logging.ForRun(d.logger, req.RunID, req.Platform, req.Tenant, req.Subject),
	}

	if err := req.Validate(); err != nil {
		return d.fail(r, err)
	}
	if err := r.scope.Validate(); err != nil {
		return d.fail(r, errors.Join(ErrInvalidRequest, err))
	}

	runsActive.Inc()
	defer runsActive.Dec()
	defer func() {
		runDuration.WithLabelValues(req.Platform).Observe(time.Since(r.result.StartedAt).Seconds())
	}()

	r.logger.Info().Bool("on_site", req.OnSite).Msg("Run started")

	bundle, err := d.config.Waiter.Await(ctx, credentials.Session{
		Tenant:  req.Tenant,
		Subject: req.Subject,
		OnSite:  req.OnSite,
	})
	if err != nil {
		return d.fail(r, fmt.Errorf("await credentials: %w", err))
	}
	r.logger.Info().Msg("Credentials obtained")

	cursor := pagination.NewCursor(d.config.PageSize)
	for {
		r.setState(StateFetchingPage)

		page, err := d.config.Fetcher.FetchPage(ctx, cursor, bundle)
		if err != nil {
			return d.fail(r, fmt.Errorf("fetch page %s: %w", cursor, err))
		}
		r.result.Pages++
		pagesTotal.WithLabelValues(req.Platform).Inc()

		r.logger.Info().
			Int("start", cursor.Start).
			Int("page_size", cursor.PageSize).
			Int("items", len(page.Items)).
			Msg("Page fetched")

		if page.Exhausted {
			return d.complete(ctx, r, StopExhausted)
		}

		r.setState(StateProcessingItems)
		stop, err := d.processPage(ctx, r, page.Items)
		if err != nil {
			return d.fail(r, err)
		}
		if stop {
			return d.complete(ctx, r, StopDuplicateStreak)
		}

		cursor = cursor.Next()
		if err := ratelimit.Wait(ctx, d.config.PageDelay); err != nil {
			return d.fail(r, fmt.Errorf("page delay: %w", err))
		}
	}
}

// processPage handles the items of one page in arrival order. It reports
// true as soon as the duplicate streak reaches the threshold; the remaining
// items of the page are not inspected.
func (d *Driver) processPage(ctx context.Context, r *run, items []client.RawItem) (bool, error) {
	for _, item := range items {
		rec, ok := Normalize(item)
		if !ok {
			r.result.Skipped++
			itemsTotal.WithLabelValues(r.req.Platform, "skipped").Inc()
			continue
		}
		r.result.Inspected++

		if d.config.Store.Exists(ctx, r.scope, rec.Key()) {
			r.consecutiveExisting++
			r.result.Duplicates++
			itemsTotal.WithLabelValues(r.req.Platform, "duplicate").Inc()
			r.logger.Debug().
				Str("created_at", string(rec.CreatedAt)).
				Str("first_name", rec.FirstName).
				Int("consecutive_existing", r.consecutiveExisting).
				Msg("Record already captured")

			if r.consecutiveExisting >= d.config.StopAfterExisting {
				return true, nil
			}
			continue
		}

		r.consecutiveExisting = 0

		data, err := json.Marshal(rec)
		if err != nil {
			return false, fmt.Errorf("marshal record: %w", err)
		}
		if err := d.config.Notifier.RecordAdded(ctx, events.RecordAdded{
			Tenant:   r.req.Tenant,
			Subject:  r.req.Subject,
			Platform: r.req.Platform,
			Record:   data,
			RunID:    r.req.RunID,
		}); err != nil {
			return false, fmt.Errorf("notify record added: %w", err)
		}

		r.result.Appended++
		itemsTotal.WithLabelValues(r.req.Platform, "new").Inc()
		r.logger.Debug().
			Str("created_at", string(rec.CreatedAt)).
			Str("first_name", rec.FirstName).
			Msg("New record")
	}
	return false, nil
}

// complete sends the completion notification and finalizes the result.
func (d *Driver) complete(ctx context.Context, r *run, reason StopReason) (Result, error) {
	r.result.StopReason = reason

	if err := d.config.Notifier.RunComplete(ctx, events.RunCompleted{
		RunID:    r.req.RunID,
		Platform: r.req.Platform,
		Tenant:   r.req.Tenant,
		Subject:  r.req.Subject,
	}); err != nil {
		r.result.StopReason = ""
		return d.fail(r, fmt.Errorf("notify run complete: %w", err))
	}

	r.result.Status = StatusComplete
	r.result.FinishedAt = time.Now()
	r.setState(StateCompleted)
	runsTotal.WithLabelValues(r.req.Platform, string(StatusComplete)).Inc()

	r.logger.Info().
		Str("stop_reason", string(reason)).
		Int("pages", r.result.Pages).
		Int("inspected", r.result.Inspected).
		Int("appended", r.result.Appended).
		Int("duplicates", r.result.Duplicates).
		Int("skipped", r.result.Skipped).
		Msg("Run completed")

	return r.result, nil
}

// fail finalizes a failed run. No completion notification is sent.
func (d *Driver) fail(r *run, err error) (Result, error) {
	r.result.Status = StatusFailed
	r.result.Error = err.Error()
	r.result.FinishedAt = time.Now()
	r.setState(StateFailed)
	runsTotal.WithLabelValues(r.req.Platform, string(StatusFailed)).Inc()

	event := r.logger.Error().Err(err).Int("pages", r.result.Pages).Int("appended", r.result.Appended)
	var rre *client.RemoteRequestError
	if errors.As(err, &rre) {
		event = event.Int("status", rre.StatusCode).Str("error_class", string(rre.ErrorClass))
	}
	event.Msg("Run failed")

	return r.result, err
}
