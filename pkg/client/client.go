// Package client fetches pages of the remote connections listing.
//
// Every request carries the session cookie and CSRF token of a credentials
// Bundle. Requests are never retried: any non-2xx response, transport failure
// or undecodable body is returned as a *RemoteRequestError and ends the run.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/connsync/pkg/credentials"
	"github.com/Sternrassler/connsync/pkg/pagination"
	"github.com/Sternrassler/connsync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for listing requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_requests_total",
		Help: "Total listing requests by platform and status",
	}, []string{"platform", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connsync_request_duration_seconds",
		Help:    "Listing request duration in seconds by platform",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"platform"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connsync_errors_total",
		Help: "Total listing request errors by class",
	}, []string{"class"})
)

// Listing endpoint constants.
const (
	DefaultBaseURL  = "https://www.linkedin.com"
	DefaultPlatform = "linkedin"
	ListingPath     = "/voyager/api/relationships/dash/connections"
	DecorationID    = "com.linkedin.voyager.dash.deco.web.mynetwork.ConnectionListWithProfile-15"
)

// maxBodyBytes bounds the size of a listing response body.
const maxBodyBytes = 16 << 20

// MemberResult is the resolved member of a connection.
type MemberResult struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Headline  string `json:"headline"`
}

// RawItem is one listing element as received. Member is nil when the element
// carries no (decodable) connectedMemberResolutionResult.
type RawItem struct {
	CreatedAt json.RawMessage `json:"createdAt"`
	Member    *MemberResult   `json:"connectedMemberResolutionResult"`
}

// Page is one window of the listing.
type Page struct {
	Cursor pagination.Cursor
	Items  []RawItem

	// Exhausted is true iff the page carried no elements.
	Exhausted bool
}

// Client fetches listing pages.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	baseURL     *url.URL
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the platform, without trailing path.
	BaseURL string

	// Platform names the listing for metrics, logs and the throttle gate.
	Platform string

	// UserAgent header sent with every request.
	UserAgent string

	// HTTPTimeout bounds a single request. Zero disables the client timeout;
	// the request context still applies.
	HTTPTimeout time.Duration

	// Redis enables the shared throttle gate when set.
	Redis *redis.Client
}

// DefaultConfig returns a default configuration without a throttle gate.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Platform:    DefaultPlatform,
		UserAgent:   userAgent,
		HTTPTimeout: 30 * time.Second,
	}
}

// New creates a new listing client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Platform == "" {
		return nil, fmt.Errorf("platform is required")
	}

	if cfg.HTTPTimeout < 0 {
		return nil, fmt.Errorf("http_timeout must be >= 0 (got %s)", cfg.HTTPTimeout)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	logger := log.With().Str("component", "listing-client").Str("platform", cfg.Platform).Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return c, nil
}

// Platform returns the configured platform name.
func (c *Client) Platform() string {
	return c.config.Platform
}

// FetchPage requests the window described by cursor.
func (c *Client) FetchPage(ctx context.Context, cursor pagination.Cursor, bundle *credentials.Bundle) (*Page, error) {
	if !bundle.Usable() {
		return nil, ErrNoCredentials
	}

	platform := c.config.Platform
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(platform).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check the shared throttle gate. Gate failures fail open.
	if c.rateLimiter != nil {
		allowed, remaining, err := c.rateLimiter.ShouldAllowRequest(ctx, platform)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Throttle gate unavailable, sending request")
		} else if !allowed {
			requestsTotal.WithLabelValues(platform, "throttled").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &RemoteRequestError{
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    fmt.Sprintf("cooldown active for %s", remaining.Round(time.Second)),
			}
		}
	}

	// Step 2: Build the request.
	req, err := c.newRequest(ctx, cursor, bundle)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("start", cursor.Start).
		Int("page_size", cursor.PageSize).
		Msg("Fetching listing page")

	// Step 3: Execute.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(platform, "network_error").Inc()
		return nil, &RemoteRequestError{
			ErrorClass: errClass,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(platform, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: Handle HTTP errors.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromResponse(ctx, platform, resp); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record throttle cooldown")
			}
		}

		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &RemoteRequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	// Step 5: Decode.
	items, err := decodeListing(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &RemoteRequestError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "malformed listing body",
			Err:        err,
		}
	}

	return &Page{
		Cursor:    cursor,
		Items:     items,
		Exhausted: len(items) == 0,
	}, nil
}

// newRequest builds the listing GET request for cursor.
func (c *Client) newRequest(ctx context.Context, cursor pagination.Cursor, bundle *credentials.Bundle) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + ListingPath

	q := url.Values{}
	q.Set("decorationId", DecorationID)
	q.Set("q", "search")
	q.Set("sortType", "RECENTLY_ADDED")
	cursor.Apply(q)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("cookie", bundle.Cookie)
	req.Header.Set("csrf-token", bundle.CSRFToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	return req, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	case resp.StatusCode >= 300:
		return ErrorClassClient
	default:
		return ""
	}
}

// decodeListing parses the elements of a listing body. A missing or null
// elements field yields an empty page. Elements that cannot be decoded are
// returned without a member so the caller skips them.
func decodeListing(r io.Reader) ([]RawItem, error) {
	var body struct {
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, err
	}

	items := make([]RawItem, 0, len(body.Elements))
	for _, raw := range body.Elements {
		var item RawItem
		if err := json.Unmarshal(raw, &item); err != nil {
			item = RawItem{CreatedAt: createdAtOf(raw)}
		}
		items = append(items, item)
	}
	return items, nil
}

// createdAtOf extracts createdAt from an element that failed to decode as a whole.
func createdAtOf(raw json.RawMessage) json.RawMessage {
	var partial map[string]json.RawMessage
	if err := json.Unmarshal(raw, &partial); err != nil {
		return nil
	}
	return bytes.TrimSpace(partial["createdAt"])
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
