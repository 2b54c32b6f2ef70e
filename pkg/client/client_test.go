package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/connsync/internal/testutil"
	"github.com/Sternrassler/connsync/pkg/credentials"
	"github.com/Sternrassler/connsync/pkg/pagination"
	"github.com/Sternrassler/connsync/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var testBundle = &credentials.Bundle{Cookie: "li_at=abc; JSESSIONID=\"ajax:1\"", CSRFToken: "ajax:1"}

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, baseURL string, redisClient *redis.Client) *Client {
	t.Helper()
	cfg := DefaultConfig("connsync-test/1.0")
	cfg.BaseURL = baseURL
	cfg.Redis = redisClient
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "empty user agent",
			mutate:      func(c *Config) { c.UserAgent = "" },
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "empty platform",
			mutate:      func(c *Config) { c.Platform = "" },
			expectError: true,
			errorMsg:    "platform is required",
		},
		{
			name:        "negative timeout",
			mutate:      func(c *Config) { c.HTTPTimeout = -time.Second },
			expectError: true,
			errorMsg:    "http_timeout must be >= 0 (got -1s)",
		},
		{
			name:        "relative base url",
			mutate:      func(c *Config) { c.BaseURL = "/voyager" },
			expectError: true,
			errorMsg:    `invalid base url "/voyager"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("connsync-test/1.0")
			tt.mutate(&cfg)

			client, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("connsync/1.0")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Platform != DefaultPlatform {
		t.Errorf("Platform = %q", cfg.Platform)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.Redis != nil {
		t.Error("Throttle gate should be off by default")
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{"network error", 0, io.EOF, ErrorClassNetwork},
		{"client error 401", 401, nil, ErrorClassClient},
		{"client error 403", 403, nil, ErrorClassClient},
		{"rate limit 429", 429, nil, ErrorClassRateLimit},
		{"server error 500", 500, nil, ErrorClassServer},
		{"server error 503", 503, nil, ErrorClassServer},
		{"redirect", 302, nil, ErrorClassClient},
		{"success 200", 200, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			if got := client.classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchPage_RequestShape(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		if r.URL.Path != ListingPath {
			t.Errorf("path = %q, want %q", r.URL.Path, ListingPath)
		}
		for name, want := range map[string]string{
			"cookie":     testBundle.Cookie,
			"csrf-token": testBundle.CSRFToken,
			"Accept":     "application/json",
			"User-Agent": "connsync-test/1.0",
		} {
			if got := r.Header.Get(name); got != want {
				t.Errorf("header %s = %q, want %q", name, got, want)
			}
		}
		w.Write([]byte(`{"elements": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	cursor := pagination.Cursor{Start: 80, PageSize: 40}

	if _, err := client.FetchPage(context.Background(), cursor, testBundle); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	want := map[string]string{
		"decorationId": DecorationID,
		"count":        "40",
		"q":            "search",
		"sortType":     "RECENTLY_ADDED",
		"start":        "80",
	}
	for key, value := range want {
		if got := query[key]; len(got) != 1 || got[0] != value {
			t.Errorf("query %s = %v, want %q", key, got, value)
		}
	}
}

func TestFetchPage_DecodesItems(t *testing.T) {
	mock := testutil.NewMockListing(
		testutil.Element{CreatedAt: int64(1700000000000), FirstName: "Ada", LastName: "Lovelace", Headline: "Analyst"},
		testutil.Element{CreatedAt: "urn:1", FirstName: "Grace"},
		testutil.Element{CreatedAt: 7, NoMember: true},
	)
	defer mock.Close()

	client := newTestClient(t, mock.URL(), nil)
	page, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if page.Exhausted {
		t.Error("Page with items must not be exhausted")
	}
	if len(page.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(page.Items))
	}

	first := page.Items[0]
	if string(first.CreatedAt) != "1700000000000" {
		t.Errorf("CreatedAt = %s", first.CreatedAt)
	}
	if first.Member == nil || first.Member.FirstName != "Ada" || first.Member.Headline != "Analyst" {
		t.Errorf("Member = %+v", first.Member)
	}
	if string(page.Items[1].CreatedAt) != `"urn:1"` {
		t.Errorf("string createdAt = %s", page.Items[1].CreatedAt)
	}
	if page.Items[2].Member != nil {
		t.Error("Element without member must decode with a nil Member")
	}
}

func TestFetchPage_Exhausted(t *testing.T) {
	bodies := []string{`{"elements": []}`, `{}`, `{"elements": null}`}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, nil)
			page, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle)
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if !page.Exhausted || len(page.Items) != 0 {
				t.Errorf("page = %+v, want exhausted", page)
			}
		})
	}
}

func TestFetchPage_UndecodableElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements": [{"createdAt": 5, "connectedMemberResolutionResult": {"firstName": 12}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	page, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(page.Items))
	}
	if page.Items[0].Member != nil {
		t.Error("Undecodable member must be dropped")
	}
	if string(page.Items[0].CreatedAt) != "5" {
		t.Errorf("CreatedAt = %s, want 5", page.Items[0].CreatedAt)
	}
}

func TestFetchPage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		resp     testutil.MockResponse
		status   int
		expected ErrorClass
	}{
		{"unauthorized", testutil.NewUnauthorizedResponse(), 401, ErrorClassClient},
		{"server error", testutil.NewServerErrorResponse(), 500, ErrorClassServer},
		{"rate limit", testutil.NewRateLimitResponse(""), 429, ErrorClassRateLimit},
		{"malformed body", testutil.NewMalformedResponse(), 200, ErrorClassDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockListing(testutil.People(2, 10)...)
			defer mock.Close()
			mock.FailAt(0, tt.resp)

			client := newTestClient(t, mock.URL(), nil)
			_, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle)

			var rre *RemoteRequestError
			if !errors.As(err, &rre) {
				t.Fatalf("error = %v, want *RemoteRequestError", err)
			}
			if rre.ErrorClass != tt.expected {
				t.Errorf("ErrorClass = %q, want %q", rre.ErrorClass, tt.expected)
			}
			if rre.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", rre.StatusCode, tt.status)
			}
			if mock.GetRequestCount() != 1 {
				t.Errorf("RequestCount = %d, want 1 (no retry)", mock.GetRequestCount())
			}
		})
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url, nil)
	_, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle)

	var rre *RemoteRequestError
	if !errors.As(err, &rre) || rre.ErrorClass != ErrorClassNetwork {
		t.Fatalf("error = %v, want network RemoteRequestError", err)
	}
	if rre.Err == nil {
		t.Error("Network error should wrap the transport error")
	}
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchPage(ctx, pagination.NewCursor(40), testBundle)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped context.DeadlineExceeded", err)
	}
}

func TestFetchPage_NoCredentials(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", nil)

	for _, bundle := range []*credentials.Bundle{nil, {}, {Cookie: "  ", CSRFToken: "x"}} {
		if _, err := client.FetchPage(context.Background(), pagination.NewCursor(40), bundle); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("FetchPage(%+v) error = %v, want ErrNoCredentials", bundle, err)
		}
	}
}

func TestFetchPage_BaseURLWithPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"elements": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/proxy/", nil)
	if _, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if !strings.HasPrefix(gotPath, "/proxy/voyager/") {
		t.Errorf("path = %q, want /proxy prefix", gotPath)
	}
}

func TestFetchPage_ThrottleGate(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockListing(testutil.People(5, 100)...)
	defer mock.Close()
	mock.FailAt(0, testutil.NewRateLimitResponse("120"))

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	_, err := client.FetchPage(ctx, pagination.NewCursor(40), testBundle)
	if !IsRateLimited(err) {
		t.Fatalf("first error = %v, want rate limit", err)
	}

	// The cooldown now refuses the next request without touching the network.
	_, err = client.FetchPage(ctx, pagination.NewCursor(40), testBundle)
	if !IsRateLimited(err) {
		t.Fatalf("second error = %v, want rate limit", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.GetRequestCount())
	}

	raw, err := redisClient.Get(ctx, ratelimit.RedisKey(DefaultPlatform)).Bytes()
	if err != nil {
		t.Fatalf("throttle state missing: %v", err)
	}
	var state ratelimit.ThrottleState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatal(err)
	}
	if d := time.Until(state.BlockedUntil); d < 100*time.Second || d > 120*time.Second {
		t.Errorf("cooldown = %v, want about 120s", d)
	}
}

func TestFetchPage_ThrottleGateFailsOpen(t *testing.T) {
	mock := testutil.NewMockListing(testutil.People(2, 100)...)
	defer mock.Close()

	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer unreachable.Close()

	client := newTestClient(t, mock.URL(), unreachable)
	page, err := client.FetchPage(context.Background(), pagination.NewCursor(40), testBundle)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(page.Items))
	}
}
