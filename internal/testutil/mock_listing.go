// Package testutil provides testing utilities for the connection sync engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ListingPath is the path served by MockListing.
const ListingPath = "/voyager/api/relationships/dash/connections"

// Element is one connection served by MockListing.
type Element struct {
	// CreatedAt is encoded as-is (number, string or nil).
	CreatedAt any

	FirstName string
	LastName  string
	Headline  string

	// NoMember omits connectedMemberResolutionResult entirely.
	NoMember bool
}

// MarshalJSON renders the element in the upstream listing shape.
func (e Element) MarshalJSON() ([]byte, error) {
	out := map[string]any{"createdAt": e.CreatedAt}
	if !e.NoMember {
		out["connectedMemberResolutionResult"] = map[string]string{
			"firstName": e.FirstName,
			"lastName":  e.LastName,
			"headline":  e.Headline,
		}
	}
	return json.Marshal(out)
}

// MockResponse defines a canned non-listing response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockListing is an httptest server that pages through a fixed connection list
// sorted newest first, honoring the start and count query parameters.
type MockListing struct {
	server   *httptest.Server
	mu       sync.RWMutex
	elements []Element
	failures map[int]MockResponse

	// Tracking
	RequestCount      int
	Starts            []int
	LastRequestHeader http.Header
}

// NewMockListing creates a mock listing serving elements.
func NewMockListing(elements ...Element) *MockListing {
	mock := &MockListing{
		elements: elements,
		failures: make(map[int]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockListing) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockListing) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockListing) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Starts = nil
	m.LastRequestHeader = nil
}

// SetElements replaces the served connection list.
func (m *MockListing) SetElements(elements ...Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elements = elements
}

// FailAt makes requests for the given start offset return resp.
func (m *MockListing) FailAt(start int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[start] = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockListing) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetStarts returns the start offsets requested so far, in order.
func (m *MockListing) GetStarts() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.Starts...)
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockListing) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockListing) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ListingPath {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	start, err := strconv.Atoi(q.Get("start"))
	if err != nil || start < 0 {
		http.Error(w, "bad start", http.StatusBadRequest)
		return
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count <= 0 {
		http.Error(w, "bad count", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.RequestCount++
	m.Starts = append(m.Starts, start)
	m.LastRequestHeader = r.Header.Clone()
	failure, failing := m.failures[start]
	var page []Element
	if start < len(m.elements) {
		end := start + count
		if end > len(m.elements) {
			end = len(m.elements)
		}
		page = append(page, m.elements[start:end]...)
	}
	m.mu.Unlock()

	if failing {
		writeResponse(w, failure)
		return
	}

	if page == nil {
		page = []Element{}
	}
	body, err := json.Marshal(map[string]any{
		"elements": page,
		"paging":   map[string]int{"start": start, "count": count},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// People returns n distinct elements, newest first. Element i has
// createdAt = base - i and first name "Person<i>".
func People(n int, base int64) []Element {
	out := make([]Element, n)
	for i := range out {
		out[i] = Element{
			CreatedAt: base - int64(i),
			FirstName: fmt.Sprintf("Person%d", i),
			LastName:  fmt.Sprintf("Last%d", i),
			Headline:  "Engineer",
		}
	}
	return out
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status": 429}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status": 500}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewUnauthorizedResponse creates a 401 response as sent for expired sessions.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"status": 401}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not valid JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"elements": [`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
