// Package testutil provides testing utilities for dexmirror.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Resource is the collection path segment the mock serves.
const Resource = "pokemon"

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Entry is a synthetic upstream record.
type Entry struct {
	Name           string
	Height         int
	Weight         int
	Types          []string
	BaseExperience *int
	Sprite         *string
}

// MockUpstream is a configurable PokeAPI-shaped server for testing.
//
// GET /pokemon/ answers {"count": N} and GET /pokemon/{id} answers the
// detail document of the entry registered under id.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	entries  map[int64]Entry
	count    *int

	countRequests  int
	detailRequests map[int64]int
	lastHeader     http.Header
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		entries:        make(map[int64]Entry),
		detailRequests: make(map[int64]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.lastHeader = r.Header.Clone()
		id, isDetail := mock.track(r.URL.Path)
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		if isDetail {
			mock.detailHandler(w, id)
			return
		}
		if strings.Trim(r.URL.Path, "/") == Resource {
			mock.countHandler(w)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// track counts the request; the caller holds mu.
func (m *MockUpstream) track(path string) (int64, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == Resource {
		m.countRequests++
		return 0, false
	}

	rest, ok := strings.CutPrefix(trimmed, Resource+"/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	m.detailRequests[id]++
	return id, true
}

// URL returns the base URL to configure the client with.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countRequests = 0
	m.detailRequests = make(map[int64]int)
	m.lastHeader = nil
}

// AddEntry registers a record served under id.
func (m *MockUpstream) AddEntry(id int64, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = e
}

// SetCount overrides the count reported by the list endpoint. By default it
// is the number of registered entries.
func (m *MockUpstream) SetCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = &n
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
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
	})
}

// DetailPath returns the request path of the detail endpoint for id.
func DetailPath(id int64) string {
	return fmt.Sprintf("/%s/%d", Resource, id)
}

// CountPath returns the request path of the list endpoint.
func CountPath() string {
	return "/" + Resource + "/"
}

// CountRequests returns how often the list endpoint was called.
func (m *MockUpstream) CountRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countRequests
}

// DetailRequests returns how often the detail endpoint was called for id.
func (m *MockUpstream) DetailRequests(id int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detailRequests[id]
}

// TotalDetailRequests returns the number of detail calls across all ids.
func (m *MockUpstream) TotalDetailRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.detailRequests {
		total += n
	}
	return total
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockUpstream) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

func (m *MockUpstream) countHandler(w http.ResponseWriter) {
	m.mu.RLock()
	n := len(m.entries)
	if m.count != nil {
		n = *m.count
	}
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    n,
		"next":     nil,
		"previous": nil,
		"results":  []any{},
	})
}

func (m *MockUpstream) detailHandler(w http.ResponseWriter, id int64) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not Found"))
		return
	}

	writeJSON(w, http.StatusOK, DetailDocument(id, e))
}

// DetailDocument renders e the way the upstream detail endpoint does.
// A nil BaseExperience omits the field entirely.
func DetailDocument(id int64, e Entry) map[string]any {
	types := make([]any, 0, len(e.Types))
	for i, name := range e.Types {
		types = append(types, map[string]any{
			"slot": i + 1,
			"type": map[string]any{
				"name": name,
				"url":  fmt.Sprintf("https://pokeapi.co/api/v2/type/%s/", name),
			},
		})
	}

	doc := map[string]any{
		"id":     id,
		"name":   e.Name,
		"height": e.Height,
		"weight": e.Weight,
		"types":  types,
		"sprites": map[string]any{
			"front_default": e.Sprite,
			"back_default":  nil,
		},
	}
	if e.BaseExperience != nil {
		doc["base_experience"] = *e.BaseExperience
	}
	return doc
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// IntPtr and StrPtr help build optional Entry fields.
func IntPtr(v int) *int       { return &v }
func StrPtr(v string) *string { return &v }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
