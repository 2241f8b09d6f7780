// Package client provides the upstream REST client used by the ingester:
// a list endpoint reporting the total record count and a detail endpoint
// per record id. Requests are classified and measured but never retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/metrics"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dexmirror_upstream_requests_total",
		Help: "Total upstream requests by endpoint kind and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dexmirror_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dexmirror_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Endpoint kinds used as metric labels. Using the kind instead of the path
// keeps label cardinality bounded.
const (
	endpointCount  = "count"
	endpointDetail = "detail"
)

// Client talks to the upstream API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://pokeapi.co/api/v2".
	BaseURL string

	// Resource is the collection path segment, e.g. "pokemon".
	Resource string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration
}

// DefaultConfig returns the configuration for the public PokeAPI.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   "https://pokeapi.co/api/v2",
		Resource:  "pokemon",
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new upstream client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.Resource == "" {
		return nil, fmt.Errorf("resource is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Resource = strings.Trim(cfg.Resource, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Count asks the list endpoint for the total number of records.
func (c *Client) Count(ctx context.Context) (int, error) {
	var list ListResponse
	if err := c.getJSON(ctx, endpointCount, c.config.Resource+"/", &list); err != nil {
		return 0, err
	}
	if list.Count < 0 {
		return 0, &UpstreamError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    fmt.Sprintf("negative count %d", list.Count),
		}
	}
	return list.Count, nil
}

// Detail fetches the detail document for one record id.
func (c *Client) Detail(ctx context.Context, id int64) (Detail, error) {
	var detail Detail
	path := c.config.Resource + "/" + strconv.FormatInt(id, 10)
	if err := c.getJSON(ctx, endpointDetail, path, &detail); err != nil {
		return Detail{}, err
	}
	return detail, nil
}

// getJSON performs a GET against path (relative to BaseURL) and decodes a
// 200 response into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	resp, err := c.Get(ctx, endpoint, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		c.logger.Warn().Err(err).Str("path", path).Msg("Upstream response could not be decoded")
		return &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response body",
			Err:        err,
		}
	}
	return nil
}

// Get performs a GET request against path. Any status other than 200 is
// returned as an *UpstreamError with the body already closed.
func (c *Client) Get(ctx context.Context, endpoint, path string) (*http.Response, error) {
	url := c.config.BaseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req, endpoint)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		errClass := c.classifyError(resp, nil)
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}
	return resp, nil
}

// Do executes req once, recording metrics and logging failures. The caller
// owns the response body.
func (c *Client) Do(req *http.Request, endpoint string) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("url", req.URL.String()).Msg("Upstream request failed")

		if ctxErr := req.Context().Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, &UpstreamError{
			ErrorClass: errClass,
			Message:    "request failed",
			Err:        err,
		}
	}

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := c.classifyError(resp, nil)
		upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("url", req.URL.String()).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	case resp.StatusCode != http.StatusOK:
		return ErrorClassUnexpected
	default:
		return ""
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
