// Package storeapi is a thin client for the remote store API. It attaches the
// bearer token held in Credentials to every call, reading it per call so a
// login or logout takes effect immediately. It never retries.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/requestid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 8 << 20

// Client is a typed client for the store API.
type Client struct {
	baseURL    string
	verifyPath string
	httpClient *http.Client
	creds      *Credentials
	limiter    *rate.Limiter
	metrics    *metrics.AppMetrics
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit caps outbound calls per second. rps <= 0 disables the cap.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithVerifyPath sets the path used to check a restored token.
func WithVerifyPath(path string) Option {
	return func(c *Client) { c.verifyPath = path }
}

// WithMetrics records call counts and latencies.
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API rooted at baseURL (including any /api prefix).
func New(baseURL string, creds *Credentials, opts ...Option) *Client {
	if creds == nil {
		creds = NewCredentials()
	}
	c := &Client{
		baseURL:    baseURL,
		verifyPath: "/auth/me",
		creds:      creds,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Credentials returns the holder whose token is attached to calls.
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// Send issues a request and decodes a JSON response into out (which may be nil).
// It fails with *models.NetworkError when no response arrived and
// *models.HTTPError when the API answered with a non-2xx status.
func (c *Client) Send(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, path, body, out, "")
}

// do is Send with a route label for metrics and an optional token that
// overrides the held credentials.
func (c *Client) do(ctx context.Context, method, route, path string, body, out any, token string) error {
	op := method + " " + route
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &models.NetworkError{Op: op, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, ok := requestid.FromContext(ctx); ok {
		req.Header.Set(requestid.Header, id)
	} else {
		req.Header.Set(requestid.Header, requestid.New())
	}

	// Computed per call so token changes apply immediately
	if token == "" {
		token = c.creds.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPICall(ctx, method, route, 0, start)
		c.logger.Warn("store api unreachable",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &models.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordAPICall(ctx, method, route, resp.StatusCode, start)

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &models.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &models.HTTPError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: models.ParseErrorBody(payload),
		}
		c.logger.Warn("store api rejected request",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", httpErr.Message),
		)
		return httpErr
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
	}
	return nil
}
