package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/handy/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Handy/1.0"
	// maxErrorBody bounds how much of an error response is kept for messages
	maxErrorBody = 4 << 10
)

// TokenSource supplies the bearer token. domain.SessionStore satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

// Config configures the backend client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is the sustained outbound request rate per second; <= 0 disables limiting
	RateLimit float64
	RateBurst int
}

// Client implements domain.Backend over the marketplace REST API
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu            sync.RWMutex
	onAuthFailure func(error)
}

var _ domain.Backend = (*Client)(nil)

// NewClient creates a new backend client
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// OnAuthFailure installs fn to run whenever a signed request is answered
// with 401 or 403
func (c *Client) OnAuthFailure(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// public requests are sent unsigned and never trigger the auth hook
	public         bool
	idempotencyKey string
}

// do performs the request and returns the response body of a 2xx reply.
// Failures come back as *domain.APIError.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL = reqURL + "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(ctx, err)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.idempotencyKey)
	}
	signed := false
	if !r.public && c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
			signed = true
		}
	}

	c.logger.Debug("api request", "method", r.method, "path", r.path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", r.method, "path", r.path, "error", err)
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	apiErr := classify(resp.StatusCode, respBody)
	c.logger.Warn("api request error", "method", r.method, "path", r.path, "status", resp.StatusCode, "kind", apiErr.Kind)
	if apiErr.Kind == domain.KindAuth && signed {
		c.mu.RLock()
		hook := c.onAuthFailure
		c.mu.RUnlock()
		if hook != nil {
			hook(apiErr)
		}
	}
	return nil, apiErr
}

// get performs a GET and decodes the reply into out
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decode(body, out)
}

// send performs a write request; out may be nil
func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	body, err := c.do(ctx, request{method: method, path: path, body: in})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(body, out)
}

// decode unmarshals body into out, unwrapping a {"data": ...} envelope
// when the server sends one
func decode(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if body[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
			body = env.Data
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// classify maps a non-2xx reply onto the error taxonomy
func classify(status int, body []byte) *domain.APIError {
	e := &domain.APIError{Status: status, Message: errorMessage(body)}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Kind = domain.KindAuth
	case status == http.StatusConflict:
		e.Kind = domain.KindConflict
	case status == http.StatusNotFound:
		e.Kind = domain.KindNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		e.Kind = domain.KindValidation
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests,
		status == http.StatusBadGateway, status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		// the request never reached a healthy handler; safe to repeat
		e.Kind = domain.KindNetwork
	case status >= 500:
		e.Kind = domain.KindServer
	default:
		e.Kind = domain.KindUnknown
	}
	return e
}

func errorMessage(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// transportError classifies a failure to get any reply. Cancellation by
// the caller is passed through; everything else, timeouts included, is a
// network error.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	return &domain.APIError{Kind: domain.KindNetwork, Err: err}
}
