// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// Configuration constants for the backend client.
const (
	// APIPrefix is appended to the configured backend URL.
	APIPrefix = "/api/v1"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultQueryTimeout bounds POST /query, which waits on generation.
	DefaultQueryTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// maxLoggedBody caps how much of an error body reaches the log.
	maxLoggedBody = 512
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Deadlines come from the request context, so the client has no Timeout.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. http://localhost:8000.
	BaseURL string
	// Timeout is the default per-request timeout.
	Timeout time.Duration
	// QueryTimeout is the timeout for query submission.
	QueryTimeout time.Duration
	// RequestsPerSecond paces outgoing requests (0 = unlimited).
	RequestsPerSecond float64
	// Burst is the limiter burst size.
	Burst int
	// HTTPClient overrides the shared pooled client (tests).
	HTTPClient *http.Client
	// Logger receives diagnostics. Tokens and request bodies are never logged.
	Logger *zap.Logger
	// OnUnauthorized is called once per burst of 401 responses.
	OnUnauthorized func()
}

// Client is the authenticated KnowledgeOps API client.
type Client struct {
	baseURL      string
	http         *http.Client
	tokens       *TokenCache
	limiter      *rate.Limiter
	timeout      time.Duration
	queryTimeout time.Duration
	logger       *zap.Logger

	// departments memoises the department list per token generation.
	departments *cache.Cache

	mu             sync.RWMutex
	onUnauthorized func()
}

// NewClient creates a client that takes bearer tokens from tokens.
func NewClient(tokens *TokenCache, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = sharedHTTPClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/") + APIPrefix,
		http:           httpClient,
		tokens:         tokens,
		limiter:        limiter,
		timeout:        opts.Timeout,
		queryTimeout:   opts.QueryTimeout,
		logger:         logging.OrNop(opts.Logger).Named("api"),
		departments:    cache.New(time.Minute, 5*time.Minute),
		onUnauthorized: opts.OnUnauthorized,
	}
}

// Tokens returns the client's token cache.
func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

// BaseURL returns the API root including the /api/v1 prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetOnUnauthorized replaces the 401 hook. The TUI installs it once the
// program exists, after the client has been constructed.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Logout drops the cached token.
func (c *Client) Logout() {
	c.tokens.Clear()
	c.departments.Flush()
}

// =============================================================================
// REQUEST PIPELINE
// =============================================================================

// Request describes a single API call.
type Request struct {
	Method string
	// Path is relative to the API root and starts with "/".
	Path  string
	Query url.Values
	// Body is JSON-encoded, unless it is a *Multipart.
	Body any
	// Timeout overrides the client default.
	Timeout time.Duration
	// NoAuth sends the request without a bearer token and exempts its 401
	// from the login redirect. Used by login itself.
	NoAuth bool
}

// Do performs req and decodes a 2xx JSON response into out (which may be nil).
// Every non-2xx response is returned as *APIError after interception.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.transportError(req, timeout, err)
	}

	var token string
	var gen uint64
	if !req.NoAuth {
		var err error
		token, gen, err = c.tokens.TokenWithGeneration(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.transportError(req, timeout, err)
			}
			// Sending unauthenticated lets the 401 path take over.
			c.logger.Warn("token lookup failed", zap.Error(err))
		}
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return err
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	// SECURITY: Clear Authorization header immediately after request to prevent logging
	httpReq.Header.Del("Authorization")
	if err != nil {
		return c.transportError(req, timeout, err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	c.logger.Debug("request complete",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	c.intercept(req, resp.StatusCode, body, gen)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch b := req.Body.(type) {
	case nil:
	case *Multipart:
		// The boundary lives in the content type, so it must come from the
		// multipart writer, never a fixed JSON header.
		body = bytes.NewReader(b.body)
		contentType = b.contentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "kops")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// intercept is the single place where response statuses cause side effects.
func (c *Client) intercept(req Request, status int, body []byte, gen uint64) {
	switch status {
	case http.StatusUnauthorized:
		if req.NoAuth {
			return
		}
		if c.tokens.InvalidateIfCurrent(gen) {
			c.departments.Flush()
			c.logger.Warn("session rejected, login required",
				zap.String("method", req.Method), zap.String("path", req.Path))
			c.mu.RLock()
			hook := c.onUnauthorized
			c.mu.RUnlock()
			if hook != nil {
				hook()
			}
		}
	case http.StatusForbidden:
		c.logger.Warn("access forbidden",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("body", util.TruncateWidth(string(body), maxLoggedBody)),
		)
	case http.StatusInternalServerError:
		c.logger.Error("server error",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("body", util.TruncateWidth(string(body), maxLoggedBody)),
		)
	}
}

func (c *Client) transportError(req Request, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s after %s", ErrTimeout, req.Method, req.Path, timeout)
	}
	return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// TYPED HELPERS
// =============================================================================

// Get performs a GET and decodes the response as T.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, &out)
	return out, err
}

// Post performs a POST with a JSON (or multipart) body and decodes T.
func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var out T
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, &out)
	return out, err
}

// Put performs a PUT with a JSON body and decodes T.
func Put[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var out T
	err := c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, &out)
	return out, err
}

// Delete performs a DELETE and discards the response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// List performs a GET on a collection. List endpoints answer either with a
// {"data": [...]} envelope or a bare array; both decode to []T.
func List[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw)
}

// pathf builds a route, escaping every argument as a path segment.
func pathf(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}
