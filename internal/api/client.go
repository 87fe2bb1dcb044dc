package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"efinance/internal/log"
)

const (
	headerRequestID  = "X-Request-Id"
	maxResponseBytes = 10 << 20
	defaultTimeout   = 30 * time.Second
)

// TokenStore is the credential state the client reads and mutates.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// UnauthenticatedHandler runs after credentials were cleared on a terminal 401.
type UnauthenticatedHandler func(ctx context.Context, err *AuthError)

// Client performs calls against one backend base URL, attaching the stored
// access token and renewing it once on a 401.
type Client struct {
	baseURL           string
	http              *http.Client
	store             TokenStore
	logger            *slog.Logger
	userAgent         string
	onUnauthenticated UnauthenticatedHandler
	renewals          singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithUnauthenticatedHandler registers fn to run on every terminal 401.
func WithUnauthenticatedHandler(fn UnauthenticatedHandler) Option {
	return func(c *Client) { c.onUnauthenticated = fn }
}

func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		store:     store,
		logger:    slog.Default().With(log.FieldComponent, log.ComponentAPI),
		userAgent: "efinance-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base every endpoint is joined to.
func (c *Client) BaseURL() string { return c.baseURL }

// RequestOptions describes one call. Body may be nil, a *Form for multipart,
// a json.RawMessage sent verbatim, or any value encoded as JSON.
type RequestOptions struct {
	Method string
	Body   any
	Header http.Header
	Query  url.Values
}

// Request performs the call and decodes a 2xx JSON body into out when out is
// non-nil. Failures are *HTTPError, *AuthError, *NetworkError or a context error.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	body, err := encodeBody(opts.Body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	target := c.url(endpoint, opts.Query)
	requestID := opts.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = newRequestID()
	}

	token, err := c.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}

	resp, err := c.send(ctx, method, target, body, opts.Header, token, requestID, 1)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.handle(method, target, resp, out)
	}
	rejected := rejection(resp)

	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	if refresh == "" {
		return c.terminate(ctx, ReasonNoRefreshToken, rejected)
	}

	fresh, err := c.renew(ctx, token)
	if err != nil {
		return err
	}

	resp, err = c.send(ctx, method, target, body, opts.Header, fresh, requestID, 2)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return c.terminate(ctx, ReasonRejectedAfterRenewal, rejection(resp))
	}
	return c.handle(method, target, resp, out)
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPut, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPatch, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodDelete}, out)
}

func (c *Client) url(endpoint string, query url.Values) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	target := c.baseURL + endpoint
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

// send issues one attempt. Only transport failures are returned as errors.
func (c *Client) send(ctx context.Context, method, target string, body *payload, header http.Header, token, requestID string, attempt int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body.reader())
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	req.Header.Set(headerRequestID, requestID)

	fields := log.NewFields().WithRequestID(requestID).WithHTTPRequest(method, req.URL.Path)
	fields["attempt"] = attempt

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "api request failed", fields.WithError(err).ToSlice()...)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &NetworkError{Method: method, URL: target, Err: ctxErr}
		}
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}

	fields.WithHTTPResponse(resp.StatusCode, time.Since(start).Milliseconds())
	c.logger.DebugContext(ctx, "api request", fields.ToSlice()...)
	return resp, nil
}

// handle turns a non-401 response into a decoded result or an *HTTPError.
func (c *Client) handle(method, target string, resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Method: method, URL: target, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, target, err)
	}
	return nil
}

// terminate clears stored credentials and reports the session as ended.
func (c *Client) terminate(ctx context.Context, reason AuthReason, cause error) error {
	authErr := &AuthError{Reason: reason, Err: cause}
	c.clear(ctx)

	attrs := []any{log.FieldReason, string(reason)}
	if cause != nil {
		attrs = append(attrs, log.FieldError, cause)
	}
	c.logger.WarnContext(ctx, "session terminated", attrs...)

	if c.onUnauthenticated != nil {
		c.onUnauthenticated(ctx, authErr)
	}
	return authErr
}

func (c *Client) clear(ctx context.Context) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear credentials", log.FieldError, err)
	}
}

func newRequestID() string { return uuid.NewString() }

// rejection drains a 401 into an *HTTPError kept as the AuthError cause.
func rejection(resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return newHTTPError(resp.StatusCode, data)
}
