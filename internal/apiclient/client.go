package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/jafarshop/storefront/internal/config"
	"github.com/jafarshop/storefront/pkg/errors"
)

// Auth endpoints that must never trigger a refresh
const (
	RefreshPath = "/auth/refresh"
	MePath      = "/auth/me"
)

// Navigator performs the hard redirect to the login entry point after a
// failed token refresh.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() { f() }

// Client is the storefront REST API client. Credentials are cookies kept in
// the client's jar.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	navigator  Navigator
	logger     *zap.Logger
}

// NewClient creates a new API client
func NewClient(cfg config.APIConfig, navigator Navigator, logger *zap.Logger) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if navigator == nil {
		navigator = NavigatorFunc(func() {})
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		navigator: navigator,
		logger:    logger,
	}, nil
}

// SetNavigator replaces the navigator. Used when the session store is built
// after the client.
func (c *Client) SetNavigator(n Navigator) {
	c.navigator = n
}

// Envelope is the standard response wrapper
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
}

// EnvelopeError is the error member of the envelope
type EnvelopeError struct {
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Meta carries pagination info
type Meta struct {
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
	Total      int    `json:"total,omitempty"`
}

// retryState tracks the one-shot refresh policy for one originating request
type retryState int

const (
	notRetried retryState = iota
	retried
)

// advance moves notRetried to retried and reports whether a retry is allowed
func (s *retryState) advance() bool {
	if *s == retried {
		return false
	}
	*s = retried
	return true
}

type request struct {
	id     string
	method string
	path   string
	query  url.Values
	body   []byte
	state  retryState
}

// do sends a request and decodes the envelope data into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) (*Meta, error) {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req := &request{
		id:     uuid.NewString(),
		method: method,
		path:   path,
		query:  query,
		body:   body,
	}
	return c.execute(ctx, req, out)
}

// execute applies the authenticated-retry policy: a 401 on a non-auth
// endpoint triggers one refresh and one replay. A failed refresh redirects to
// login and returns the original error.
func (c *Client) execute(ctx context.Context, req *request, out interface{}) (*Meta, error) {
	env, err := c.send(ctx, req)
	if err == nil {
		return decode(env, out)
	}

	if errors.StatusCode(err) != http.StatusUnauthorized || isAuthEndpoint(req.path) {
		return nil, err
	}
	if !req.state.advance() {
		return nil, err
	}

	if refreshErr := c.Refresh(ctx); refreshErr != nil {
		c.logger.Warn("Token refresh failed, redirecting to login",
			zap.String("path", req.path),
			zap.Error(refreshErr),
		)
		c.navigator.RedirectToLogin()
		return nil, fmt.Errorf("%w: %w", errors.ErrSessionExpired, err)
	}

	env, err = c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return decode(env, out)
}

func isAuthEndpoint(path string) bool {
	return path == RefreshPath || path == MePath
}

// send performs one HTTP round trip
func (c *Client) send(ctx context.Context, req *request) (*Envelope, error) {
	u := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", req.id)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("API request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Bool("replay", req.state == retried),
		zap.String("request_id", req.id),
	)

	env, isEnvelope := parseEnvelope(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if isEnvelope && !env.Success {
			return nil, apiError(resp.StatusCode, env)
		}
		if !isEnvelope {
			env = &Envelope{Success: true}
		}
		return env, nil
	}

	if isEnvelope {
		return nil, apiError(resp.StatusCode, env)
	}
	return nil, &errors.ErrHTTPStatus{Status: resp.StatusCode, Body: truncate(string(body), 512)}
}

func parseEnvelope(body []byte) (*Envelope, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	if _, ok := envelope["success"]; !ok {
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	return &env, true
}

func apiError(status int, env *Envelope) *errors.APIError {
	e := &errors.APIError{Status: status, Message: env.Message}
	if env.Error != nil {
		if env.Error.Message != "" {
			e.Message = env.Error.Message
		}
		e.Code = env.Error.Code
		e.Fields = env.Error.Fields
	}
	return e
}

func decode(env *Envelope, out interface{}) (*Meta, error) {
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return env.Meta, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
