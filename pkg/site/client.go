package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ckscraper/pkg/config"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/ratelimit"
)

var sessionCookie = regexp.MustCompile(`session=([^;]*)`)

// Session is the credential attached to every request
type Session struct {
	Host    string
	Service string
	Token   string
}

// Anonymous reports whether the session was created without logging in
func (s *Session) Anonymous() bool {
	return s == nil || s.Token == AnonymousToken
}

// Client talks to one content host
type Client struct {
	httpClient *http.Client
	dataClient *http.Client
	headers    map[string]string
	baseURL    string
	host       string
	service    string
	session    *Session
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the client used for API and file requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.dataClient = hc
	}
}

// WithLimiter throttles API requests
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for cfg.Host. File transfers use a client
// without an overall deadline; only the wait for response headers is bounded.
func NewClient(cfg config.SiteConfig, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://" + cfg.Host
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		dataClient: &http.Client{Transport: transport},
		headers: map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
		},
		baseURL: baseURL,
		host:    cfg.Host,
		service: cfg.Service,
		limiter: ratelimit.Unlimited{},
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = &Session{Host: cfg.Host, Service: cfg.Service, Token: AnonymousToken}
	return c
}

// Host returns the configured host name
func (c *Client) Host() string { return c.host }

// Service returns the API service the client queries
func (c *Client) Service() string { return c.service }

// Session returns the current session
func (c *Client) Session() *Session { return c.session }

// Authenticate logs in when both credentials are given and keeps the
// resulting session for later requests. Without credentials the session
// stays anonymous.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return c.session, nil
	}

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "encoding login request")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "creating login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doRequest(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, loginFailure(resp)
	}

	var token string
	for _, cookie := range resp.Header.Values("Set-Cookie") {
		if m := sessionCookie.FindStringSubmatch(cookie); m != nil {
			token = m[1]
			break
		}
	}
	if token == "" {
		return nil, errs.New(errs.ErrorTypeAuth, resp.StatusCode, "login succeeded but no session cookie was returned")
	}

	c.session = &Session{Host: c.host, Service: c.service, Token: token}
	c.logger.InfoWithFields("logged in", map[string]interface{}{
		"host":     c.host,
		"username": username,
	})
	return c.session, nil
}

// loginFailure reports the HTTP reason plus the API's own message when present
func loginFailure(resp *http.Response) error {
	msg := resp.Status
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		msg = fmt.Sprintf("%s: %s", msg, apiErr.Error)
	}
	return errs.New(errs.ErrorTypeAuth, resp.StatusCode, "login failed (%s)", msg)
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(hc *http.Client, req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if value != "" && req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	if c.session != nil {
		req.AddCookie(&http.Cookie{Name: "session", Value: c.session.Token})
	}

	start := time.Now()
	resp, err := hc.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": elapsed,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "%s %s", req.Method, req.URL.Redacted())
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, elapsed)
	return resp, nil
}

// Get issues an authenticated GET for an API path and returns the raw body.
// It does not retry.
func (c *Client) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+uri, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "creating request")
	}

	resp, err := c.doRequest(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "reading response body")
	}
	return body, nil
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, uri string, target interface{}) error {
	body, err := c.Get(ctx, uri)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"uri":          uri,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, err, "decoding %s", uri)
	}
	return nil
}

// Posts returns one page of a user's feed
func (c *Client) Posts(ctx context.Context, userID string, offset int) ([]Post, error) {
	var posts []Post
	if err := c.GetJSON(ctx, PostsPath(c.service, userID, offset), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Favorites returns the authenticated account's favorited posts
func (c *Client) Favorites(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.GetJSON(ctx, FavoritesPath, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// AppVersion probes the site. Any failure means the site is unavailable.
func (c *Client) AppVersion(ctx context.Context) (string, error) {
	body, err := c.Get(ctx, AppVersionPath)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errs.Wrap(errs.ErrorTypeSiteUnavailable, err, "%s is not available", c.host)
	}
	return strings.TrimSpace(string(body)), nil
}

// ContentLength asks the server for a file's size. It returns -1 when the
// server does not announce one.
func (c *Client) ContentLength(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "creating request")
	}

	resp, err := c.doRequest(c.dataClient, req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		return 0, err
	}
	return resp.ContentLength, nil
}

// OpenRange starts a GET of url from byte offset. The caller owns the
// response body. 200, 206 and 416 responses are returned as is.
func (c *Client) OpenRange(ctx context.Context, url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "creating request")
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.doRequest(c.dataClient, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return resp, nil
	}
	if err := checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// ProfileStatus looks a handle up with HEAD then GET and returns the GET
// status code
func (c *Client) ProfileStatus(ctx context.Context, handle string) (int, error) {
	url := c.baseURL + ProfilePath(c.service, handle)

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "creating request")
		}
		resp, err := c.doRequest(c.httpClient, req)
		if err != nil {
			return 0, err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if method == http.MethodGet {
			return resp.StatusCode, nil
		}
	}
	return 0, nil
}

// checkResponseStatus maps HTTP status codes to typed errors
func checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	url := resp.Request.URL.Redacted()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.ErrorTypeAuth, code, "access denied to %s", url)
	case code == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, code, "%s not found", url)
	case code == http.StatusTooManyRequests:
		return errs.New(errs.ErrorTypeRateLimit, code, "rate limit exceeded")
	case code >= 500:
		return errs.New(errs.ErrorTypeServerError, code, "server error for %s", url)
	default:
		return errs.New(errs.ErrorTypeUnknown, code, "unexpected status %d for %s", code, url)
	}
}
