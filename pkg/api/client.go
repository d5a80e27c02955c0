// Package api is the request/response client for the pharmacy REST API.
// Every method issues one request, plus at most one token refresh and retry
// when the session has expired. There are no other retries at this layer.
package api

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
	"sync"
	"time"

	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/internal/metrics"
	"github.com/grovetools/pharmastock/logging"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "pharmastock/1.0"
	refreshPath      = "/auth/refresh"

	// maxErrorBody bounds how much of an error response is kept as its message.
	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. https://pharmacy.example.com/api.
	BaseURL string
	// AccessToken is sent as a bearer token when set.
	AccessToken string
	// HTTPClient overrides the default client. Its Jar is used for session cookies.
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
}

// Client calls the REST API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	userAgent  string
	logger     *logrus.Entry

	mu    sync.RWMutex
	token string

	// refreshMu serializes token refreshes.
	refreshMu sync.Mutex
}

// New creates a Client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || !base.IsAbs() {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid API base URL %q", opts.BaseURL))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		userAgent:  userAgent,
		logger:     logging.NewLogger("api"),
		token:      opts.AccessToken,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Jar returns the cookie jar holding the session, so the hub connection can
// authenticate with the same cookies.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// Token returns the current bearer token, which may have been replaced by a refresh.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	// label is the metrics endpoint label; path with ids replaced.
	label string
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs req and decodes a successful response into result (if non-nil).
func (c *Client) do(ctx context.Context, req request, result interface{}) error {
	if req.label == "" {
		req.label = req.path
	}
	start := time.Now()

	status, body, err := c.roundTrip(ctx, req)
	if err == nil && status == http.StatusUnauthorized && !strings.HasPrefix(req.path, "/auth/") {
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			c.logger.WithError(refreshErr).Debug("Token refresh failed")
		} else {
			status, body, err = c.roundTrip(ctx, req)
		}
	}

	err = c.interpret(req, status, body, err, result)

	resultLabel := metrics.ResultSuccess
	if err != nil {
		resultLabel = metrics.ResultError
	}
	metrics.ObserveAPIRequest(req.label, resultLabel, time.Since(start))

	return err
}

func (c *Client) interpret(req request, status int, body []byte, transportErr error, result interface{}) error {
	target := c.url(req.path, req.query)
	if transportErr != nil {
		return transportErr
	}

	if status < 200 || status >= 300 {
		message := extractMessage(body)
		c.logger.WithFields(logrus.Fields{
			"method": req.method,
			"path":   req.path,
			"status": status,
		}).Debug("API request failed")
		return errors.HTTPStatusError(req.method, target, status, message)
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return errors.InvalidResponse(target, err)
		}
	}
	return nil
}

// roundTrip sends one request and reads the whole body.
func (c *Client) roundTrip(ctx context.Context, req request) (int, []byte, error) {
	target := c.url(req.path, req.query)

	var reqBody io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body")
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.WithFields(logrus.Fields{
		"method": req.method,
		"url":    target,
	}).Debug("Sending request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, errors.NetworkError(c.baseURL.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.NetworkError(c.baseURL.String(), fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"method": req.method,
		"url":    target,
		"status": resp.StatusCode,
	}).Debug("Received response")

	return resp.StatusCode, body, nil
}

// refreshResponse is the subset of the login payload returned by a refresh.
type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// refresh renews the session. The server rotates its cookies; a returned
// access token replaces the bearer token.
func (c *Client) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	status, body, err := c.roundTrip(ctx, request{method: http.MethodPost, path: refreshPath, body: struct{}{}})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return errors.HTTPStatusError(http.MethodPost, c.url(refreshPath, nil), status, extractMessage(body))
	}

	var payload refreshResponse
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &payload) == nil && payload.AccessToken != "" {
		c.setToken(payload.AccessToken)
	}
	c.logger.Debug("Session refreshed")
	return nil
}

// extractMessage finds the human-readable error in a response body: message,
// then problem-details title, then error, then the raw text.
func extractMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Title != "":
			return payload.Title
		case payload.Error != "":
			return payload.Error
		}
		// A JSON document without a known field is not a useful message.
		return ""
	}

	text := string(trimmed)
	if strings.HasPrefix(text, "<") {
		// HTML error pages from proxies.
		return ""
	}
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
