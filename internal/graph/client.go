package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/graphbridge/graphbridge/internal/logging"
)

const (
	// BaseURL is the production Graph API root.
	BaseURL = "https://graph.microsoft.com/v1.0"

	// defaultMaxRetries bounds retries for throttling and server failures.
	defaultMaxRetries = 3

	// defaultRetryAfter applies when a 429 carries no Retry-After header.
	defaultRetryAfter = 5 * time.Second

	// maxRetryAfter caps how long a Retry-After header can make us wait.
	maxRetryAfter = 60 * time.Second
)

// TokenProvider supplies bearer tokens for a signed-in account and accepts
// invalidation when the resource API rejects one.
type TokenProvider interface {
	Token(ctx context.Context, accountID string) (string, error)
	Invalidate(accountID string)
}

// Client is a Graph API client bound to a single account.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	accountID  string
	logger     *slog.Logger
	maxRetries int
	retryBase  time.Duration
	sleep      func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMaxRetries bounds retry attempts for throttled and failed requests.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryBaseDelay sets the first backoff step. Tests shrink it.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

// NewClient creates a Graph client for the given account.
func NewClient(tokens TokenProvider, accountID string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    BaseURL,
		tokens:     tokens,
		accountID:  accountID,
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
		retryBase:  time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccountID returns the account this client acts as.
func (c *Client) AccountID() string {
	return c.accountID
}

// do performs one Graph request with authentication, throttling, and retry
// handling. path may be absolute (a nextLink) or relative to the API root.
// It returns the response body for 2xx responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) ([]byte, error) {
	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = c.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + query.Encode()
	}

	retriedAuth := false
	for attempt := 0; ; attempt++ {
		// Broker errors (unknown account, reauthentication required) are
		// terminal here; only transport and service failures retry.
		token, err := c.tokens.Token(ctx, c.accountID)
		if err != nil {
			return nil, err
		}

		respBody, status, header, err := c.roundTrip(ctx, method, reqURL, token, contentType, body)
		if err != nil {
			// Transport failure: retry with backoff.
			if attempt < c.maxRetries {
				if sleepErr := c.backoff(ctx, attempt, err); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			return nil, fmt.Errorf("graph request %s %s failed: %w", method, path, err)
		}

		switch {
		case status >= 200 && status < 300:
			return respBody, nil

		case status == http.StatusUnauthorized && !retriedAuth:
			// The provider considered the token fresh but the API rejected
			// it. Drop it and retry exactly once with a new token.
			c.logger.Warn("access token rejected, refreshing", logging.UserHash(c.accountID))
			c.tokens.Invalidate(c.accountID)
			retriedAuth = true
			continue

		case status == http.StatusTooManyRequests && attempt < c.maxRetries:
			wait := parseRetryAfter(header.Get("Retry-After"))
			c.logger.Warn("rate limited", "retry_after", wait, "path", path)
			if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue

		case status >= 500 && attempt < c.maxRetries:
			if sleepErr := c.backoff(ctx, attempt, fmt.Errorf("status %d", status)); sleepErr != nil {
				return nil, sleepErr
			}
			continue

		default:
			return nil, newAPIError(status, respBody)
		}
	}
}

// roundTrip sends a single authenticated request.
func (c *Client) roundTrip(ctx context.Context, method, reqURL, token, contentType string, body []byte) ([]byte, int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, resp.StatusCode, resp.Header, nil
}

func (c *Client) backoff(ctx context.Context, attempt int, cause error) error {
	wait := c.retryBase * (1 << attempt)
	c.logger.Warn("retrying graph request", "attempt", attempt+1, "wait", wait, logging.Err(cause))
	return c.sleep(ctx, wait)
}

// getJSON performs a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse graph response: %w", err)
	}
	return nil
}

// writeJSON performs a JSON-body request and optionally decodes the response.
func (c *Client) writeJSON(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	respBody, err := c.do(ctx, method, path, nil, "application/json", body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse graph response: %w", err)
	}
	return nil
}

// listAll follows @odata.nextLink pagination, decoding each page's value
// array into items and appending via collect.
func (c *Client) listAll(ctx context.Context, path string, collect func(raw json.RawMessage) error) error {
	next := path
	for next != "" {
		var page listPage
		if err := c.getJSON(ctx, next, nil, &page); err != nil {
			return err
		}
		if len(page.Value) > 0 {
			if err := collect(page.Value); err != nil {
				return err
			}
		}
		next = page.NextLink
	}
	return nil
}

// parseRetryAfter accepts both Retry-After forms: delay seconds and an
// HTTP-date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}

	var wait time.Duration
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return defaultRetryAfter
		}
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(header); err == nil {
		wait = time.Until(at)
		if wait < 0 {
			wait = 0
		}
	} else {
		return defaultRetryAfter
	}

	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}
