package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/stockprophet/backend/pkg/config"
	"github.com/stockprophet/backend/pkg/logger"
)

// userAgent is sent on every request; the exchanges reject empty agents
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// StatusError is returned for a non-2xx response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.URL, e.StatusCode)
}

// Client is an HTTP client wrapper with retry logic and logging
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	retryConfig RetryConfig
	limiter     *rate.Limiter
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Enabled      bool
}

// New creates a new HTTP client from config
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(cfg *config.Config, log *logger.Logger) *Client {
	timeout := cfg.Crawler.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithField("module", "httputil"),
		retryConfig: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     10 * time.Second,
			Enabled:      true,
		},
	}
}

// NewWithTimeout creates a client with custom timeout
func NewWithTimeout(cfg *config.Config, log *logger.Logger, timeout time.Duration) *Client {
	client := New(cfg, log)
	client.httpClient.Timeout = timeout
	return client
}

// WithRetry configures retry behavior
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retryConfig.MaxRetries = maxRetries
	c.retryConfig.InitialDelay = initialDelay
	if c.retryConfig.MaxDelay < initialDelay {
		c.retryConfig.MaxDelay = initialDelay
	}
	c.retryConfig.Enabled = true
	return c
}

// DisableRetry disables automatic retry
func (c *Client) DisableRetry() *Client {
	c.retryConfig.Enabled = false
	return c
}

// WithRateLimit caps the request rate of this client. Burst is one request.
func (c *Client) WithRateLimit(every time.Duration) *Client {
	c.limiter = rate.NewLimiter(rate.Every(every), 1)
	return c
}

// Get performs a GET request. The caller closes the body.
func (c *Client) Get(ctx context.Context, targetURL string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, targetURL, "", nil)
}

// Post performs a POST request with body. The caller closes the body.
func (c *Client) Post(ctx context.Context, targetURL string, contentType string, body string) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, targetURL, contentType, &body)
}

// PostForm performs a POST request with form data
func (c *Client) PostForm(ctx context.Context, targetURL string, formData url.Values) (*http.Response, error) {
	return c.Post(ctx, targetURL, "application/x-www-form-urlencoded", formData.Encode())
}

// GetBytes performs a GET with query params and returns the body of a 2xx response
func (c *Client) GetBytes(ctx context.Context, targetURL string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		targetURL = targetURL + "?" + params.Encode()
	}
	resp, err := c.Get(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	return readBody(resp)
}

// PostFormBytes performs a form POST and returns the body of a 2xx response
func (c *Client) PostFormBytes(ctx context.Context, targetURL string, formData url.Values) ([]byte, error) {
	resp, err := c.PostForm(ctx, targetURL, formData)
	if err != nil {
		return nil, err
	}
	return readBody(resp)
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: resp.Request.Method, URL: resp.Request.URL.String(), StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// do executes the request with retry logic and logging
func (c *Client) do(ctx context.Context, method, targetURL, contentType string, body *string) (*http.Response, error) {
	startTime := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    targetURL,
	}).Debug("HTTP request started")

	attempt := func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(*body)
		}
		req, err := http.NewRequestWithContext(ctx, method, targetURL, reader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create %s request: %w", method, err))
		}
		req.Header.Set("User-Agent", userAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if IsRetryableError(resp.StatusCode) {
			resp.Body.Close()
			return nil, &StatusError{Method: method, URL: targetURL, StatusCode: resp.StatusCode}
		}
		return resp, nil
	}

	var resp *http.Response
	var err error
	if c.retryConfig.Enabled {
		resp, err = backoff.Retry(ctx, attempt,
			backoff.WithBackOff(c.backOff()),
			backoff.WithMaxTries(uint(c.retryConfig.MaxRetries+1)),
			backoff.WithNotify(func(err error, delay time.Duration) {
				c.logger.WithFields(map[string]interface{}{
					"delay": delay,
					"url":   targetURL,
				}).WithError(err).Warn("Retrying HTTP request")
			}),
		)
	} else {
		resp, err = attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
	}

	duration := time.Since(startTime)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"method":   method,
			"url":      targetURL,
			"duration": duration,
		}).WithError(err).Error("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"url":         targetURL,
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")
	return resp, nil
}

func (c *Client) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryConfig.InitialDelay
	b.MaxInterval = c.retryConfig.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// IsRetryableError checks if a status code should be retried
func IsRetryableError(statusCode int) bool {
	// Retry on 5xx server errors and 429 Too Many Requests
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
