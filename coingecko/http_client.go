package coingecko

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HttpStatusHandler observes request outcomes, e.g. metrics.MetricsWriter
type HttpStatusHandler interface {
	// OnRequest handles a request with its status result
	OnRequest(status string)
	// OnRetry handles retry events
	OnRetry()
}

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxRetries        int
	BaseBackoff       time.Duration
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
}

// DefaultRetryOptions returns default retry options
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:        3,
		BaseBackoff:       time.Second,
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// StatusError is a non-200 answer from the API
type StatusError struct {
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limit exceeded (status %d), retry after %q", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// HTTPClientWithRetries wraps an HTTP client with backoff retries and rate limiting
type HTTPClientWithRetries struct {
	Client        *http.Client
	Opts          RetryOptions
	StatusHandler HttpStatusHandler
	Limiters      *RateLimiterManager
	logger        *logrus.Entry
}

func NewHTTPClientWithRetries(opts RetryOptions, handler HttpStatusHandler, limiters *RateLimiterManager, logger *logrus.Entry) *HTTPClientWithRetries {
	client := &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: opts.ConnectionTimeout,
			}).DialContext,
		},
	}
	return &HTTPClientWithRetries{
		Client:        client,
		Opts:          opts,
		StatusHandler: handler,
		Limiters:      limiters,
		logger:        logger,
	}
}

func (c *HTTPClientWithRetries) onRequest(status string) {
	if c.StatusHandler != nil {
		c.StatusHandler.OnRequest(status)
	}
}

// Do executes req, retrying network errors and retryable statuses. The request's
// context bounds the whole sequence, including backoff waits.
func (c *HTTPClientWithRetries) Do(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	attempts := c.Opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if c.StatusHandler != nil {
				c.StatusHandler.OnRetry()
			}
			backoff := calculateBackoffWithJitter(c.Opts.BaseBackoff, attempt)
			c.logger.Debugf("Retry %d/%d in %.2fs after: %v", attempt, attempts-1, backoff.Seconds(), lastErr)
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if limiter := c.Limiters.LimiterForURL(req.URL); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				c.onRequest("error")
				return nil, fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		start := time.Now()
		resp, err := c.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				c.onRequest("timeout")
				return nil, ctx.Err()
			}
			c.onRequest("error")
			lastErr = fmt.Errorf("request failed after %.2fs: %w", time.Since(start).Seconds(), err)
			continue
		}

		body, err := readResponse(resp)
		if err == nil {
			c.onRequest("success")
			return body, nil
		}

		statusErr, ok := err.(*StatusError)
		if ok && statusErr.Retryable() {
			if statusErr.StatusCode == http.StatusTooManyRequests {
				c.onRequest("rate_limited")
			} else {
				c.onRequest("error")
			}
			lastErr = err
			continue
		}
		c.onRequest("error")
		return nil, err
	}

	return nil, fmt.Errorf("all %d attempts failed, last error: %w", attempts, lastErr)
}

func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       string(body),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return body, nil
}

// calculateBackoffWithJitter doubles base per attempt and adds up to 50% jitter
func calculateBackoffWithJitter(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return base
	}
	backoff := base * time.Duration(uint(1)<<uint(attempt-1))
	if half := int64(backoff / 2); half > 0 {
		backoff += time.Duration(rand.Int63n(half))
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
