// Package external provides the anti-corruption layer between the alert
// engine and third-party provider APIs: the weather data client and the
// notification senders. Weather traffic runs through apiClient, which owns
// circuit breaking, retries with exponential backoff, trace propagation,
// and error mapping to domain codes.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"stormwatch/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures retry behavior for weather API calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for external API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// apiClient is the HTTP transport for api.weather.gov style endpoints. Every
// fetch is a GET for a geo+json document, so the client exposes getJSON
// rather than a general request interface. A circuit breaker sits in front
// of the wire so a dead upstream fails fast instead of burning the retry
// budget on every criteria in a cycle.
type apiClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	retry     RetryPolicy
	userAgent string
	sleep     func(time.Duration) // for testability; defaults to time.Sleep
}

// ClientOption is a functional option for configuring an apiClient.
type ClientOption func(*apiClient)

// WithSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *apiClient) {
		c.sleep = fn
	}
}

func newAPIClient(
	httpClient *http.Client,
	breakerName string,
	retry RetryPolicy,
	userAgent string,
	opts ...ClientOption,
) *apiClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	c := &apiClient{
		client:    httpClient,
		breaker:   cb,
		retry:     retry,
		userAgent: userAgent,
		sleep:     time.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// getJSON fetches url and decodes the response body into out. The request
// carries the geo+json Accept header, the configured User-Agent, and the
// trace ID from ctx when one is set. 429 and 5xx responses are retried per
// the retry policy, respecting Retry-After; other non-2xx statuses fail
// immediately with the truncated body attached for diagnostics.
func (c *apiClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "build weather request", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather API returned %d", resp.StatusCode), nil,
			map[string]any{"url": url, "body": string(body)})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "decode weather response", err)
	}

	return nil
}

// do executes the request through the circuit breaker, retrying 429 and 5xx
// responses. On success the caller owns the response body; on exhausted
// retries or an open breaker the mapped AppError carries the upstream code.
func (c *apiClient) do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetTraceID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retry.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 429 and 5xx count as failures toward tripping the breaker.
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// An open breaker means the upstream is already known-bad; more
		// attempts would be rejected without reaching the wire.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		// Anything else non-retryable (4xx other than 429) goes back to the
		// caller for status handling.
		if resp != nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		if attempt < maxAttempts-1 {
			c.sleep(c.backoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}

	return nil, c.mapError(lastResp, lastErr)
}

// backoff determines the wait before the next retry attempt. A Retry-After
// header wins when present; otherwise exponential backoff with full jitter,
// clamped to [MinWait, MaxWait].
func (c *apiClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retry.MaxWait)
			}
			// Retry-After may also be an HTTP-date.
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retry.MinWait
				}
				return min(wait, c.retry.MaxWait)
			}
		}
	}

	base := float64(c.retry.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retry.MaxWait))

	minWait := float64(c.retry.MinWait)
	if base <= minWait {
		return c.retry.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// mapError translates transport-level failures into domain-level AppErrors.
func (c *apiClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; upstream service unavailable",
			err,
		)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				"upstream rate limit exceeded",
				err,
			)
		case resp.StatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode),
				err,
			)
		}
	}

	// Network error, DNS failure, timeout. The request never reached the
	// weather API, so the failure is still a retryable upstream problem.
	return types.NewAppError(
		types.ErrCodeUpstreamWeather,
		"weather API request failed",
		err,
	)
}
