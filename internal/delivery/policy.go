// Package delivery implements the outbound notification pipeline: idempotent
// enqueue of per-channel delivery records, the SQS-driven send worker, and
// the retry sweeper that republishes overdue attempts.
package delivery

import (
	"errors"
	"time"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

// RetryPolicy defines the exponential backoff parameters for delivery retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig builds the retry policy from the delivery configuration.
func PolicyFromConfig(cfg config.DeliveryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseSeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.RetryMaxSeconds) * time.Second,
	}
}

// NextRetryDelay computes the delay before the next attempt using exponential
// backoff: delay = min(BaseDelay * 2^(attempt-1), MaxDelay). attempt is the
// 1-based count of attempts already made.
func NextRetryDelay(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= policy.MaxDelay || delay < 0 {
			return policy.MaxDelay
		}
	}

	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// ClassifyFailure maps a send error to a retry decision. Rate limits,
// upstream outages, and raw transport errors are worth retrying; provider
// rejections and validation problems are not.
func ClassifyFailure(err error) types.FailureType {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		// Raw SDK/transport error with no domain classification.
		return types.FailureRetryable
	}

	switch appErr.Code {
	case types.ErrCodeUpstreamRateLimited,
		types.ErrCodeUpstreamUnavailable,
		types.ErrCodeUpstreamWeather:
		return types.FailureRetryable
	default:
		return types.FailureNonRetryable
	}
}
