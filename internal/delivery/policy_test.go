package delivery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

func defaultTestPolicy() RetryPolicy {
	return PolicyFromConfig(config.DeliveryConfig{
		MaxAttempts:      5,
		RetryBaseSeconds: 30,
		RetryMaxSeconds:  900,
	})
}

func TestNextRetryDelay(t *testing.T) {
	policy := defaultTestPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{6, 900 * time.Second},
		{20, 900 * time.Second},
	}

	for _, tt := range tests {
		got := NextRetryDelay(policy, tt.attempt)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	policy := defaultTestPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 30*time.Second, policy.BaseDelay)
	assert.Equal(t, 900*time.Second, policy.MaxDelay)
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailureType
	}{
		{
			"rate limited",
			types.NewAppError(types.ErrCodeUpstreamRateLimited, "throttled", nil),
			types.FailureRetryable,
		},
		{
			"upstream unavailable",
			types.NewAppError(types.ErrCodeUpstreamUnavailable, "503", nil),
			types.FailureRetryable,
		},
		{
			"email blocked",
			types.NewAppError(types.ErrCodeEmailBlocked, "rejected", nil),
			types.FailureNonRetryable,
		},
		{
			"unknown provider error",
			types.NewAppError(types.ErrCodeUpstreamEmailProvider, "boom", nil),
			types.FailureNonRetryable,
		},
		{
			"unsupported channel",
			types.NewAppError(types.ErrCodeChannelUnsupported, "no sms sender", nil),
			types.FailureNonRetryable,
		},
		{
			"raw transport error",
			errors.New("dial tcp: i/o timeout"),
			types.FailureRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.err))
		})
	}
}
