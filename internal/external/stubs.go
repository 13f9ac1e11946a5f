package external

import (
	"context"
	"fmt"
	"sync/atomic"

	"stormwatch/internal/types"
)

// StubWeatherProvider returns a canned FetchResult for local development and
// tests that do not exercise the real weather API.
type StubWeatherProvider struct {
	Result types.FetchResult
	Err    error
}

// Fetch returns the configured result unchanged.
func (s *StubWeatherProvider) Fetch(_ context.Context, _ *types.AlertCriteria) (types.FetchResult, error) {
	if s.Err != nil {
		return types.FetchResult{OK: false}, s.Err
	}
	return s.Result, nil
}

// StubEmailSender accepts every email and fabricates a message ID. Used in
// local mode where no SES credentials are available.
type StubEmailSender struct {
	counter atomic.Int64
}

// Channel reports the email channel.
func (s *StubEmailSender) Channel() types.Channel { return types.ChannelEmail }

// Send pretends the message was accepted.
func (s *StubEmailSender) Send(_ context.Context, alert *types.Alert, destination string) (string, error) {
	n := s.counter.Add(1)
	return fmt.Sprintf("stub-%s-%d", alert.ID, n), nil
}

var (
	_ types.WeatherProvider = (*StubWeatherProvider)(nil)
	_ types.ChannelSender   = (*StubEmailSender)(nil)
)
