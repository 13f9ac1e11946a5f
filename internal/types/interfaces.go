package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// WeatherProvider fetches the weather conditions relevant to one criteria.
// Implementations must report transport or upstream failure via FetchResult.OK
// rather than partial data, so callers can distinguish an outage from calm
// weather.
type WeatherProvider interface {
	Fetch(ctx context.Context, criteria *AlertCriteria) (FetchResult, error)
}

// ChannelSender transmits one alert on a concrete channel and returns the
// provider message ID. Errors should be expressed as AppError so the worker
// can classify them as retryable or terminal.
type ChannelSender interface {
	Channel() Channel
	Send(ctx context.Context, alert *Alert, destination string) (providerMessageID string, err error)
}

// Logger defines the structured logging interface used throughout the engine.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
