package types

import "fmt"

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. All packages MUST use these constants
// instead of hardcoded strings.
const (
	// Validation
	ErrCodeValidationMissingField       ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidChannel     ErrorCode = "validation_invalid_channel"
	ErrCodeValidationPreferenceConflict ErrorCode = "validation_preference_conflict"
	ErrCodeValidationNoUsableChannels   ErrorCode = "validation_no_usable_channels"

	// Not Found
	ErrCodeNotFoundCriteria ErrorCode = "not_found_criteria"
	ErrCodeNotFoundAlert    ErrorCode = "not_found_alert"
	ErrCodeNotFoundDelivery ErrorCode = "not_found_delivery"
	ErrCodeNotFoundUser     ErrorCode = "not_found_user"

	// Internal
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeQueuePublish       ErrorCode = "internal_queue_publish_failed"

	// Upstream
	ErrCodeUpstreamWeather       ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"

	// Channel-specific
	ErrCodeEmailBlocked       ErrorCode = "email_blocked"
	ErrCodeChannelUnsupported ErrorCode = "channel_unsupported"
)

// AppError is the standard application error type used throughout the engine.
// All domain errors should be expressed as AppError to enable consistent
// error formatting, failure classification, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
