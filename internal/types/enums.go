package types

import "strings"

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// ValidChannel reports whether c is a known channel value.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// FallbackStrategy controls how resolved channels are used during delivery.
type FallbackStrategy string

const (
	// StrategyFirstSuccess stops after the first channel that accepts the message.
	StrategyFirstSuccess FallbackStrategy = "FIRST_SUCCESS"
	// StrategyAllChannels delivers on every resolved channel.
	StrategyAllChannels FallbackStrategy = "ALL_CHANNELS"
)

// AlertStatus is the lifecycle state of an Alert.
type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "PENDING"
	AlertStatusSent         AlertStatus = "SENT"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusExpired      AlertStatus = "EXPIRED"
)

// DeliveryStatus is the lifecycle state of a delivery record.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "PENDING"
	DeliveryStatusInProgress     DeliveryStatus = "IN_PROGRESS"
	DeliveryStatusRetryScheduled DeliveryStatus = "RETRY_SCHEDULED"
	DeliveryStatusSent           DeliveryStatus = "SENT"
	DeliveryStatusFailed         DeliveryStatus = "FAILED"
)

// Terminal reports whether the status admits no further attempts.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// FailureType classifies a delivery failure for retry decisions.
type FailureType string

const (
	FailureRetryable    FailureType = "RETRYABLE"
	FailureNonRetryable FailureType = "NON_RETRYABLE"
)

// TemperatureUnit is the unit criteria temperature thresholds are expressed in.
type TemperatureUnit string

const (
	UnitCelsius    TemperatureUnit = "CELSIUS"
	UnitFahrenheit TemperatureUnit = "FAHRENHEIT"
)

// TemperatureDirection selects the comparison side of a temperature trigger.
type TemperatureDirection string

const (
	TemperatureAbove TemperatureDirection = "ABOVE"
	TemperatureBelow TemperatureDirection = "BELOW"
)

// RainThresholdType selects which precipitation figure a rain trigger compares.
type RainThresholdType string

const (
	RainThresholdProbability RainThresholdType = "PROBABILITY"
	RainThresholdAmount      RainThresholdType = "AMOUNT"
)

// ConditionSource identifies where a weather snapshot came from.
type ConditionSource string

const (
	SourceCurrent  ConditionSource = "CURRENT"
	SourceForecast ConditionSource = "FORECAST"
	SourceAlert    ConditionSource = "ALERT"
)

// SeverityRank maps a government alert severity label to a comparable tier.
// Unknown or empty labels rank lowest so they never satisfy a minimum
// severity filter on their own.
func SeverityRank(severity string) int {
	switch strings.ToUpper(strings.TrimSpace(severity)) {
	case "EXTREME":
		return 4
	case "SEVERE":
		return 3
	case "MODERATE":
		return 2
	case "MINOR":
		return 1
	default:
		return 0
	}
}
