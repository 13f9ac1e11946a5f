// Package types defines the core domain entities shared across the alerting
// engine: criteria, weather snapshots, alerts, delivery records, and the
// notification preference model. Packages depend on types; types depends on
// nothing inside the module.
package types

import "time"

// AlertCriteria describes one user-configured alerting rule set. Filter
// fields (location, event type, severity) narrow which weather conditions are
// relevant; trigger fields (temperature, wind, precipitation) fire alerts.
// Pointer fields are nil when the user has not configured that rule.
type AlertCriteria struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	// Filter rules
	Location    string   `json:"location,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	RadiusKm    *float64 `json:"radius_km,omitempty"`
	EventType   string   `json:"event_type,omitempty"`
	MinSeverity string   `json:"min_severity,omitempty"`

	// Trigger rules
	TemperatureThreshold *float64             `json:"temperature_threshold,omitempty"`
	TemperatureDirection TemperatureDirection `json:"temperature_direction,omitempty"`
	MinTemperature       *float64             `json:"min_temperature,omitempty"`
	MaxTemperature       *float64             `json:"max_temperature,omitempty"`
	MaxWindSpeed         *float64             `json:"max_wind_speed,omitempty"`
	MaxPrecipitation     *float64             `json:"max_precipitation,omitempty"`
	RainThreshold        *float64             `json:"rain_threshold,omitempty"`
	RainThresholdType    RainThresholdType    `json:"rain_threshold_type,omitempty"`

	// TemperatureUnit is the unit the temperature thresholds above are
	// expressed in. Empty means Fahrenheit (historical default).
	TemperatureUnit TemperatureUnit `json:"temperature_unit,omitempty"`

	// Monitoring scope. Nil means true (monitor by default).
	MonitorCurrent      *bool `json:"monitor_current,omitempty"`
	MonitorForecast     *bool `json:"monitor_forecast,omitempty"`
	ForecastWindowHours int   `json:"forecast_window_hours,omitempty"`

	// Anti-spam controls.
	OncePerEvent       bool `json:"once_per_event"`
	RearmWindowMinutes int  `json:"rearm_window_minutes"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MonitorsCurrent reports whether current conditions are in scope.
func (c *AlertCriteria) MonitorsCurrent() bool {
	return c.MonitorCurrent == nil || *c.MonitorCurrent
}

// MonitorsForecast reports whether forecast periods are in scope.
func (c *AlertCriteria) MonitorsForecast() bool {
	return c.MonitorForecast == nil || *c.MonitorForecast
}

// NormalizedForecastWindow returns the forecast window in hours, defaulting
// to 48 and clamped to [1, 168].
func (c *AlertCriteria) NormalizedForecastWindow() int {
	h := c.ForecastWindowHours
	if h == 0 {
		h = 48
	}
	if h < 1 {
		h = 1
	}
	if h > 168 {
		h = 168
	}
	return h
}

// WeatherSnapshot is a normalized view of one weather condition: a government
// alert, a current-conditions reading, or a forecast period. Numeric fields
// are nil when the upstream source did not report them.
type WeatherSnapshot struct {
	ID          string          `json:"id"`
	Source      ConditionSource `json:"source"`
	Location    string          `json:"location,omitempty"`
	Latitude    *float64        `json:"latitude,omitempty"`
	Longitude   *float64        `json:"longitude,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	Headline    string          `json:"headline,omitempty"`
	Description string          `json:"description,omitempty"`
	Severity    string          `json:"severity,omitempty"`

	// TemperatureC is always Celsius and WindSpeed is always km/h,
	// regardless of upstream units.
	TemperatureC             *float64 `json:"temperature_c,omitempty"`
	WindSpeed                *float64 `json:"wind_speed,omitempty"`
	Precipitation            *float64 `json:"precipitation,omitempty"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
	PrecipitationAmount      *float64 `json:"precipitation_amount,omitempty"`

	Onset      *time.Time `json:"onset,omitempty"`
	Expires    *time.Time `json:"expires,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
}

// FetchResult carries the outcome of a weather provider fetch. OK
// distinguishes "provider reachable, nothing relevant" from "provider down":
// a failed fetch must leave criteria state untouched, while an empty
// successful fetch legitimately clears conditions.
type FetchResult struct {
	OK       bool              `json:"ok"`
	Alerts   []WeatherSnapshot `json:"alerts,omitempty"`
	Current  *WeatherSnapshot  `json:"current,omitempty"`
	Forecast []WeatherSnapshot `json:"forecast,omitempty"`
}

// Alert is one notification-worthy event produced by the evaluation engine.
// EventKey is the idempotency key: the database enforces at most one alert
// per (criteria_id, event_key).
type Alert struct {
	ID            string `json:"id"`
	CriteriaID    string `json:"criteria_id"`
	UserID        string `json:"user_id"`
	WeatherDataID string `json:"weather_data_id,omitempty"`
	EventKey      string `json:"event_key"`

	Headline    string `json:"headline,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Location    string `json:"location,omitempty"`
	Reason      string `json:"reason,omitempty"`

	ConditionSource                   ConditionSource `json:"condition_source"`
	ConditionOnset                    *time.Time      `json:"condition_onset,omitempty"`
	ConditionExpires                  *time.Time      `json:"condition_expires,omitempty"`
	ConditionTemperatureC             *float64        `json:"condition_temperature_c,omitempty"`
	ConditionPrecipitationProbability *float64        `json:"condition_precipitation_probability,omitempty"`
	ConditionPrecipitationAmount      *float64        `json:"condition_precipitation_amount,omitempty"`

	Status    AlertStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	SentAt    *time.Time  `json:"sent_at,omitempty"`
}

// CriteriaState tracks the anti-spam state machine for one condition stream
// of one criteria. ConditionKey separates the streams ("current", "forecast",
// or "alert|{weatherDataID}") so a continuing heat wave does not suppress a
// new flood warning.
type CriteriaState struct {
	CriteriaID         string     `json:"criteria_id"`
	ConditionKey       string     `json:"condition_key"`
	LastConditionMet   bool       `json:"last_condition_met"`
	LastEventSignature string     `json:"last_event_signature,omitempty"`
	LastNotifiedAt     *time.Time `json:"last_notified_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DeliveryRecord is the per-channel delivery ledger row for one alert.
// Uniqueness on (alert_id, channel) makes enqueue idempotent; the status
// checks in the worker make task redelivery idempotent.
type DeliveryRecord struct {
	ID          string         `json:"id"`
	AlertID     string         `json:"alert_id"`
	UserID      string         `json:"user_id"`
	Channel     Channel        `json:"channel"`
	Destination string         `json:"destination"`
	Status      DeliveryStatus `json:"status"`

	AttemptCount      int        `json:"attempt_count"`
	LastError         string     `json:"last_error,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	NextAttemptAt     *time.Time `json:"next_attempt_at,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the minimal user projection the delivery path needs.
type User struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
}

// UserPreference is the account-level notification preference.
type UserPreference struct {
	UserID           string           `json:"user_id"`
	Channels         ChannelList      `json:"channels"`
	PreferredChannel Channel          `json:"preferred_channel,omitempty"`
	Strategy         FallbackStrategy `json:"strategy,omitempty"`
}

// CriteriaPreference optionally overrides the user preference for a single
// criteria. UseUserDefaults=true means the override carries no explicit
// routing of its own; setting both is a configuration conflict.
type CriteriaPreference struct {
	CriteriaID       string           `json:"criteria_id"`
	UseUserDefaults  bool             `json:"use_user_defaults"`
	Channels         ChannelList      `json:"channels,omitempty"`
	PreferredChannel Channel          `json:"preferred_channel,omitempty"`
	Strategy         FallbackStrategy `json:"strategy,omitempty"`
}

// ResolvedPreference is the normalized routing decision for one alert:
// deduplicated channels with the preferred channel first.
type ResolvedPreference struct {
	Channels         []Channel        `json:"channels"`
	PreferredChannel Channel          `json:"preferred_channel"`
	Strategy         FallbackStrategy `json:"strategy"`
}
