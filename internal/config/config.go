// Package config defines the global configuration structure for the StormWatch
// alerting engine. Configuration is loaded once at process initialization
// (Lambda cold start) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"stormwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the alerting engine.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"stormwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Database  DatabaseConfig
	AWS       AWSConfig
	Email     EmailConfig
	Delivery  DeliveryConfig
	Evaluator EvaluatorConfig
	Weather   WeatherConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	DeliveryTaskQueue string `envconfig:"SQS_DELIVERY_TASKS" validate:"required,url"`
	DeliveryDLQ       string `envconfig:"SQS_DELIVERY_DLQ" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery provider configuration.
type EmailConfig struct {
	FromAddress   string `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@stormwatch.io"`
	FromName      string `envconfig:"EMAIL_FROM_NAME" default:"StormWatch Alerts"`
	ConfigSetName string `envconfig:"SES_CONFIG_SET"`
}

// DeliveryConfig holds retry and worker tuning for the delivery pipeline.
type DeliveryConfig struct {
	// WorkerEnabled is the kill switch for the whole delivery pipeline.
	// When false the retry sweeper stops republishing and workers drain
	// without sending.
	WorkerEnabled bool `envconfig:"DELIVERY_WORKER_ENABLED" default:"true"`

	MaxAttempts          int `envconfig:"DELIVERY_MAX_ATTEMPTS" default:"5" validate:"min=1"`
	RetryBaseSeconds     int `envconfig:"DELIVERY_RETRY_BASE_SECONDS" default:"30" validate:"min=1"`
	RetryMaxSeconds      int `envconfig:"DELIVERY_RETRY_MAX_SECONDS" default:"900" validate:"min=1"`
	RetryPollerBatchSize int `envconfig:"DELIVERY_RETRY_BATCH_SIZE" default:"100" validate:"min=1"`
}

// EvaluatorConfig holds evaluation cycle tuning.
type EvaluatorConfig struct {
	// Concurrency bounds the number of criteria evaluated in parallel
	// during one cycle.
	Concurrency int `envconfig:"EVAL_CONCURRENCY" default:"8" validate:"min=1"`
}

// WeatherConfig holds the upstream weather data source configuration.
type WeatherConfig struct {
	BaseURL   string        `envconfig:"WEATHER_API_BASE_URL" default:"https://api.weather.gov"`
	UserAgent string        `envconfig:"WEATHER_API_USER_AGENT" default:"StormWatch/1.0 (alerts@stormwatch.io)"`
	Timeout   time.Duration `envconfig:"WEATHER_API_TIMEOUT" default:"15s"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
