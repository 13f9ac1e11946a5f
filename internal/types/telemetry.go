package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricDeliveryAttempt    = "DeliveryAttempt"
	MetricDeliveryLatency    = "DeliveryLatency"
	MetricRetrySweepSize     = "RetrySweepSize"
	MetricEvaluationLag      = "EvaluationLag"
	MetricAlertsCreated      = "AlertsCreated"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	// Dimension Keys
	DimChannel  = "Channel"
	DimResult   = "Result"
	DimProvider = "Provider"
	DimSource   = "Source"

	// Metric Namespace
	MetricNamespace = "StormWatch"
)
