package engine

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stormwatch/internal/types"
)

// Metrics abstracts the telemetry the evaluation engine emits.
type Metrics interface {
	// RecordEvaluationLag reports how long one full cycle took.
	RecordEvaluationLag(ctx context.Context, duration time.Duration)
	// RecordAlertCreated counts a newly raised alert by condition source.
	RecordAlertCreated(ctx context.Context, source types.ConditionSource)
	// RecordFetchFailure counts a failed weather provider fetch.
	RecordFetchFailure(ctx context.Context, provider string)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by emitting to AWS CloudWatch.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the engine's
// metric namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordEvaluationLag emits the cycle duration in milliseconds.
func (m *CloudWatchMetrics) RecordEvaluationLag(ctx context.Context, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricEvaluationLag),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordAlertCreated emits an AlertsCreated count with the Source dimension.
func (m *CloudWatchMetrics) RecordAlertCreated(ctx context.Context, source types.ConditionSource) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAlertsCreated),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{
				Name:  aws.String(types.DimSource),
				Value: aws.String(string(source)),
			},
		},
	})
}

// RecordFetchFailure emits an ExternalAPIFailure count with the Provider
// dimension.
func (m *CloudWatchMetrics) RecordFetchFailure(ctx context.Context, provider string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricExternalAPIFailure),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{
				Name:  aws.String(types.DimProvider),
				Value: aws.String(provider),
			},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record engine metric",
			"metric", *datum.MetricName,
			"error", err.Error(),
		)
	}
}

// NoopMetrics discards every metric. Used in local mode and tests.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordEvaluationLag(context.Context, time.Duration)         {}
func (NoopMetrics) RecordAlertCreated(context.Context, types.ConditionSource)  {}
func (NoopMetrics) RecordFetchFailure(context.Context, string)                 {}
