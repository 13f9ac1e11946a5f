package delivery

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stormwatch/internal/types"
)

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricRetried MetricResult = "retried"
)

// Metrics abstracts CloudWatch/telemetry operations for the delivery
// pipeline.
type Metrics interface {
	RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult)
	RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration)
	RecordRetrySweep(ctx context.Context, size int)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by emitting to AWS CloudWatch.
//
// Metrics emitted:
//   - DeliveryAttempt: Dims {Channel, Result} -- on every delivery outcome
//   - DeliveryLatency: Dims {Channel} -- time taken for a send attempt
//   - RetrySweepSize: No dims -- deliveries republished per sweep
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// Compile-time assertion that CloudWatchMetrics implements Metrics.
var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the
// engine's metric namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordDelivery emits a DeliveryAttempt metric with Channel and Result
// dimensions.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimChannel),
						Value: aws.String(string(channel)),
					},
					{
						Name:  aws.String(types.DimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"channel", string(channel),
			"result", string(result),
		)
	}
}

// RecordLatency emits a DeliveryLatency metric with the Channel dimension.
// Duration is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimChannel),
						Value: aws.String(string(channel)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"channel", string(channel),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordRetrySweep emits the number of overdue deliveries republished by one
// sweeper pass.
func (m *CloudWatchMetrics) RecordRetrySweep(ctx context.Context, size int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricRetrySweepSize),
				Value:      aws.Float64(float64(size)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record retry sweep metric",
			"error", err.Error(),
			"size", size,
		)
	}
}

// NoopMetrics discards every metric. Used in local mode and tests.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordDelivery(context.Context, types.Channel, MetricResult) {}
func (NoopMetrics) RecordLatency(context.Context, types.Channel, time.Duration) {}
func (NoopMetrics) RecordRetrySweep(context.Context, int)                       {}
