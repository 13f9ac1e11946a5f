// Package queue provides SQS-based message producers for dispatching delivery
// tasks and dead letters to downstream workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// TaskPublisher enqueues delivery task messages for the delivery worker.
type TaskPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
	clock    types.Clock
}

// NewTaskPublisher creates a TaskPublisher reading the queue URL from the
// AWS configuration.
func NewTaskPublisher(client SQSSender, awsCfg config.AWSConfig, logger types.Logger, clock types.Clock) *TaskPublisher {
	return &TaskPublisher{
		client:   client,
		queueURL: awsCfg.DeliveryTaskQueue,
		logger:   logger,
		clock:    clock,
	}
}

// PublishDeliveryTask sends a DeliveryTaskMessage for the given delivery
// record. The trace ID from the context is carried into the message so the
// worker can correlate its logs; a fresh one is minted when absent.
func (p *TaskPublisher) PublishDeliveryTask(ctx context.Context, deliveryID string) error {
	traceID := types.GetTraceID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}

	msg := types.DeliveryTaskMessage{
		DeliveryID:  deliveryID,
		RequestedAt: p.clock.Now(),
		TraceID:     traceID,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("marshal delivery task for %s", deliveryID), err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"message_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("delivery_task"),
			},
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(traceID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeQueuePublish,
			"failed to publish delivery task", err,
			map[string]any{"delivery_id": deliveryID, "queue_url": p.queueURL})
	}

	p.logger.Info("delivery task published",
		"delivery_id", deliveryID,
		"trace_id", traceID,
		"queue_url", p.queueURL,
	)

	return nil
}

// DLQPublisher publishes dead-letter snapshots for deliveries that reached
// the FAILED state.
type DLQPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewDLQPublisher creates a DLQPublisher reading the queue URL from the AWS
// configuration.
func NewDLQPublisher(client SQSSender, awsCfg config.AWSConfig, logger types.Logger) *DLQPublisher {
	return &DLQPublisher{
		client:   client,
		queueURL: awsCfg.DeliveryDLQ,
		logger:   logger,
	}
}

// PublishDeadLetter sends the dead-letter snapshot. OccurredAt is stamped
// here when the caller left it zero.
func (p *DLQPublisher) PublishDeadLetter(ctx context.Context, msg types.DeadLetterMessage) error {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("marshal dead letter for %s", msg.DeliveryID), err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"message_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("dead_letter"),
			},
			"failure_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.FailureType)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeQueuePublish,
			"failed to publish dead letter", err,
			map[string]any{"delivery_id": msg.DeliveryID, "queue_url": p.queueURL})
	}

	p.logger.Warn("delivery dead-lettered",
		"delivery_id", msg.DeliveryID,
		"alert_id", msg.AlertID,
		"channel", string(msg.Channel),
		"failure_type", string(msg.FailureType),
		"attempts", msg.AttemptCount,
	)

	return nil
}
