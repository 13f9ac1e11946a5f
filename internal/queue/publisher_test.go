package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

type captureSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (c *captureSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.inputs = append(c.inputs, params)
	if c.err != nil {
		return nil, c.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (n nopLogger) With(...any) types.Logger { return n }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testAWSConfig() config.AWSConfig {
	return config.AWSConfig{
		Region:            "us-east-1",
		DeliveryTaskQueue: "https://sqs.us-east-1.amazonaws.com/123/delivery-tasks",
		DeliveryDLQ:       "https://sqs.us-east-1.amazonaws.com/123/delivery-dlq",
	}
}

func TestTaskPublisher_PublishDeliveryTask(t *testing.T) {
	sender := &captureSender{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pub := NewTaskPublisher(sender, testAWSConfig(), nopLogger{}, fixedClock{now})

	ctx := types.WithTraceID(context.Background(), "trace-abc")
	err := pub.PublishDeliveryTask(ctx, "del-1")
	require.NoError(t, err)
	require.Len(t, sender.inputs, 1)

	input := sender.inputs[0]
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/delivery-tasks", *input.QueueUrl)

	var msg types.DeliveryTaskMessage
	require.NoError(t, json.Unmarshal([]byte(*input.MessageBody), &msg))
	assert.Equal(t, "del-1", msg.DeliveryID)
	assert.Equal(t, now, msg.RequestedAt)
	assert.Equal(t, "trace-abc", msg.TraceID)

	attr, ok := input.MessageAttributes["message_type"]
	require.True(t, ok)
	assert.Equal(t, "delivery_task", *attr.StringValue)
	assert.Equal(t, "trace-abc", *input.MessageAttributes["trace_id"].StringValue)
}

func TestTaskPublisher_MintsTraceIDWhenAbsent(t *testing.T) {
	sender := &captureSender{}
	pub := NewTaskPublisher(sender, testAWSConfig(), nopLogger{}, types.RealClock{})

	err := pub.PublishDeliveryTask(context.Background(), "del-2")
	require.NoError(t, err)

	var msg types.DeliveryTaskMessage
	require.NoError(t, json.Unmarshal([]byte(*sender.inputs[0].MessageBody), &msg))
	assert.NotEmpty(t, msg.TraceID)
}

func TestTaskPublisher_SendFailure(t *testing.T) {
	sender := &captureSender{err: errors.New("queue unavailable")}
	pub := NewTaskPublisher(sender, testAWSConfig(), nopLogger{}, types.RealClock{})

	err := pub.PublishDeliveryTask(context.Background(), "del-3")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeQueuePublish, appErr.Code)
	assert.Equal(t, "del-3", appErr.Details["delivery_id"])
}

func TestDLQPublisher_PublishDeadLetter(t *testing.T) {
	sender := &captureSender{}
	pub := NewDLQPublisher(sender, testAWSConfig(), nopLogger{})

	occurred := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	err := pub.PublishDeadLetter(context.Background(), types.DeadLetterMessage{
		DeliveryID:   "del-4",
		AlertID:      "alert-1",
		UserID:       "user-1",
		Channel:      types.ChannelEmail,
		Destination:  "u@example.com",
		AttemptCount: 5,
		FailureType:  types.FailureRetryable,
		Error:        "mailbox full",
		OccurredAt:   occurred,
	})
	require.NoError(t, err)
	require.Len(t, sender.inputs, 1)

	input := sender.inputs[0]
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/delivery-dlq", *input.QueueUrl)

	var msg types.DeadLetterMessage
	require.NoError(t, json.Unmarshal([]byte(*input.MessageBody), &msg))
	assert.Equal(t, "del-4", msg.DeliveryID)
	assert.Equal(t, types.ChannelEmail, msg.Channel)
	assert.Equal(t, occurred, msg.OccurredAt)

	assert.Equal(t, "dead_letter", *input.MessageAttributes["message_type"].StringValue)
	assert.Equal(t, string(types.FailureRetryable), *input.MessageAttributes["failure_type"].StringValue)
}

func TestDLQPublisher_StampsOccurredAt(t *testing.T) {
	sender := &captureSender{}
	pub := NewDLQPublisher(sender, testAWSConfig(), nopLogger{})

	err := pub.PublishDeadLetter(context.Background(), types.DeadLetterMessage{DeliveryID: "del-5"})
	require.NoError(t, err)

	var msg types.DeadLetterMessage
	require.NoError(t, json.Unmarshal([]byte(*sender.inputs[0].MessageBody), &msg))
	assert.False(t, msg.OccurredAt.IsZero())
}

func TestDLQPublisher_SendFailure(t *testing.T) {
	sender := &captureSender{err: errors.New("access denied")}
	pub := NewDLQPublisher(sender, testAWSConfig(), nopLogger{})

	err := pub.PublishDeadLetter(context.Background(), types.DeadLetterMessage{DeliveryID: "del-6"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeQueuePublish, appErr.Code)
}
