package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stormwatch/internal/types"
)

// WorkerStore is the persistence surface the worker needs: read one record,
// write it back.
type WorkerStore interface {
	GetByID(ctx context.Context, id string) (*types.DeliveryRecord, error)
	Update(ctx context.Context, d *types.DeliveryRecord) error
}

// AlertStore loads alert content for rendering and marks alerts sent after
// their first successful delivery.
type AlertStore interface {
	GetByID(ctx context.Context, id string) (*types.Alert, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
}

// DeadLetterQueue receives the terminal snapshot of a failed delivery.
type DeadLetterQueue interface {
	PublishDeadLetter(ctx context.Context, msg types.DeadLetterMessage) error
}

// Worker processes delivery task messages. Each task is handled by re-reading
// the delivery record and driving it through the state machine, so redelivered
// or duplicated SQS messages collapse into no-ops.
type Worker struct {
	store   WorkerStore
	alerts  AlertStore
	dlq     DeadLetterQueue
	senders map[types.Channel]types.ChannelSender
	policy  RetryPolicy
	metrics Metrics
	clock   types.Clock
	logger  types.Logger
	enabled bool
}

// NewWorker creates a delivery worker. senders maps each supported channel to
// its provider; channels without a sender fail permanently.
func NewWorker(
	store WorkerStore,
	alerts AlertStore,
	dlq DeadLetterQueue,
	senders []types.ChannelSender,
	policy RetryPolicy,
	metrics Metrics,
	clock types.Clock,
	logger types.Logger,
	enabled bool,
) *Worker {
	byChannel := make(map[types.Channel]types.ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}

	return &Worker{
		store:   store,
		alerts:  alerts,
		dlq:     dlq,
		senders: byChannel,
		policy:  policy,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
		enabled: enabled,
	}
}

// ProcessTask handles one delivery task message.
//
// No-op cases: worker disabled, record missing, record terminal, or the
// attempt is not due yet. The retry sweeper republishes anything left in a
// non-terminal state, so dropping the message here is safe.
func (w *Worker) ProcessTask(ctx context.Context, msg types.DeliveryTaskMessage) error {
	if msg.TraceID != "" {
		ctx = types.WithTraceID(ctx, msg.TraceID)
	}

	if !w.enabled {
		w.logger.Warn("delivery worker disabled, dropping task", "delivery_id", msg.DeliveryID)
		return nil
	}

	record, err := w.store.GetByID(ctx, msg.DeliveryID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundDelivery {
			w.logger.Warn("delivery record missing, dropping task", "delivery_id", msg.DeliveryID)
			return nil
		}
		return err
	}

	if record.Status.Terminal() {
		return nil
	}

	now := w.clock.Now()
	if record.NextAttemptAt != nil && record.NextAttemptAt.After(now) {
		// Premature redelivery. The sweeper will bring it back when due.
		return nil
	}

	record.Status = types.DeliveryStatusInProgress
	record.AttemptCount++
	record.UpdatedAt = now
	if err := w.store.Update(ctx, record); err != nil {
		return err
	}

	sender, ok := w.senders[record.Channel]
	if !ok {
		sendErr := types.NewAppErrorWithDetails(types.ErrCodeChannelUnsupported,
			fmt.Sprintf("no sender registered for channel %s", record.Channel), nil,
			map[string]any{"channel": string(record.Channel)})
		return w.handleFailure(ctx, record, sendErr)
	}

	alert, err := w.alerts.GetByID(ctx, record.AlertID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAlert {
			return w.handleFailure(ctx, record, appErr)
		}
		return err
	}

	start := w.clock.Now()
	providerMsgID, sendErr := sender.Send(ctx, alert, record.Destination)
	w.metrics.RecordLatency(ctx, record.Channel, w.clock.Now().Sub(start))

	if sendErr != nil {
		return w.handleFailure(ctx, record, sendErr)
	}

	return w.handleSuccess(ctx, record, providerMsgID)
}

// handleSuccess transitions the record to SENT and marks the parent alert.
func (w *Worker) handleSuccess(ctx context.Context, record *types.DeliveryRecord, providerMsgID string) error {
	now := w.clock.Now()
	record.Status = types.DeliveryStatusSent
	record.ProviderMessageID = providerMsgID
	record.SentAt = &now
	record.LastError = ""
	record.NextAttemptAt = nil
	record.UpdatedAt = now

	if err := w.store.Update(ctx, record); err != nil {
		return err
	}

	if err := w.alerts.MarkSent(ctx, record.AlertID, now); err != nil {
		// The delivery succeeded; a stale alert status is repairable.
		w.logger.Error("failed to mark alert sent",
			"alert_id", record.AlertID,
			"delivery_id", record.ID,
			"error", err.Error(),
		)
	}

	w.metrics.RecordDelivery(ctx, record.Channel, MetricSuccess)
	w.logger.Info("delivery sent",
		"delivery_id", record.ID,
		"alert_id", record.AlertID,
		"channel", string(record.Channel),
		"provider_message_id", providerMsgID,
		"attempt", record.AttemptCount,
	)

	return nil
}

// handleFailure classifies the error and either schedules a retry or fails
// the delivery permanently with a single dead-letter publish.
func (w *Worker) handleFailure(ctx context.Context, record *types.DeliveryRecord, sendErr error) error {
	now := w.clock.Now()
	failureType := ClassifyFailure(sendErr)
	errText := truncateError(sendErr.Error())
	record.LastError = errText
	record.UpdatedAt = now

	terminal := failureType == types.FailureNonRetryable || record.AttemptCount >= w.policy.MaxAttempts

	if terminal {
		record.Status = types.DeliveryStatusFailed
		record.NextAttemptAt = nil
		if err := w.store.Update(ctx, record); err != nil {
			return err
		}

		w.metrics.RecordDelivery(ctx, record.Channel, MetricFailed)
		w.logger.Error("delivery permanently failed",
			"delivery_id", record.ID,
			"alert_id", record.AlertID,
			"channel", string(record.Channel),
			"attempt", record.AttemptCount,
			"failure_type", string(failureType),
			"error", errText,
		)

		if err := w.dlq.PublishDeadLetter(ctx, types.DeadLetterMessage{
			DeliveryID:   record.ID,
			AlertID:      record.AlertID,
			UserID:       record.UserID,
			Channel:      record.Channel,
			Destination:  record.Destination,
			AttemptCount: record.AttemptCount,
			FailureType:  failureType,
			Error:        errText,
			OccurredAt:   now,
		}); err != nil {
			// The record is already FAILED; losing the DLQ copy is the
			// lesser problem.
			w.logger.Error("failed to publish dead letter",
				"delivery_id", record.ID,
				"error", err.Error(),
			)
		}

		return nil
	}

	nextAt := now.Add(NextRetryDelay(w.policy, record.AttemptCount))
	record.Status = types.DeliveryStatusRetryScheduled
	record.NextAttemptAt = &nextAt
	if err := w.store.Update(ctx, record); err != nil {
		return err
	}

	w.metrics.RecordDelivery(ctx, record.Channel, MetricRetried)
	w.logger.Warn("delivery failed, retry scheduled",
		"delivery_id", record.ID,
		"alert_id", record.AlertID,
		"channel", string(record.Channel),
		"attempt", record.AttemptCount,
		"next_attempt_at", nextAt.Format(time.RFC3339),
		"error", errText,
	)

	return nil
}

// maxErrorLen caps stored and dead-lettered error text so one oversized
// upstream response body cannot bloat the ledger or the DLQ.
const maxErrorLen = 512

func truncateError(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	return s[:maxErrorLen]
}
