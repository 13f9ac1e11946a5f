package types

import "time"

// DeliveryTaskMessage is the SQS envelope for one delivery attempt. The body
// intentionally carries only the record ID: the worker re-reads the delivery
// row on every attempt, so stale or duplicated messages are harmless.
type DeliveryTaskMessage struct {
	DeliveryID  string    `json:"delivery_id"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// DeadLetterMessage is published exactly once when a delivery reaches the
// FAILED state. It is a self-contained snapshot so DLQ consumers need no
// database access to triage.
type DeadLetterMessage struct {
	DeliveryID   string      `json:"delivery_id"`
	AlertID      string      `json:"alert_id"`
	UserID       string      `json:"user_id"`
	Channel      Channel     `json:"channel"`
	Destination  string      `json:"destination"`
	AttemptCount int         `json:"attempt_count"`
	FailureType  FailureType `json:"failure_type"`
	Error        string      `json:"error"`
	OccurredAt   time.Time   `json:"occurred_at"`
}
