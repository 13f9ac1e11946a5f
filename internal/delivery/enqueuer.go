package delivery

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"stormwatch/internal/types"
)

// DeliveryStore is the persistence surface the enqueuer and worker need.
type DeliveryStore interface {
	CreateIfAbsent(ctx context.Context, d *types.DeliveryRecord) (created bool, err error)
	FindByAlertAndChannel(ctx context.Context, alertID string, channel types.Channel) (*types.DeliveryRecord, error)
}

// PreferenceResolver resolves the routing decision for one user and criteria.
type PreferenceResolver interface {
	Resolve(ctx context.Context, userID, criteriaID string) (types.ResolvedPreference, error)
}

// UserDirectory looks up delivery destinations.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// TaskQueue publishes delivery task messages for the worker.
type TaskQueue interface {
	PublishDeliveryTask(ctx context.Context, deliveryID string) error
}

// Enqueuer turns a created alert into per-channel delivery records and task
// messages. Every failure mode that would otherwise wedge the evaluation
// cycle degrades to a logged no-op: a missing user or broken preferences must
// never fail alert creation.
type Enqueuer struct {
	deliveries DeliveryStore
	resolver   PreferenceResolver
	users      UserDirectory
	tasks      TaskQueue
	clock      types.Clock
	logger     types.Logger
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(
	deliveries DeliveryStore,
	resolver PreferenceResolver,
	users UserDirectory,
	tasks TaskQueue,
	clock types.Clock,
	logger types.Logger,
) *Enqueuer {
	return &Enqueuer{
		deliveries: deliveries,
		resolver:   resolver,
		users:      users,
		tasks:      tasks,
		clock:      clock,
		logger:     logger,
	}
}

// Enqueue creates delivery records and task messages for one alert.
//
// Idempotency: the (alert_id, channel) uniqueness in the store means a second
// Enqueue for the same alert republishes tasks for still-pending records
// instead of duplicating them; terminal records are left alone.
func (e *Enqueuer) Enqueue(ctx context.Context, alert *types.Alert) error {
	if alert == nil || alert.ID == "" || alert.UserID == "" {
		return nil
	}

	pref, err := e.resolver.Resolve(ctx, alert.UserID, alert.CriteriaID)
	if err != nil {
		e.logger.Warn("preference resolution failed, skipping delivery",
			"alert_id", alert.ID,
			"user_id", alert.UserID,
			"error", err.Error(),
		)
		return nil
	}

	user, err := e.users.GetByID(ctx, alert.UserID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			e.logger.Warn("alert owner no longer exists, skipping delivery",
				"alert_id", alert.ID,
				"user_id", alert.UserID,
			)
			return nil
		}
		return err
	}

	channels := pref.Channels
	if pref.Strategy != types.StrategyAllChannels && len(channels) > 1 {
		// FIRST_SUCCESS routes to the preferred channel; fallback channels
		// are only engaged if a later policy reworks the worker. Enqueue
		// just the head of the list.
		channels = channels[:1]
	}

	for _, channel := range channels {
		if err := e.enqueueChannel(ctx, alert, user, channel); err != nil {
			return err
		}
	}

	return nil
}

// enqueueChannel ensures one (alert, channel) delivery record exists and has
// a task in flight.
func (e *Enqueuer) enqueueChannel(ctx context.Context, alert *types.Alert, user *types.User, channel types.Channel) error {
	existing, err := e.deliveries.FindByAlertAndChannel(ctx, alert.ID, channel)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.Status.Terminal() {
			return nil
		}
		if existing.Status == types.DeliveryStatusPending || existing.Status == types.DeliveryStatusRetryScheduled {
			// A record exists but its task may have been lost. Republish.
			return e.tasks.PublishDeliveryTask(ctx, existing.ID)
		}
		// IN_PROGRESS: a worker holds it right now.
		return nil
	}

	destination := destinationFor(user, channel)
	if destination == "" {
		e.logger.Warn("no destination for channel, skipping delivery",
			"alert_id", alert.ID,
			"user_id", alert.UserID,
			"channel", string(channel),
		)
		return nil
	}

	now := e.clock.Now()
	record := &types.DeliveryRecord{
		ID:            uuid.New().String(),
		AlertID:       alert.ID,
		UserID:        alert.UserID,
		Channel:       channel,
		Destination:   destination,
		Status:        types.DeliveryStatusPending,
		AttemptCount:  0,
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := e.deliveries.CreateIfAbsent(ctx, record)
	if err != nil {
		return err
	}
	if !created {
		// Lost a race with a concurrent enqueue; that writer publishes.
		return nil
	}

	e.logger.Info("delivery enqueued",
		"delivery_id", record.ID,
		"alert_id", alert.ID,
		"channel", string(channel),
	)

	return e.tasks.PublishDeliveryTask(ctx, record.ID)
}

// destinationFor picks the channel-appropriate destination. Unknown channels
// fall back to the user ID so the record is still traceable.
func destinationFor(user *types.User, channel types.Channel) string {
	switch channel {
	case types.ChannelEmail:
		return user.Email
	case types.ChannelSMS:
		return user.Phone
	default:
		return user.ID
	}
}
