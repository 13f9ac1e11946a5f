package delivery

import (
	"context"
	"time"

	"stormwatch/internal/types"
)

// SweeperStore lists deliveries whose next attempt is due.
type SweeperStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]*types.DeliveryRecord, error)
}

// Sweeper republishes task messages for deliveries stuck in PENDING or
// RETRY_SCHEDULED past their next attempt time. SQS offers no scheduled
// delivery beyond 15 minutes, so backoff landing further out relies on this
// sweep to resurface the work.
type Sweeper struct {
	store     SweeperStore
	tasks     TaskQueue
	metrics   Metrics
	clock     types.Clock
	logger    types.Logger
	batchSize int
	enabled   bool
}

// NewSweeper creates a retry sweeper.
func NewSweeper(
	store SweeperStore,
	tasks TaskQueue,
	metrics Metrics,
	clock types.Clock,
	logger types.Logger,
	batchSize int,
	enabled bool,
) *Sweeper {
	return &Sweeper{
		store:     store,
		tasks:     tasks,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
		batchSize: batchSize,
		enabled:   enabled,
	}
}

// Sweep republishes one batch of overdue deliveries and returns how many
// tasks were published. Publish failures are logged and skipped; the next
// sweep picks the record up again.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.enabled {
		s.logger.Warn("delivery pipeline disabled, skipping retry sweep")
		return 0, nil
	}

	due, err := s.store.FindDue(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, record := range due {
		if err := s.tasks.PublishDeliveryTask(ctx, record.ID); err != nil {
			s.logger.Error("failed to republish delivery task",
				"delivery_id", record.ID,
				"error", err.Error(),
			)
			continue
		}
		published++
	}

	s.metrics.RecordRetrySweep(ctx, published)
	if published > 0 {
		s.logger.Info("retry sweep complete",
			"due", len(due),
			"published", published,
		)
	}

	return published, nil
}
