package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// DeliveryRepository provides data access for the alert_deliveries table.
// The unique index on (alert_id, channel) makes enqueue idempotent.
type DeliveryRepository struct {
	db DBTX
}

// NewDeliveryRepository creates a new DeliveryRepository backed by the given
// database connection (pool or transaction).
func NewDeliveryRepository(db DBTX) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// deliveryColumns is the canonical column list shared by delivery queries.
const deliveryColumns = `
	id, alert_id, user_id, channel, COALESCE(destination, ''), status,
	attempt_count, COALESCE(last_error, ''), COALESCE(provider_message_id, ''),
	next_attempt_at, sent_at, created_at, updated_at`

// CreateIfAbsent performs an idempotent insert using INSERT ... ON CONFLICT
// DO NOTHING on (alert_id, channel). It returns false when a record for this
// alert and channel already exists.
func (r *DeliveryRepository) CreateIfAbsent(ctx context.Context, d *types.DeliveryRecord) (created bool, err error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO alert_deliveries
		 (id, alert_id, user_id, channel, destination, status,
		  attempt_count, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (alert_id, channel) DO NOTHING`,
		d.ID,
		d.AlertID,
		d.UserID,
		string(d.Channel),
		nilIfEmpty(d.Destination),
		string(d.Status),
		d.AttemptCount,
		d.NextAttemptAt,
		nilIfZeroTime(d.CreatedAt),
		nilIfZeroTime(d.UpdatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create delivery record", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID returns a single delivery record by ID.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*types.DeliveryRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM alert_deliveries WHERE id = $1`,
		id,
	)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDelivery, "delivery record not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get delivery record", err)
	}
	return d, nil
}

// FindByAlertAndChannel returns the delivery record for one alert/channel
// pair, or nil when none exists yet. Absence is the normal case on first
// enqueue.
func (r *DeliveryRepository) FindByAlertAndChannel(ctx context.Context, alertID string, channel types.Channel) (*types.DeliveryRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+deliveryColumns+`
		 FROM alert_deliveries
		 WHERE alert_id = $1 AND channel = $2`,
		alertID, string(channel),
	)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find delivery record", err)
	}
	return d, nil
}

// Update writes the mutable fields of a delivery record.
func (r *DeliveryRepository) Update(ctx context.Context, d *types.DeliveryRecord) error {
	_, err := r.db.Exec(ctx,
		`UPDATE alert_deliveries
		 SET status = $2, attempt_count = $3, last_error = $4,
		     provider_message_id = $5, next_attempt_at = $6, sent_at = $7,
		     updated_at = $8
		 WHERE id = $1`,
		d.ID,
		string(d.Status),
		d.AttemptCount,
		nilIfEmpty(d.LastError),
		nilIfEmpty(d.ProviderMessageID),
		d.NextAttemptAt,
		d.SentAt,
		d.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update delivery record", err)
	}
	return nil
}

// FindDue returns up to limit records that are eligible for an attempt:
// non-terminal status with next_attempt_at at or before now. Used by the
// retry sweeper to recover lost or scheduled work.
func (r *DeliveryRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*types.DeliveryRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deliveryColumns+`
		 FROM alert_deliveries
		 WHERE status IN ($1, $2) AND next_attempt_at <= $3
		 ORDER BY next_attempt_at
		 LIMIT $4`,
		string(types.DeliveryStatusPending),
		string(types.DeliveryStatusRetryScheduled),
		now,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find due deliveries", err)
	}
	defer rows.Close()

	var out []*types.DeliveryRecord
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery row", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "delivery row iteration failed", err)
	}
	return out, nil
}

// scanDelivery scans one row in deliveryColumns order.
func scanDelivery(row pgx.Row) (*types.DeliveryRecord, error) {
	var d types.DeliveryRecord
	var channel, status string

	err := row.Scan(
		&d.ID, &d.AlertID, &d.UserID, &channel, &d.Destination, &status,
		&d.AttemptCount, &d.LastError, &d.ProviderMessageID,
		&d.NextAttemptAt, &d.SentAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Channel = types.Channel(channel)
	d.Status = types.DeliveryStatus(status)
	return &d, nil
}
