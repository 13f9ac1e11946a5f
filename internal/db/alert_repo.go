package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// AlertRepository provides data access for the alerts table. The unique
// index on (criteria_id, event_key) is what makes alert creation idempotent
// across overlapping evaluation cycles.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// alertColumns is the canonical column list shared by alert queries.
const alertColumns = `
	id, criteria_id, user_id, COALESCE(weather_data_id, ''), event_key,
	COALESCE(headline, ''), COALESCE(description, ''), COALESCE(severity, ''),
	COALESCE(location, ''), COALESCE(reason, ''),
	condition_source, condition_onset, condition_expires,
	condition_temperature_c, condition_precipitation_probability,
	condition_precipitation_amount,
	status, created_at, sent_at`

// Create performs an idempotent insert using INSERT ... ON CONFLICT DO
// NOTHING on (criteria_id, event_key). It returns false when an alert for
// this event already exists, meaning another cycle got there first and no
// delivery should be enqueued.
func (r *AlertRepository) Create(ctx context.Context, a *types.Alert) (created bool, err error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO alerts
		 (id, criteria_id, user_id, weather_data_id, event_key,
		  headline, description, severity, location, reason,
		  condition_source, condition_onset, condition_expires,
		  condition_temperature_c, condition_precipitation_probability,
		  condition_precipitation_amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (criteria_id, event_key) DO NOTHING`,
		a.ID,
		a.CriteriaID,
		a.UserID,
		nilIfEmpty(a.WeatherDataID),
		a.EventKey,
		nilIfEmpty(a.Headline),
		nilIfEmpty(a.Description),
		nilIfEmpty(a.Severity),
		nilIfEmpty(a.Location),
		nilIfEmpty(a.Reason),
		string(a.ConditionSource),
		a.ConditionOnset,
		a.ConditionExpires,
		a.ConditionTemperatureC,
		a.ConditionPrecipitationProbability,
		a.ConditionPrecipitationAmount,
		string(a.Status),
		nilIfZeroTime(a.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create alert", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID returns a single alert by ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*types.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`,
		id,
	)

	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get alert", err)
	}
	return a, nil
}

// MarkSent transitions an alert to SENT and records the send time. The
// status guard keeps a redelivered task from resurrecting an acknowledged
// or expired alert.
func (r *AlertRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE alerts
		 SET status = $2, sent_at = $3
		 WHERE id = $1 AND status = $4`,
		id,
		string(types.AlertStatusSent),
		sentAt,
		string(types.AlertStatusPending),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert sent", err)
	}
	return nil
}

// scanAlert scans one row in alertColumns order.
func scanAlert(row pgx.Row) (*types.Alert, error) {
	var a types.Alert
	var source, status string

	err := row.Scan(
		&a.ID, &a.CriteriaID, &a.UserID, &a.WeatherDataID, &a.EventKey,
		&a.Headline, &a.Description, &a.Severity,
		&a.Location, &a.Reason,
		&source, &a.ConditionOnset, &a.ConditionExpires,
		&a.ConditionTemperatureC, &a.ConditionPrecipitationProbability,
		&a.ConditionPrecipitationAmount,
		&status, &a.CreatedAt, &a.SentAt,
	)
	if err != nil {
		return nil, err
	}

	a.ConditionSource = types.ConditionSource(source)
	a.Status = types.AlertStatus(status)
	return &a, nil
}
