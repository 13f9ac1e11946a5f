package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// CriteriaStateRepository provides data access for the criteria_states table,
// the persistent side of the anti-spam state machine. Rows are keyed by
// (criteria_id, condition_key).
type CriteriaStateRepository struct {
	db DBTX
}

// NewCriteriaStateRepository creates a new CriteriaStateRepository backed by
// the given database connection (pool or transaction).
func NewCriteriaStateRepository(db DBTX) *CriteriaStateRepository {
	return &CriteriaStateRepository{db: db}
}

// Find returns the state for one condition stream, or nil when no state has
// been recorded yet. A nil state means "condition was not met last cycle".
func (r *CriteriaStateRepository) Find(ctx context.Context, criteriaID, conditionKey string) (*types.CriteriaState, error) {
	row := r.db.QueryRow(ctx,
		`SELECT criteria_id, condition_key, last_condition_met,
		        COALESCE(last_event_signature, ''), last_notified_at, updated_at
		 FROM criteria_states
		 WHERE criteria_id = $1 AND condition_key = $2`,
		criteriaID, conditionKey,
	)

	var s types.CriteriaState
	err := row.Scan(
		&s.CriteriaID, &s.ConditionKey, &s.LastConditionMet,
		&s.LastEventSignature, &s.LastNotifiedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get criteria state", err)
	}
	return &s, nil
}

// Upsert writes the state for one condition stream, inserting on first
// contact and updating thereafter.
func (r *CriteriaStateRepository) Upsert(ctx context.Context, s *types.CriteriaState) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO criteria_states
		 (criteria_id, condition_key, last_condition_met, last_event_signature,
		  last_notified_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (criteria_id, condition_key) DO UPDATE SET
		   last_condition_met = EXCLUDED.last_condition_met,
		   last_event_signature = EXCLUDED.last_event_signature,
		   last_notified_at = EXCLUDED.last_notified_at,
		   updated_at = EXCLUDED.updated_at`,
		s.CriteriaID,
		s.ConditionKey,
		s.LastConditionMet,
		nilIfEmpty(s.LastEventSignature),
		s.LastNotifiedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert criteria state", err)
	}
	return nil
}
