package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// PreferenceRepository provides data access for the user and criteria level
// notification preference tables. Channel lists are stored as JSONB.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a new PreferenceRepository backed by the
// given database connection (pool or transaction).
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// FindUserPreference returns the account-level preference for a user, or nil
// when the user never configured one. Absence means engine defaults apply.
func (r *PreferenceRepository) FindUserPreference(ctx context.Context, userID string) (*types.UserPreference, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, channels, COALESCE(preferred_channel, ''), COALESCE(strategy, '')
		 FROM user_notification_preferences
		 WHERE user_id = $1`,
		userID,
	)

	var p types.UserPreference
	var preferred, strategy string
	err := row.Scan(&p.UserID, &p.Channels, &preferred, &strategy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user preference", err)
	}

	p.PreferredChannel = types.Channel(preferred)
	p.Strategy = types.FallbackStrategy(strategy)
	return &p, nil
}

// FindCriteriaPreference returns the per-criteria preference override, or
// nil when the criteria has none.
func (r *PreferenceRepository) FindCriteriaPreference(ctx context.Context, criteriaID string) (*types.CriteriaPreference, error) {
	row := r.db.QueryRow(ctx,
		`SELECT criteria_id, use_user_defaults, channels,
		        COALESCE(preferred_channel, ''), COALESCE(strategy, '')
		 FROM criteria_notification_preferences
		 WHERE criteria_id = $1`,
		criteriaID,
	)

	var p types.CriteriaPreference
	var preferred, strategy string
	err := row.Scan(&p.CriteriaID, &p.UseUserDefaults, &p.Channels, &preferred, &strategy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get criteria preference", err)
	}

	p.PreferredChannel = types.Channel(preferred)
	p.Strategy = types.FallbackStrategy(strategy)
	return &p, nil
}
