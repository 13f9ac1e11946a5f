package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"stormwatch/internal/types"
)

// CriteriaRepository provides data access for the alert_criteria table.
type CriteriaRepository struct {
	db DBTX
}

// NewCriteriaRepository creates a new CriteriaRepository backed by the given
// database connection (pool or transaction).
func NewCriteriaRepository(db DBTX) *CriteriaRepository {
	return &CriteriaRepository{db: db}
}

// criteriaColumns is the canonical column list shared by every criteria
// query. Text columns are coalesced so NULL scans cleanly into Go strings.
const criteriaColumns = `
	id, user_id, COALESCE(name, ''), COALESCE(location, ''),
	latitude, longitude, radius_km,
	COALESCE(event_type, ''), COALESCE(min_severity, ''),
	temperature_threshold, COALESCE(temperature_direction, ''),
	min_temperature, max_temperature, max_wind_speed, max_precipitation,
	rain_threshold, COALESCE(rain_threshold_type, ''),
	COALESCE(temperature_unit, ''),
	monitor_current, monitor_forecast, COALESCE(forecast_window_hours, 0),
	once_per_event, COALESCE(rearm_window_minutes, 0),
	enabled, created_at, updated_at`

// FindEnabled returns all enabled criteria, the working set of one
// evaluation cycle.
func (r *CriteriaRepository) FindEnabled(ctx context.Context) ([]*types.AlertCriteria, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+criteriaColumns+`
		 FROM alert_criteria
		 WHERE enabled = TRUE
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list enabled criteria", err)
	}
	defer rows.Close()

	return scanCriteriaRows(rows)
}

// FindEnabledByLocation returns enabled criteria whose location text matches
// the given location, used for location-scoped evaluation runs.
func (r *CriteriaRepository) FindEnabledByLocation(ctx context.Context, location string) ([]*types.AlertCriteria, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+criteriaColumns+`
		 FROM alert_criteria
		 WHERE enabled = TRUE AND location ILIKE '%' || $1 || '%'
		 ORDER BY created_at`,
		location,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list criteria by location", err)
	}
	defer rows.Close()

	return scanCriteriaRows(rows)
}

// GetByID returns a single criteria by ID regardless of enabled state.
func (r *CriteriaRepository) GetByID(ctx context.Context, id string) (*types.AlertCriteria, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+criteriaColumns+`
		 FROM alert_criteria
		 WHERE id = $1`,
		id,
	)

	c, err := scanCriteria(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCriteria, "criteria not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get criteria", err)
	}
	return c, nil
}

// scanCriteriaRows drains a multi-row result set.
func scanCriteriaRows(rows pgx.Rows) ([]*types.AlertCriteria, error) {
	var out []*types.AlertCriteria
	for rows.Next() {
		c, err := scanCriteria(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan criteria row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "criteria row iteration failed", err)
	}
	return out, nil
}

// scanCriteria scans one row in criteriaColumns order.
func scanCriteria(row pgx.Row) (*types.AlertCriteria, error) {
	var c types.AlertCriteria
	var direction, rainType, unit string

	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Location,
		&c.Latitude, &c.Longitude, &c.RadiusKm,
		&c.EventType, &c.MinSeverity,
		&c.TemperatureThreshold, &direction,
		&c.MinTemperature, &c.MaxTemperature, &c.MaxWindSpeed, &c.MaxPrecipitation,
		&c.RainThreshold, &rainType,
		&unit,
		&c.MonitorCurrent, &c.MonitorForecast, &c.ForecastWindowHours,
		&c.OncePerEvent, &c.RearmWindowMinutes,
		&c.Enabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.TemperatureDirection = types.TemperatureDirection(direction)
	c.RainThresholdType = types.RainThresholdType(rainType)
	c.TemperatureUnit = types.TemperatureUnit(unit)
	return &c, nil
}
