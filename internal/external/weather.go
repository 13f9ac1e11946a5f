package external

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

// WeatherClient fetches government alerts, current conditions, and hourly
// forecasts from an api.weather.gov compatible endpoint. All requests go
// through the shared apiClient for retries and circuit breaking.
//
// Criteria without coordinates cannot be resolved to a gridpoint, so the
// fetch succeeds with an empty result; text-only location filters still
// apply to alerts carried in that result (none, in that case).
type WeatherClient struct {
	api     *apiClient
	baseURL string
	clock   types.Clock
	logger  types.Logger
}

// NewWeatherClient creates a WeatherClient from the weather configuration.
func NewWeatherClient(cfg config.WeatherConfig, clock types.Clock, logger types.Logger, opts ...ClientOption) *WeatherClient {
	api := newAPIClient(
		&http.Client{Timeout: cfg.Timeout},
		"weather-api",
		DefaultRetryPolicy(),
		cfg.UserAgent,
		opts...,
	)

	return &WeatherClient{
		api:     api,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		clock:   clock,
		logger:  logger,
	}
}

// NWS wire formats. Only the fields the engine reads are declared.

type nwsAlertFeature struct {
	Properties struct {
		ID          string     `json:"id"`
		Event       string     `json:"event"`
		Headline    string     `json:"headline"`
		Description string     `json:"description"`
		Severity    string     `json:"severity"`
		AreaDesc    string     `json:"areaDesc"`
		Onset       *time.Time `json:"onset"`
		Expires     *time.Time `json:"expires"`
	} `json:"properties"`
}

type nwsAlertResponse struct {
	Features []nwsAlertFeature `json:"features"`
}

type nwsPointResponse struct {
	Properties struct {
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type nwsForecastPeriod struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Temperature     *float64  `json:"temperature"`
	TemperatureUnit string    `json:"temperatureUnit"`
	WindSpeed       string    `json:"windSpeed"`
	ShortForecast   string    `json:"shortForecast"`
	ProbabilityOfPrecipitation struct {
		Value *float64 `json:"value"`
	} `json:"probabilityOfPrecipitation"`
}

type nwsForecastResponse struct {
	Properties struct {
		Periods []nwsForecastPeriod `json:"periods"`
	} `json:"properties"`
}

// Fetch retrieves the weather conditions relevant to one criteria. The
// returned FetchResult has OK=false when any upstream call fails, so the
// caller can skip state mutation for that cycle.
func (w *WeatherClient) Fetch(ctx context.Context, criteria *types.AlertCriteria) (types.FetchResult, error) {
	if criteria.Latitude == nil || criteria.Longitude == nil {
		// No gridpoint to query. Not an outage.
		return types.FetchResult{OK: true}, nil
	}

	lat, lon := *criteria.Latitude, *criteria.Longitude
	result := types.FetchResult{OK: true}

	alerts, err := w.fetchAlerts(ctx, lat, lon)
	if err != nil {
		w.logger.Error("weather alert fetch failed", "criteria_id", criteria.ID, "error", err)
		return types.FetchResult{OK: false}, err
	}
	result.Alerts = alerts

	if criteria.MonitorsCurrent() || criteria.MonitorsForecast() {
		current, forecast, err := w.fetchForecast(ctx, lat, lon, criteria.NormalizedForecastWindow())
		if err != nil {
			w.logger.Error("weather forecast fetch failed", "criteria_id", criteria.ID, "error", err)
			return types.FetchResult{OK: false}, err
		}
		if criteria.MonitorsCurrent() {
			result.Current = current
		}
		if criteria.MonitorsForecast() {
			result.Forecast = forecast
		}
	}

	return result, nil
}

// fetchAlerts retrieves active government alerts covering the point.
func (w *WeatherClient) fetchAlerts(ctx context.Context, lat, lon float64) ([]types.WeatherSnapshot, error) {
	url := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", w.baseURL, lat, lon)

	var resp nwsAlertResponse
	if err := w.api.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	snapshots := make([]types.WeatherSnapshot, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := f.Properties
		snapshots = append(snapshots, types.WeatherSnapshot{
			ID:          p.ID,
			Source:      types.SourceAlert,
			Location:    p.AreaDesc,
			EventType:   p.Event,
			Headline:    p.Headline,
			Description: p.Description,
			Severity:    p.Severity,
			Onset:       p.Onset,
			Expires:     p.Expires,
			ObservedAt:  w.clock.Now(),
		})
	}

	return snapshots, nil
}

// fetchForecast resolves the point to its hourly forecast and splits it into
// the current-conditions snapshot (first period) and the forecast periods
// that start within the criteria's window.
func (w *WeatherClient) fetchForecast(ctx context.Context, lat, lon float64, windowHours int) (*types.WeatherSnapshot, []types.WeatherSnapshot, error) {
	pointURL := fmt.Sprintf("%s/points/%.4f,%.4f", w.baseURL, lat, lon)

	var point nwsPointResponse
	if err := w.api.getJSON(ctx, pointURL, &point); err != nil {
		return nil, nil, err
	}
	if point.Properties.ForecastHourly == "" {
		return nil, nil, types.NewAppError(types.ErrCodeUpstreamWeather,
			"point response carries no hourly forecast URL", nil)
	}

	var forecast nwsForecastResponse
	if err := w.api.getJSON(ctx, point.Properties.ForecastHourly, &forecast); err != nil {
		return nil, nil, err
	}

	periods := forecast.Properties.Periods
	if len(periods) == 0 {
		return nil, nil, nil
	}

	now := w.clock.Now()
	horizon := now.Add(time.Duration(windowHours) * time.Hour)

	current := w.periodSnapshot(periods[0], types.SourceCurrent, lat, lon)

	var upcoming []types.WeatherSnapshot
	for _, p := range periods[1:] {
		if p.StartTime.After(horizon) {
			break
		}
		upcoming = append(upcoming, *w.periodSnapshot(p, types.SourceForecast, lat, lon))
	}

	return current, upcoming, nil
}

// periodSnapshot normalizes one hourly forecast period.
func (w *WeatherClient) periodSnapshot(p nwsForecastPeriod, source types.ConditionSource, lat, lon float64) *types.WeatherSnapshot {
	snap := &types.WeatherSnapshot{
		ID:                       fmt.Sprintf("%s|%s", strings.ToLower(string(source)), p.StartTime.UTC().Format(time.RFC3339)),
		Source:                   source,
		Latitude:                 &lat,
		Longitude:                &lon,
		EventType:                p.ShortForecast,
		Headline:                 p.ShortForecast,
		TemperatureC:             normalizeTemperature(p.Temperature, p.TemperatureUnit),
		WindSpeed:                parseWindSpeed(p.WindSpeed),
		PrecipitationProbability: p.ProbabilityOfPrecipitation.Value,
		ObservedAt:               w.clock.Now(),
	}
	start := p.StartTime
	end := p.EndTime
	if !start.IsZero() {
		snap.Onset = &start
	}
	if !end.IsZero() {
		snap.Expires = &end
	}
	return snap
}

// normalizeTemperature converts the period temperature to Celsius.
// api.weather.gov reports "F" or "C".
func normalizeTemperature(value *float64, unit string) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	if strings.EqualFold(unit, "C") {
		return &v
	}
	c := (v - 32.0) * 5.0 / 9.0
	return &c
}

// Conversion factors into km/h, the unit criteria thresholds use.
const (
	mphToKmh  = 1.60934
	knotToKmh = 1.852
)

// parseWindSpeed extracts the wind speed in km/h from strings like
// "10 mph" or "5 to 15 mph". Ranges take the upper bound; mph and knot
// readings are converted. Returns nil when no number is present.
func parseWindSpeed(s string) *float64 {
	max := math.NaN()
	for _, field := range strings.Fields(s) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	if math.IsNaN(max) {
		return nil
	}

	switch text := strings.ToLower(s); {
	case strings.Contains(text, "mph"):
		max *= mphToKmh
	case strings.Contains(text, "km/h"):
		// Already in km/h.
	case strings.Contains(text, "kt"):
		max *= knotToKmh
	}
	return &max
}

// Compile-time assertion that WeatherClient satisfies WeatherProvider.
var _ types.WeatherProvider = (*WeatherClient)(nil)
