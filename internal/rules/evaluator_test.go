package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stormwatch/internal/types"
)

func f64(v float64) *float64 { return &v }

func snapshot(mod func(*types.WeatherSnapshot)) *types.WeatherSnapshot {
	s := &types.WeatherSnapshot{
		ID:       "wx_1",
		Source:   types.SourceAlert,
		Location: "Travis County, TX",
		Severity: "Severe",
	}
	if mod != nil {
		mod(s)
	}
	return s
}

func TestEvaluate_NilInputs(t *testing.T) {
	e := NewEvaluator()

	matched, _ := e.Evaluate(nil, snapshot(nil))
	assert.False(t, matched)

	matched, _ = e.Evaluate(&types.AlertCriteria{EventType: "flood"}, nil)
	assert.False(t, matched)
}

func TestEvaluate_DisabledCriteriaNeverMatches(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{
		Enabled:              false,
		TemperatureThreshold: f64(25),
		TemperatureDirection: types.TemperatureAbove,
		TemperatureUnit:      types.UnitCelsius,
	}

	// The trigger would fire if the criteria were enabled.
	matched, reason := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.TemperatureC = f64(30)
	}))
	assert.False(t, matched)
	assert.Empty(t, reason)

	criteria.Enabled = true
	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.TemperatureC = f64(30)
	}))
	assert.True(t, matched)
}

func TestEvaluate_NoRulesConfigured(t *testing.T) {
	e := NewEvaluator()
	matched, reason := e.Evaluate(&types.AlertCriteria{Enabled: true}, snapshot(nil))
	assert.False(t, matched, "criteria with no rules never matches")
	assert.Empty(t, reason)
}

func TestEvaluate_EventTypeFilter(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{Enabled: true, EventType: "flood"}

	tests := []struct {
		name string
		mod  func(*types.WeatherSnapshot)
		want bool
	}{
		{"matches event type", func(s *types.WeatherSnapshot) { s.EventType = "Flood Warning" }, true},
		{"matches headline", func(s *types.WeatherSnapshot) { s.Headline = "Flash FLOOD expected" }, true},
		{"matches description", func(s *types.WeatherSnapshot) { s.Description = "river flooding likely" }, true},
		{"no match anywhere", func(s *types.WeatherSnapshot) { s.EventType = "Heat Advisory" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, _ := e.Evaluate(criteria, snapshot(tt.mod))
			assert.Equal(t, tt.want, matched)
		})
	}
}

func TestEvaluate_SeverityFilter(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{Enabled: true, MinSeverity: "Severe"}

	matched, _ := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.Severity = "Extreme" }))
	assert.True(t, matched)

	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.Severity = "Moderate" }))
	assert.False(t, matched)

	// Unknown severity ranks below every configured minimum.
	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.Severity = "Mystery" }))
	assert.False(t, matched)
}

func TestEvaluate_LocationTextFilter(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{Enabled: true, Location: "travis"}

	matched, _ := e.Evaluate(criteria, snapshot(nil))
	assert.True(t, matched, "case-insensitive substring match")

	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.Location = "Harris County, TX" }))
	assert.False(t, matched)
}

func TestEvaluate_GeofenceFilter(t *testing.T) {
	e := NewEvaluator()
	// Austin, TX with a 50km radius.
	criteria := &types.AlertCriteria{
		Enabled:   true,
		Latitude:  f64(30.2672),
		Longitude: f64(-97.7431),
		RadiusKm:  f64(50),
	}

	// Round Rock (~25km away) is inside.
	matched, _ := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.Latitude = f64(30.5083)
		s.Longitude = f64(-97.6789)
	}))
	assert.True(t, matched)

	// Dallas (~290km away) is outside.
	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.Latitude = f64(32.7767)
		s.Longitude = f64(-96.7970)
	}))
	assert.False(t, matched)

	// Snapshot without coordinates cannot satisfy a geofence.
	matched, _ = e.Evaluate(criteria, snapshot(nil))
	assert.False(t, matched)
}

func TestEvaluate_TextOrGeofence(t *testing.T) {
	e := NewEvaluator()
	// Both configured: either passing passes the location filter.
	criteria := &types.AlertCriteria{
		Enabled:   true,
		Location:  "Travis",
		Latitude:  f64(30.2672),
		Longitude: f64(-97.7431),
		RadiusKm:  f64(10),
	}

	// Text matches even though the snapshot is far outside the geofence.
	matched, _ := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.Latitude = f64(32.7767)
		s.Longitude = f64(-96.7970)
	}))
	assert.True(t, matched)

	// Geofence matches even though the text does not.
	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.Location = "Downtown Austin"
		s.Latitude = f64(30.27)
		s.Longitude = f64(-97.74)
	}))
	assert.True(t, matched)

	// Neither matches.
	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.Location = "Harris County"
		s.Latitude = f64(32.7767)
		s.Longitude = f64(-96.7970)
	}))
	assert.False(t, matched)
}

func TestEvaluate_TemperatureThreshold(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name      string
		threshold float64
		unit      types.TemperatureUnit
		direction types.TemperatureDirection
		tempC     *float64
		want      bool
	}{
		{"above fires", 30, types.UnitCelsius, types.TemperatureAbove, f64(35), true},
		{"above at threshold does not fire", 30, types.UnitCelsius, types.TemperatureAbove, f64(30), false},
		{"below fires", 0, types.UnitCelsius, types.TemperatureBelow, f64(-5), true},
		{"fahrenheit converted", 100, types.UnitFahrenheit, types.TemperatureAbove, f64(40), true}, // 100F = 37.8C
		{"default unit is fahrenheit", 100, "", types.TemperatureAbove, f64(40), true},
		{"missing temperature never fires", 30, types.UnitCelsius, types.TemperatureAbove, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			criteria := &types.AlertCriteria{
				Enabled:              true,
				TemperatureThreshold: f64(tt.threshold),
				TemperatureDirection: tt.direction,
				TemperatureUnit:      tt.unit,
			}
			matched, _ := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
				s.TemperatureC = tt.tempC
			}))
			assert.Equal(t, tt.want, matched)
		})
	}
}

func TestEvaluate_TemperatureBounds(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{
		Enabled:         true,
		MinTemperature:  f64(0),
		MaxTemperature:  f64(35),
		TemperatureUnit: types.UnitCelsius,
	}

	matched, reason := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.TemperatureC = f64(-3) }))
	assert.True(t, matched)
	assert.Contains(t, reason, "below minimum")

	matched, reason = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.TemperatureC = f64(40) }))
	assert.True(t, matched)
	assert.Contains(t, reason, "above maximum")

	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) { s.TemperatureC = f64(20) }))
	assert.False(t, matched)
}

func TestEvaluate_WindAndPrecipitation(t *testing.T) {
	e := NewEvaluator()

	wind := &types.AlertCriteria{Enabled: true, MaxWindSpeed: f64(80)}
	matched, reason := e.Evaluate(wind, snapshot(func(s *types.WeatherSnapshot) { s.WindSpeed = f64(95) }))
	assert.True(t, matched)
	assert.Contains(t, reason, "wind speed")

	matched, _ = e.Evaluate(wind, snapshot(func(s *types.WeatherSnapshot) { s.WindSpeed = f64(80) }))
	assert.False(t, matched, "strictly greater than")

	precip := &types.AlertCriteria{Enabled: true, MaxPrecipitation: f64(20)}
	matched, _ = e.Evaluate(precip, snapshot(func(s *types.WeatherSnapshot) { s.Precipitation = f64(25) }))
	assert.True(t, matched)
}

func TestEvaluate_RainThreshold(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name     string
		thrType  types.RainThresholdType
		mod      func(*types.WeatherSnapshot)
		want     bool
		contains string
	}{
		{
			"probability at threshold fires",
			types.RainThresholdProbability,
			func(s *types.WeatherSnapshot) { s.PrecipitationProbability = f64(60) },
			true, "rain probability",
		},
		{
			"probability falls back to precipitation",
			types.RainThresholdProbability,
			func(s *types.WeatherSnapshot) { s.Precipitation = f64(70) },
			true, "rain probability",
		},
		{
			"amount uses precipitation amount",
			types.RainThresholdAmount,
			func(s *types.WeatherSnapshot) { s.PrecipitationAmount = f64(65) },
			true, "rain amount",
		},
		{
			"empty type defaults to probability",
			"",
			func(s *types.WeatherSnapshot) { s.PrecipitationProbability = f64(75) },
			true, "rain probability",
		},
		{
			"below threshold does not fire",
			types.RainThresholdProbability,
			func(s *types.WeatherSnapshot) { s.PrecipitationProbability = f64(59.9) },
			false, "",
		},
		{
			"no precipitation data never fires",
			types.RainThresholdProbability,
			nil,
			false, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			criteria := &types.AlertCriteria{
				Enabled:           true,
				RainThreshold:     f64(60),
				RainThresholdType: tt.thrType,
			}
			matched, reason := e.Evaluate(criteria, snapshot(tt.mod))
			assert.Equal(t, tt.want, matched)
			if tt.contains != "" {
				assert.Contains(t, reason, tt.contains)
			}
		})
	}
}

func TestEvaluate_FiltersGateTriggers(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{
		Enabled:         true,
		EventType:       "flood",
		MaxWindSpeed:    f64(50),
		TemperatureUnit: types.UnitCelsius,
	}

	// Trigger would fire, but the event type filter fails.
	matched, _ := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.EventType = "Heat Advisory"
		s.WindSpeed = f64(90)
	}))
	assert.False(t, matched)

	// Filter passes and trigger fires.
	matched, reason := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.EventType = "Flood Warning"
		s.WindSpeed = f64(90)
	}))
	assert.True(t, matched)
	assert.Contains(t, reason, "wind speed")

	// Filter passes but the configured trigger does not fire: no match.
	matched, _ = e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.EventType = "Flood Warning"
		s.WindSpeed = f64(10)
	}))
	assert.False(t, matched)
}

func TestEvaluate_FilterOnlyCriteriaMatches(t *testing.T) {
	e := NewEvaluator()
	criteria := &types.AlertCriteria{Enabled: true, EventType: "flood", MinSeverity: "Moderate"}

	matched, reason := e.Evaluate(criteria, snapshot(func(s *types.WeatherSnapshot) {
		s.EventType = "Flood Warning"
		s.Severity = "Severe"
	}))
	assert.True(t, matched)
	assert.Contains(t, reason, "event type")
}
