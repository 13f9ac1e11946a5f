// Package rules implements criteria evaluation against weather snapshots.
//
// A criteria carries two kinds of rules. Filter rules (location, event type,
// minimum severity) narrow which conditions are relevant; every configured
// filter must pass. Trigger rules (temperature, wind, precipitation) fire
// alerts; any one firing is enough. When no trigger rule is configured, a
// criteria that passes its filters matches on the filters alone.
package rules

import (
	"fmt"
	"strings"

	"stormwatch/internal/types"
)

// Evaluator evaluates a single criteria against a single weather snapshot.
// It is stateless and safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates a rule evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate reports whether the snapshot matches the criteria, and a
// human-readable reason suitable for the alert record when it does.
//
// Missing snapshot fields never cause an error: a rule that cannot be
// evaluated simply does not fire (triggers) or does not pass (filters that
// require the field, such as a geofence with no coordinates).
func (e *Evaluator) Evaluate(c *types.AlertCriteria, s *types.WeatherSnapshot) (bool, string) {
	if c == nil || s == nil {
		return false, ""
	}
	// A disabled criteria never matches, regardless of how the caller
	// obtained it.
	if !c.Enabled {
		return false, ""
	}

	filterConfigured, filtersPass := e.evaluateFilters(c, s)
	if !filtersPass {
		return false, ""
	}

	triggerConfigured, fired, reason := e.evaluateTriggers(c, s)
	if fired {
		return true, reason
	}
	if triggerConfigured {
		// Triggers exist but none fired; passing filters alone is not enough.
		return false, ""
	}

	// Filter-only criteria: a passing filter set is itself the match.
	if filterConfigured {
		return true, filterReason(c, s)
	}

	return false, ""
}

// evaluateFilters returns whether any filter rule is configured and whether
// all configured filters pass.
func (e *Evaluator) evaluateFilters(c *types.AlertCriteria, s *types.WeatherSnapshot) (configured bool, pass bool) {
	hasText := c.Location != ""
	hasGeofence := c.Latitude != nil && c.Longitude != nil && c.RadiusKm != nil

	if hasText || hasGeofence {
		configured = true
		if !locationMatches(c, s, hasText, hasGeofence) {
			return configured, false
		}
	}

	if c.EventType != "" {
		configured = true
		if !eventTypeMatches(c.EventType, s) {
			return configured, false
		}
	}

	if c.MinSeverity != "" {
		configured = true
		if types.SeverityRank(s.Severity) < types.SeverityRank(c.MinSeverity) {
			return configured, false
		}
	}

	return configured, true
}

// locationMatches applies the location filter. When both a location text and
// a geofence are configured, either one passing is sufficient.
func locationMatches(c *types.AlertCriteria, s *types.WeatherSnapshot, hasText, hasGeofence bool) bool {
	textPass := hasText && containsFold(s.Location, c.Location)
	geoPass := false
	if hasGeofence && s.Latitude != nil && s.Longitude != nil {
		dist := HaversineKm(*c.Latitude, *c.Longitude, *s.Latitude, *s.Longitude)
		geoPass = dist <= *c.RadiusKm
	}

	if hasText && hasGeofence {
		return textPass || geoPass
	}
	if hasText {
		return textPass
	}
	return geoPass
}

// eventTypeMatches checks the configured event type against the snapshot's
// event type, headline, and description. Substring, case-insensitive: a
// criteria for "flood" matches a "Flash Flood Warning" headline.
func eventTypeMatches(eventType string, s *types.WeatherSnapshot) bool {
	return containsFold(s.EventType, eventType) ||
		containsFold(s.Headline, eventType) ||
		containsFold(s.Description, eventType)
}

// evaluateTriggers runs every configured trigger rule and returns the first
// firing rule's reason.
func (e *Evaluator) evaluateTriggers(c *types.AlertCriteria, s *types.WeatherSnapshot) (configured bool, fired bool, reason string) {
	checks := []func(*types.AlertCriteria, *types.WeatherSnapshot) (bool, bool, string){
		checkTemperatureThreshold,
		checkTemperatureBounds,
		checkWindSpeed,
		checkMaxPrecipitation,
		checkRainThreshold,
	}

	for _, check := range checks {
		cfg, hit, why := check(c, s)
		configured = configured || cfg
		if hit && !fired {
			fired = true
			reason = why
		}
	}
	return configured, fired, reason
}

// checkTemperatureThreshold evaluates the directional temperature trigger.
// The criteria threshold is interpreted in the criteria's temperature unit
// and compared in Celsius.
func checkTemperatureThreshold(c *types.AlertCriteria, s *types.WeatherSnapshot) (bool, bool, string) {
	if c.TemperatureThreshold == nil || c.TemperatureDirection == "" {
		return false, false, ""
	}
	if s.TemperatureC == nil {
		return true, false, ""
	}

	threshold := toCelsius(*c.TemperatureThreshold, c.TemperatureUnit)
	temp := *s.TemperatureC

	switch c.TemperatureDirection {
	case types.TemperatureAbove:
		if temp > threshold {
			return true, true, fmt.Sprintf("temperature %.1f°C above threshold %.1f°C", temp, threshold)
		}
	case types.TemperatureBelow:
		if temp < threshold {
			return true, true, fmt.Sprintf("temperature %.1f°C below threshold %.1f°C", temp, threshold)
		}
	}
	return true, false, ""
}

// checkTemperatureBounds evaluates the legacy min/max temperature trigger.
func checkTemperatureBounds(c *types.AlertCriteria, s *types.WeatherSnapshot) (bool, bool, string) {
	if c.MinTemperature == nil && c.MaxTemperature == nil {
		return false, false, ""
	}
	if s.TemperatureC == nil {
		return true, false, ""
	}

	temp := *s.TemperatureC
	if c.MinTemperature != nil {
		minC := toCelsius(*c.MinTemperature, c.TemperatureUnit)
		if temp < minC {
			return true, true, fmt.Sprintf("temperature %.1f°C below minimum %.1f°C", temp, minC)
		}
	}
	if c.MaxTemperature != nil {
		maxC := toCelsius(*c.MaxTemperature, c.TemperatureUnit)
		if temp > maxC {
			return true, true, fmt.Sprintf("temperature %.1f°C above maximum %.1f°C", temp, maxC)
		}
	}
	return true, false, ""
}

// checkWindSpeed evaluates the wind speed trigger (strictly greater than).
func checkWindSpeed(c *types.AlertCriteria, s *types.WeatherSnapshot) (bool, bool, string) {
	if c.MaxWindSpeed == nil {
		return false, false, ""
	}
	if s.WindSpeed == nil {
		return true, false, ""
	}
	if *s.WindSpeed > *c.MaxWindSpeed {
		return true, true, fmt.Sprintf("wind speed %.1f exceeds %.1f", *s.WindSpeed, *c.MaxWindSpeed)
	}
	return true, false, ""
}

// checkMaxPrecipitation evaluates the legacy precipitation trigger
// (strictly greater than).
func checkMaxPrecipitation(c *types.AlertCriteria, s *types.WeatherSnapshot) (bool, bool, string) {
	if c.MaxPrecipitation == nil {
		return false, false, ""
	}
	if s.Precipitation == nil {
		return true, false, ""
	}
	if *s.Precipitation > *c.MaxPrecipitation {
		return true, true, fmt.Sprintf("precipitation %.1f exceeds %.1f", *s.Precipitation, *c.MaxPrecipitation)
	}
	return true, false, ""
}

// checkRainThreshold evaluates the typed rain trigger (greater or equal).
// PROBABILITY compares the precipitation probability, AMOUNT the accumulated
// amount; both fall back to the generic precipitation figure when the
// specific one is absent.
func checkRainThreshold(c *types.AlertCriteria, s *types.WeatherSnapshot) (bool, bool, string) {
	if c.RainThreshold == nil {
		return false, false, ""
	}

	thresholdType := c.RainThresholdType
	if thresholdType == "" {
		thresholdType = types.RainThresholdProbability
	}

	var value *float64
	var label string
	switch thresholdType {
	case types.RainThresholdAmount:
		value = s.PrecipitationAmount
		label = "rain amount"
	default:
		value = s.PrecipitationProbability
		label = "rain probability"
	}
	if value == nil {
		value = s.Precipitation
	}
	if value == nil {
		return true, false, ""
	}

	if *value >= *c.RainThreshold {
		return true, true, fmt.Sprintf("%s %.1f reached threshold %.1f", label, *value, *c.RainThreshold)
	}
	return true, false, ""
}

// filterReason builds the match reason for a filter-only criteria.
func filterReason(c *types.AlertCriteria, s *types.WeatherSnapshot) string {
	var parts []string
	if c.EventType != "" {
		parts = append(parts, fmt.Sprintf("event type %q", c.EventType))
	}
	if c.MinSeverity != "" && s.Severity != "" {
		parts = append(parts, fmt.Sprintf("severity %s", s.Severity))
	}
	if c.Location != "" || c.Latitude != nil {
		parts = append(parts, "location")
	}
	if len(parts) == 0 {
		return "matched criteria filters"
	}
	return "matched " + strings.Join(parts, ", ")
}

// toCelsius converts a criteria threshold to Celsius. An unset unit means
// Fahrenheit, the historical default for stored criteria.
func toCelsius(value float64, unit types.TemperatureUnit) float64 {
	if unit == types.UnitCelsius {
		return value
	}
	return (value - 32.0) * 5.0 / 9.0
}

// containsFold reports whether haystack contains needle, case-insensitively.
func containsFold(haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
