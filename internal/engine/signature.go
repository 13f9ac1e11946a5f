// Package engine runs the evaluation cycle: fetch weather for each enabled
// criteria, apply the rule evaluator, and drive the per-condition anti-spam
// state machine that decides when an alert is actually raised.
package engine

import (
	"fmt"
	"time"

	"stormwatch/internal/types"
)

// Condition keys partition a criteria's anti-spam state into independent
// streams, so a continuing heat wave does not suppress a new flood warning.
const (
	conditionKeyCurrent  = "current"
	conditionKeyForecast = "forecast"
)

// alertConditionKey returns the state stream key for one government alert.
func alertConditionKey(weatherDataID string) string {
	return fmt.Sprintf("alert|%s", weatherDataID)
}

// eventSignature identifies WHAT is being alerted on. A changed signature on
// a continuing condition means the situation evolved enough to notify again.
//
//   - current:  the signature is stable; a continuing reading never re-fires.
//   - forecast: onset and headline distinguish one storm from the next.
//   - alert:    the upstream alert ID is the identity.
func eventSignature(source types.ConditionSource, criteriaID string, snap *types.WeatherSnapshot) string {
	switch source {
	case types.SourceForecast:
		onset := ""
		if snap != nil && snap.Onset != nil {
			onset = snap.Onset.UTC().Format(time.RFC3339)
		}
		headline := ""
		if snap != nil {
			headline = snap.Headline
		}
		return fmt.Sprintf("forecast|%s|%s|%s", criteriaID, onset, headline)
	case types.SourceAlert:
		id := ""
		if snap != nil {
			id = snap.ID
		}
		return fmt.Sprintf("alert|%s", id)
	default:
		return fmt.Sprintf("current|%s", criteriaID)
	}
}

// eventKey is the alert idempotency key. Current and forecast alerts are
// bucketed by evaluation hour so repeated cycles inside one hour collapse;
// government alerts are keyed by the upstream alert ID.
func eventKey(source types.ConditionSource, criteriaID string, snap *types.WeatherSnapshot, evalTime time.Time) string {
	switch source {
	case types.SourceAlert:
		id := ""
		if snap != nil {
			id = snap.ID
		}
		return fmt.Sprintf("alert|%s|%s", criteriaID, id)
	case types.SourceForecast:
		return fmt.Sprintf("forecast|%s|%s", criteriaID, hourBucket(evalTime))
	default:
		return fmt.Sprintf("current|%s|%s", criteriaID, hourBucket(evalTime))
	}
}

// hourBucket truncates the evaluation time to the hour in UTC.
func hourBucket(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(time.RFC3339)
}
