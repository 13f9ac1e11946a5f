package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stormwatch/internal/rules"
	"stormwatch/internal/types"
)

// CriteriaStore lists and loads alert criteria.
type CriteriaStore interface {
	FindEnabled(ctx context.Context) ([]*types.AlertCriteria, error)
	FindEnabledByLocation(ctx context.Context, location string) ([]*types.AlertCriteria, error)
	GetByID(ctx context.Context, id string) (*types.AlertCriteria, error)
}

// StateStore persists the per-condition anti-spam state.
type StateStore interface {
	Find(ctx context.Context, criteriaID, conditionKey string) (*types.CriteriaState, error)
	Upsert(ctx context.Context, s *types.CriteriaState) error
}

// AlertWriter creates alerts idempotently on (criteria_id, event_key).
type AlertWriter interface {
	Create(ctx context.Context, a *types.Alert) (created bool, err error)
}

// AlertEnqueuer hands a newly created alert to the delivery pipeline.
type AlertEnqueuer interface {
	Enqueue(ctx context.Context, alert *types.Alert) error
}

// Processor runs evaluation cycles. One cycle fetches weather for every
// enabled criteria, evaluates the rules against each condition stream, and
// raises alerts through the anti-spam state machine.
type Processor struct {
	criteria    CriteriaStore
	states      StateStore
	alerts      AlertWriter
	enqueuer    AlertEnqueuer
	provider    types.WeatherProvider
	evaluator   *rules.Evaluator
	metrics     Metrics
	clock       types.Clock
	logger      types.Logger
	concurrency int
}

// NewProcessor creates a Processor. concurrency bounds how many criteria are
// evaluated in parallel during a cycle.
func NewProcessor(
	criteria CriteriaStore,
	states StateStore,
	alerts AlertWriter,
	enqueuer AlertEnqueuer,
	provider types.WeatherProvider,
	metrics Metrics,
	clock types.Clock,
	logger types.Logger,
	concurrency int,
) *Processor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Processor{
		criteria:    criteria,
		states:      states,
		alerts:      alerts,
		enqueuer:    enqueuer,
		provider:    provider,
		evaluator:   rules.NewEvaluator(),
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
		concurrency: concurrency,
	}
}

// RunCycle evaluates every enabled criteria. Per-criteria failures are logged
// and do not abort the cycle; the error return covers only the criteria
// listing itself.
func (p *Processor) RunCycle(ctx context.Context) error {
	criteria, err := p.criteria.FindEnabled(ctx)
	if err != nil {
		return err
	}
	return p.runAll(ctx, criteria)
}

// RunCycleForLocation evaluates the enabled criteria whose location filter
// matches the given text. Used for targeted re-evaluation after upstream
// data for one area changes.
func (p *Processor) RunCycleForLocation(ctx context.Context, location string) error {
	criteria, err := p.criteria.FindEnabledByLocation(ctx, location)
	if err != nil {
		return err
	}
	return p.runAll(ctx, criteria)
}

func (p *Processor) runAll(ctx context.Context, criteria []*types.AlertCriteria) error {
	start := p.clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, c := range criteria {
		c := c
		g.Go(func() error {
			if err := p.EvaluateCriteria(gctx, c); err != nil {
				p.logger.Error("criteria evaluation failed",
					"criteria_id", c.ID,
					"error", err.Error(),
				)
			}
			// Evaluation failures never cancel sibling criteria.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.metrics.RecordEvaluationLag(ctx, p.clock.Now().Sub(start))
	p.logger.Info("evaluation cycle complete",
		"criteria", len(criteria),
		"duration_ms", p.clock.Now().Sub(start).Milliseconds(),
	)

	return nil
}

// EvaluateCriteria runs one criteria through fetch, rule evaluation, and the
// state machine. A failed or degraded fetch leaves all condition state
// untouched, so a provider outage cannot fake a cleared condition.
func (p *Processor) EvaluateCriteria(ctx context.Context, criteria *types.AlertCriteria) error {
	result, err := p.provider.Fetch(ctx, criteria)
	if err != nil || !result.OK {
		p.metrics.RecordFetchFailure(ctx, "weather")
		if err != nil {
			return err
		}
		p.logger.Warn("weather fetch degraded, skipping evaluation", "criteria_id", criteria.ID)
		return nil
	}

	now := p.clock.Now()

	// Government alerts: one independent condition stream per upstream alert.
	for i := range result.Alerts {
		snap := &result.Alerts[i]
		fired, reason := p.evaluator.Evaluate(criteria, snap)
		err := p.processCondition(ctx, criteria, snap, types.SourceAlert, alertConditionKey(snap.ID), fired, reason, now)
		if err != nil {
			return err
		}
	}

	// Current conditions.
	if criteria.MonitorsCurrent() && result.Current != nil {
		fired, reason := p.evaluator.Evaluate(criteria, result.Current)
		err := p.processCondition(ctx, criteria, result.Current, types.SourceCurrent, conditionKeyCurrent, fired, reason, now)
		if err != nil {
			return err
		}
	}

	// Forecast: the stream fires when any period inside the window fires.
	// The first firing period provides the alert content.
	if criteria.MonitorsForecast() && len(result.Forecast) > 0 {
		var firing *types.WeatherSnapshot
		var firingReason string
		for i := range result.Forecast {
			snap := &result.Forecast[i]
			if fired, reason := p.evaluator.Evaluate(criteria, snap); fired {
				firing, firingReason = snap, reason
				break
			}
		}

		snap := firing
		if snap == nil {
			snap = &result.Forecast[0]
		}
		err := p.processCondition(ctx, criteria, snap, types.SourceForecast, conditionKeyForecast, firing != nil, firingReason, now)
		if err != nil {
			return err
		}
	}

	return nil
}

// processCondition drives the anti-spam state machine for one condition
// stream and raises an alert when the transition warrants it.
//
// Transitions:
//   - rising edge (was clear, now firing): notify if the rearm cooldown has
//     elapsed; a suppressed rising edge stays "clear" so the next cycle can
//     try again once the cooldown passes.
//   - continuing (was firing, still firing): notify only when the event
//     signature changed, the criteria allows repeats, and the cooldown has
//     elapsed.
//   - falling edge or still clear: record clear, never notify.
func (p *Processor) processCondition(
	ctx context.Context,
	criteria *types.AlertCriteria,
	snap *types.WeatherSnapshot,
	source types.ConditionSource,
	conditionKey string,
	fired bool,
	reason string,
	now time.Time,
) error {
	state, err := p.states.Find(ctx, criteria.ID, conditionKey)
	if err != nil {
		return err
	}
	if state == nil {
		state = &types.CriteriaState{
			CriteriaID:   criteria.ID,
			ConditionKey: conditionKey,
		}
	}

	if !fired {
		state.LastConditionMet = false
		state.LastEventSignature = ""
		state.UpdatedAt = now
		return p.states.Upsert(ctx, state)
	}

	signature := eventSignature(source, criteria.ID, snap)
	cooldownOK := p.cooldownElapsed(criteria, state, now)

	notify := false
	switch {
	case !state.LastConditionMet:
		// Rising edge.
		notify = cooldownOK
	case signature != state.LastEventSignature && !criteria.OncePerEvent:
		// Continuing condition that changed identity.
		notify = cooldownOK
	}

	if !notify {
		if !state.LastConditionMet && !cooldownOK {
			// Suppressed rising edge: stay "clear" so the edge re-presents
			// itself once the cooldown passes.
			state.LastConditionMet = false
		}
		state.UpdatedAt = now
		return p.states.Upsert(ctx, state)
	}

	created, err := p.raiseAlert(ctx, criteria, snap, source, reason, now)
	if err != nil {
		return err
	}

	state.LastConditionMet = true
	state.LastEventSignature = signature
	state.LastNotifiedAt = &now
	state.UpdatedAt = now
	if err := p.states.Upsert(ctx, state); err != nil {
		return err
	}

	if created {
		p.metrics.RecordAlertCreated(ctx, source)
	}
	return nil
}

// cooldownElapsed reports whether the rearm window allows a new notification.
// A zero rearm window means no cooldown at all.
func (p *Processor) cooldownElapsed(criteria *types.AlertCriteria, state *types.CriteriaState, now time.Time) bool {
	if criteria.RearmWindowMinutes <= 0 || state.LastNotifiedAt == nil {
		return true
	}
	rearm := time.Duration(criteria.RearmWindowMinutes) * time.Minute
	return !state.LastNotifiedAt.Add(rearm).After(now)
}

// raiseAlert creates the alert idempotently and, when this process won the
// insert, hands it to the delivery pipeline.
func (p *Processor) raiseAlert(
	ctx context.Context,
	criteria *types.AlertCriteria,
	snap *types.WeatherSnapshot,
	source types.ConditionSource,
	reason string,
	now time.Time,
) (bool, error) {
	alert := &types.Alert{
		ID:              uuid.New().String(),
		CriteriaID:      criteria.ID,
		UserID:          criteria.UserID,
		EventKey:        eventKey(source, criteria.ID, snap, now),
		Reason:          reason,
		ConditionSource: source,
		Status:          types.AlertStatusPending,
		CreatedAt:       now,
	}

	if snap != nil {
		if source == types.SourceAlert {
			alert.WeatherDataID = snap.ID
		}
		alert.Headline = snap.Headline
		alert.Description = snap.Description
		alert.Severity = snap.Severity
		alert.Location = snap.Location
		alert.ConditionOnset = snap.Onset
		alert.ConditionExpires = snap.Expires
		alert.ConditionTemperatureC = snap.TemperatureC
		alert.ConditionPrecipitationProbability = snap.PrecipitationProbability
		alert.ConditionPrecipitationAmount = snap.PrecipitationAmount
	}
	if alert.Headline == "" {
		alert.Headline = criteria.Name
	}
	if alert.Location == "" {
		alert.Location = criteria.Location
	}

	created, err := p.alerts.Create(ctx, alert)
	if err != nil {
		return false, err
	}
	if !created {
		// Another cycle already raised this event.
		return false, nil
	}

	p.logger.Info("alert raised",
		"alert_id", alert.ID,
		"criteria_id", criteria.ID,
		"source", string(source),
		"event_key", alert.EventKey,
		"reason", reason,
	)

	if err := p.enqueuer.Enqueue(ctx, alert); err != nil {
		// The alert row exists; delivery enqueue is recoverable separately.
		p.logger.Error("delivery enqueue failed",
			"alert_id", alert.ID,
			"error", err.Error(),
		)
	}

	return true, nil
}
