package presentation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"paywall-engine/internal/audience"
	"paywall-engine/internal/confirm"
	"paywall-engine/internal/identity"
	"paywall-engine/internal/model"
	"paywall-engine/internal/observability"
	"paywall-engine/internal/renderer"
	"paywall-engine/internal/ruleeval"
	"paywall-engine/internal/session"
)

// Dependencies are the collaborators the pipeline coordinates.
type Dependencies struct {
	Audience    *audience.Service
	States      *StateStore
	Renderer    renderer.Renderer
	Confirmer   *confirm.Dispatcher
	Sessions    session.Tracker
	Identity    *identity.Manager
	ConfigReady *Gate

	// ReadinessUnit scales the 5-unit readiness watchdog. Defaults to
	// one second.
	ReadinessUnit time.Duration
}

// Pipeline drives a presentation request through the ordered stage
// sequence to exactly one terminal state. Each request runs as its own
// goroutine; stages suspend on channels, never on a shared worker.
type Pipeline struct {
	deps Dependencies
}

func NewPipeline(deps Dependencies) *Pipeline {
	if deps.ReadinessUnit <= 0 {
		deps.ReadinessUnit = time.Second
	}
	if deps.Sessions == nil {
		deps.Sessions = session.Nop{}
	}
	return &Pipeline{deps: deps}
}

// Present runs the pipeline for the request. The returned channel
// carries exactly one terminal state and is then closed.
func (p *Pipeline) Present(ctx context.Context, req Request) <-chan State {
	ch := make(chan State, 1)
	go func() {
		defer close(ch)
		observability.PipelinesInFlight.Inc()
		defer observability.PipelinesInFlight.Dec()

		state := p.execute(ctx, req)
		observability.OutcomesTotal.WithLabelValues(state.MetricLabel()).Inc()
		ch <- state
	}()
	return ch
}

// Evaluate is the dry-run surface: classify the event without any
// presentation. A produced assignment is still dispatched so dry-run
// and presentation observe the same sticky bucketing. Zero presentation
// states are emitted.
func (p *Pipeline) Evaluate(_ context.Context, event model.Event, user, device map[string]any) model.TriggerResult {
	start := time.Now()
	result, assignment := p.deps.Audience.EvaluateCurrent(event, ruleeval.Context{
		User:   user,
		Device: device,
		Params: event.Parameters,
	})
	observability.EvalLatency.Observe(time.Since(start).Seconds())
	observability.EvaluationsTotal.WithLabelValues(string(result.Kind)).Inc()

	if assignment != nil {
		p.deps.Confirmer.Dispatch(*assignment)
		p.deps.Audience.Store().MarkDispatched(assignment.ExperimentID)
	}
	return result
}

// DismissCurrent tears down the live paywall, if any.
func (p *Pipeline) DismissCurrent(ctx context.Context, result string) error {
	surfaceID, ok := p.deps.States.CurrentlyPresentingSurface()
	if !ok {
		return nil
	}
	if err := p.deps.Renderer.Dismiss(ctx, surfaceID); err != nil {
		return err
	}
	last, hadLast := p.deps.States.LastAttempt()
	p.deps.States.EndPresenting(surfaceID)
	if hadLast && last.State.Kind == StatePresented {
		p.deps.States.RecordAttempt(last.Request, Dismissed(last.State.Paywall, result))
		p.deps.Sessions.OnLifecycleEvent(session.PaywallDismissed, session.Context{
			EventName: last.Request.Info.EventName(),
			PaywallID: paywallID(last.State.Paywall),
		})
	}
	return nil
}

// Reset clears presentation state, used on sign-out.
func (p *Pipeline) Reset() {
	p.deps.States.Reset()
}

// execute walks the stages in order. Every return is a terminal state;
// no stage proceeds past a short-circuit.
func (p *Pipeline) execute(ctx context.Context, req Request) State {
	if req.Info.Event != nil {
		p.deps.Sessions.OnLifecycleEvent(session.TriggerFired, session.Context{
			EventName: req.Info.EventName(),
		})
	}

	// Stage 1: readiness.
	if st := p.awaitReadiness(ctx, req); st != nil {
		return *st
	}

	// Stage 2: capture one configuration snapshot for the whole
	// request; a concurrent generation swap must not be observed
	// mid-pipeline.
	snap, ok := p.deps.Audience.Store().Snapshot()
	if !ok {
		return Failed(audience.ErrConfigUnavailable)
	}
	result, assignment, occurrenceKey := p.evaluate(snap, req)

	// Stage 3: gate on the trigger result.
	if st := p.gateOnResult(req, result, assignment); st != nil {
		return *st
	}

	// Stage 4: debugger check. A debugger session is always allowed to
	// present on its own surface.
	if req.Status.DebuggerAttached() && !req.DebuggerSession {
		return Skipped(ReasonDebuggerPresented)
	}

	paywall, ok := snap.Paywall(result.Experiment.Variant.PaywallID)
	if !ok {
		return Failed(ErrPaywallNotFound)
	}

	// Stage 5: subscription gating. Re-read the live status here even
	// though stage 1 inspected it; it can change while earlier stages
	// were suspended.
	if req.Status.Subscription() == identity.StatusActive &&
		!req.Overrides.IgnoreSubscriptionStatus &&
		paywall.PresentationCondition != model.ConditionAlways {
		return Skipped(ReasonUserIsSubscribed)
	}

	// Stage 6: fast path for the same event retriggered while its
	// paywall is still up, then surface acquisition with the
	// race-closing reserve.
	if info, hit := p.deps.States.PresentedInfoForEvent(req.Info.EventName()); hit {
		return Presented(info)
	}

	surface, err := p.deps.Renderer.AcquireSurface(ctx)
	if err != nil {
		return Failed(ErrNoPresenter)
	}

	info := buildPaywallInfo(paywall, *result.Experiment, req)
	if err := p.deps.States.BeginPresenting(req, surface.ID, info); err != nil {
		return Skipped(ReasonAlreadyPresented)
	}

	// Stage 7: confirm the assignment, fire-and-forget. Never for
	// debugger sessions, and a failure never alters the state already
	// headed for emission.
	if assignment != nil && !req.DebuggerSession {
		p.deps.Confirmer.Dispatch(*assignment)
		p.deps.Audience.Store().MarkDispatched(assignment.ExperimentID)
	}

	// Stage 8: present.
	if err := p.deps.Renderer.Present(ctx, surface, info); err != nil {
		p.deps.States.EndPresenting(surface.ID)
		if errors.Is(err, renderer.ErrAlreadyPresented) {
			st := Failed(ErrPaywallAlreadyPresented)
			p.deps.States.RecordAttempt(req, st)
			return st
		}
		st := Failed(err)
		p.deps.States.RecordAttempt(req, st)
		return st
	}

	p.deps.Audience.Store().RecordOccurrence(occurrenceKey)
	p.deps.Sessions.OnLifecycleEvent(session.PaywallPresented, session.Context{
		EventName: req.Info.EventName(),
		Result:    result.Kind,
		PaywallID: paywall.ID,
	})

	st := Presented(info)
	p.deps.States.RecordAttempt(req, st)
	return st
}

// awaitReadiness suspends until identity, configuration and a known
// subscription status are all available. A nil return means proceed.
func (p *Pipeline) awaitReadiness(ctx context.Context, req Request) *State {
	// Offline with nothing ever cached is unrecoverable: an active
	// subscriber is skipped, everyone else gets the no-internet error.
	if !p.deps.ConfigReady.Opened() && !req.Status.HasInternet() {
		if req.Status.Subscription() == identity.StatusActive {
			st := Skipped(ReasonUserIsSubscribed)
			return &st
		}
		st := Failed(ErrNoInternet)
		return &st
	}

	// One-shot watchdog: diagnostic only, never terminates the
	// pipeline. Stopped as soon as the waits resolve.
	watchdog := time.AfterFunc(5*p.deps.ReadinessUnit, func() {
		log.Warn().
			Str("request_id", req.ID).
			Bool("identity_established", p.deps.Identity.Established()).
			Bool("config_loaded", p.deps.ConfigReady.Opened()).
			Str("subscription_status", string(p.deps.Identity.SubscriptionStatus())).
			Msg("presentation readiness watchdog fired")
	})
	defer watchdog.Stop()

	if err := p.deps.Identity.WaitEstablished(ctx); err != nil {
		st := Failed(err)
		return &st
	}
	if err := p.deps.ConfigReady.Wait(ctx); err != nil {
		st := Failed(err)
		return &st
	}
	if _, err := p.deps.Identity.WaitKnownStatus(ctx); err != nil {
		st := Failed(err)
		return &st
	}
	return nil
}

// evaluate produces the trigger result for the request. Identifier
// driven requests synthesize a paywall result directly, bypassing rule
// evaluation.
func (p *Pipeline) evaluate(snap audience.ConfigSnapshot, req Request) (model.TriggerResult, *model.ConfirmableAssignment, string) {
	if req.Info.PaywallID != "" {
		return model.PaywallResult(model.PresentByID(req.Info.PaywallID)), nil, ""
	}

	event := *req.Info.Event
	start := time.Now()
	result, assignment := p.deps.Audience.Evaluate(snap, event, ruleeval.Context{
		User:   req.UserAttributes,
		Device: req.DeviceAttributes,
		Params: event.Parameters,
	})
	observability.EvalLatency.Observe(time.Since(start).Seconds())
	observability.EvaluationsTotal.WithLabelValues(string(result.Kind)).Inc()

	var occurrenceKey string
	if result.Kind == model.ResultPaywall || result.Kind == model.ResultHoldout {
		if trigger, ok := snap.Trigger(event.Name); ok {
			occurrenceKey = occurrenceKeyFor(trigger, result.Experiment.ID)
		}
	}
	return result, assignment, occurrenceKey
}

// gateOnResult applies the stage-3 short-circuits. Holdout assignments
// are still confirmed before exiting, so holdout bucketing stays as
// sticky as treatment bucketing.
func (p *Pipeline) gateOnResult(req Request, result model.TriggerResult, assignment *model.ConfirmableAssignment) *State {
	switch result.Kind {
	case model.ResultPaywall:
		return nil
	case model.ResultHoldout:
		if assignment != nil && !req.DebuggerSession {
			p.deps.Confirmer.Dispatch(*assignment)
			p.deps.Audience.Store().MarkDispatched(assignment.ExperimentID)
		}
		p.notifyCompleted(req, result)
		st := Skipped(ReasonHoldout)
		return &st
	case model.ResultNoRuleMatch:
		p.notifyCompleted(req, result)
		st := Skipped(ReasonNoRuleMatch)
		return &st
	case model.ResultEventNotFound:
		st := Skipped(ReasonEventNotFound)
		return &st
	default:
		st := Failed(result.Err)
		return &st
	}
}

func (p *Pipeline) notifyCompleted(req Request, result model.TriggerResult) {
	p.deps.Sessions.OnLifecycleEvent(session.SessionCompleted, session.Context{
		EventName: req.Info.EventName(),
		Result:    result.Kind,
		Unmatched: result.Unmatched,
	})
}

func occurrenceKeyFor(trigger model.Trigger, experimentID string) string {
	for _, rule := range trigger.Rules {
		if rule.ExperimentID == experimentID && rule.Occurrence != nil {
			return rule.Occurrence.Key
		}
	}
	return ""
}

func buildPaywallInfo(paywall model.Paywall, exp model.Experiment, req Request) model.PaywallInfo {
	return model.PaywallInfo{
		PaywallID:    paywall.ID,
		Name:         paywall.Name,
		URL:          paywall.URL,
		ExperimentID: exp.ID,
		VariantID:    exp.Variant.ID,
		TriggeredBy:  req.Info.EventName(),
	}
}

func paywallID(info *model.PaywallInfo) string {
	if info == nil {
		return ""
	}
	return info.PaywallID
}
