package session

import (
	"github.com/rs/zerolog/log"

	"paywall-engine/internal/model"
)

// EventKind is a pipeline lifecycle notification.
type EventKind string

const (
	TriggerFired     EventKind = "trigger_fired"
	SessionCompleted EventKind = "session_completed" // non-presenting outcome
	PaywallPresented EventKind = "paywall_presented"
	PaywallDismissed EventKind = "paywall_dismissed"
)

// Context carries what the analytics subsystem needs to attribute a
// lifecycle event.
type Context struct {
	EventName string
	Result    model.TriggerResultKind
	PaywallID string
	Unmatched []model.UnmatchedRule
}

// Tracker receives lifecycle notifications from the pipeline. The
// analytics transport behind it is out of scope.
type Tracker interface {
	OnLifecycleEvent(kind EventKind, ctx Context)
}

// LogTracker emits lifecycle events as structured log entries.
type LogTracker struct{}

func (LogTracker) OnLifecycleEvent(kind EventKind, ctx Context) {
	log.Info().
		Str("kind", string(kind)).
		Str("event", ctx.EventName).
		Str("result", string(ctx.Result)).
		Str("paywall_id", ctx.PaywallID).
		Msg("session lifecycle event")
}

// Nop discards all lifecycle events.
type Nop struct{}

func (Nop) OnLifecycleEvent(EventKind, Context) {}
