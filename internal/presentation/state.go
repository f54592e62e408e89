package presentation

import (
	"encoding/json"
	"errors"

	"paywall-engine/internal/model"
)

// StateKind enumerates the terminal presentation states.
type StateKind string

const (
	StatePresented StateKind = "presented"
	StateDismissed StateKind = "dismissed"
	StateSkipped   StateKind = "skipped"
	StateError     StateKind = "error"
)

// SkipReason says why a presentation was skipped.
type SkipReason string

const (
	ReasonDebuggerPresented SkipReason = "debugger_presented"
	ReasonAlreadyPresented  SkipReason = "paywall_already_presented"
	ReasonUserIsSubscribed  SkipReason = "user_is_subscribed"
	ReasonHoldout           SkipReason = "holdout"
	ReasonNoRuleMatch       SkipReason = "no_rule_match"
	ReasonEventNotFound     SkipReason = "event_not_found"
)

// Presentation error taxonomy. Everything else is wrapped as-is.
var (
	ErrNoPresenter             = errors.New("no presenter available")
	ErrNoInternet              = errors.New("no internet connection and no cached configuration")
	ErrPaywallAlreadyPresented = errors.New("paywall already presented")
	ErrPaywallNotFound         = errors.New("paywall not found in configuration")
)

// State is one terminal presentation outcome. A request's state stream
// carries exactly one State and then completes.
type State struct {
	Kind    StateKind
	Paywall *model.PaywallInfo
	Reason  SkipReason
	Result  string // dismissal result, dismissed only
	Err     error
}

func Presented(info model.PaywallInfo) State {
	return State{Kind: StatePresented, Paywall: &info}
}

func Dismissed(info *model.PaywallInfo, result string) State {
	return State{Kind: StateDismissed, Paywall: info, Result: result}
}

func Skipped(reason SkipReason) State {
	return State{Kind: StateSkipped, Reason: reason}
}

func Failed(err error) State {
	return State{Kind: StateError, Err: err}
}

// Terminal reports whether the state ends a request's stream. All four
// kinds are terminal today; the distinction is kept for the metric
// label and for callers switching over kinds.
func (s State) Terminal() bool { return s.Kind != "" }

func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		State   StateKind          `json:"state"`
		Paywall *model.PaywallInfo `json:"paywall,omitempty"`
		Reason  SkipReason         `json:"reason,omitempty"`
		Result  string             `json:"result,omitempty"`
		Error   string             `json:"error,omitempty"`
	}{State: s.Kind, Paywall: s.Paywall, Reason: s.Reason, Result: s.Result}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

// MetricLabel is the low-cardinality label used for outcome counters.
func (s State) MetricLabel() string {
	switch s.Kind {
	case StateSkipped:
		return "skipped_" + string(s.Reason)
	default:
		return string(s.Kind)
	}
}
