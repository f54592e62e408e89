package model

import "encoding/json"

// TriggerResultKind enumerates the closed set of trigger evaluation
// outcomes. Every evaluation produces exactly one.
type TriggerResultKind string

const (
	ResultPaywall       TriggerResultKind = "paywall"
	ResultHoldout       TriggerResultKind = "holdout"
	ResultNoRuleMatch   TriggerResultKind = "no_rule_match"
	ResultEventNotFound TriggerResultKind = "event_not_found"
	ResultError         TriggerResultKind = "error"
)

// UnmatchedReason says why a rule did not match during resolution.
type UnmatchedReason string

const (
	UnmatchedExpression UnmatchedReason = "expression"
	UnmatchedOccurrence UnmatchedReason = "occurrence"
)

// UnmatchedRule records one rule that was evaluated but did not match.
// Only carried on NoRuleMatch results, for diagnostics and session
// events; never user-visible.
type UnmatchedRule struct {
	ExperimentID string          `json:"experiment_id"`
	Reason       UnmatchedReason `json:"reason"`
}

// TriggerResult is the outcome of evaluating one event against the
// configured triggers.
type TriggerResult struct {
	Kind       TriggerResultKind
	Experiment *Experiment // paywall and holdout only
	Unmatched  []UnmatchedRule
	Err        error
}

func PaywallResult(exp Experiment) TriggerResult {
	return TriggerResult{Kind: ResultPaywall, Experiment: &exp}
}

func HoldoutResult(exp Experiment) TriggerResult {
	return TriggerResult{Kind: ResultHoldout, Experiment: &exp}
}

func NoRuleMatchResult(unmatched []UnmatchedRule) TriggerResult {
	return TriggerResult{Kind: ResultNoRuleMatch, Unmatched: unmatched}
}

func EventNotFoundResult() TriggerResult {
	return TriggerResult{Kind: ResultEventNotFound}
}

func ErrorResult(err error) TriggerResult {
	return TriggerResult{Kind: ResultError, Err: err}
}

func (r TriggerResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Result     TriggerResultKind `json:"result"`
		Experiment *Experiment       `json:"experiment,omitempty"`
		Error      string            `json:"error,omitempty"`
	}{Result: r.Kind, Experiment: r.Experiment}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
