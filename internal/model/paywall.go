package model

// PresentationCondition controls whether subscription gating applies to
// a paywall.
type PresentationCondition string

const (
	// ConditionCheckUserSubscription skips the paywall for subscribed users.
	ConditionCheckUserSubscription PresentationCondition = "CHECK_USER_SUBSCRIPTION"
	// ConditionAlways shows the paywall regardless of subscription status.
	ConditionAlways PresentationCondition = "ALWAYS"
)

// Paywall is the renderable descriptor a treatment variant points at.
// Rendering itself is out of scope; this is what gets handed to the
// renderer collaborator.
type Paywall struct {
	ID                    string                `json:"id"`
	Name                  string                `json:"name"`
	URL                   string                `json:"url"`
	PresentationCondition PresentationCondition `json:"presentation_condition"`
}

// PaywallInfo describes a presented (or about-to-present) paywall back
// to the caller.
type PaywallInfo struct {
	PaywallID    string `json:"paywall_id"`
	Name         string `json:"name,omitempty"`
	URL          string `json:"url,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`
	VariantID    string `json:"variant_id,omitempty"`
	TriggeredBy  string `json:"triggered_by,omitempty"`
}
