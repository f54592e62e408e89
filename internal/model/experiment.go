package model

// VariantType is the arm a user is bucketed into.
type VariantType string

const (
	VariantTreatment VariantType = "TREATMENT"
	VariantHoldout   VariantType = "HOLDOUT"
)

// Variant is one arm of an experiment. Immutable value type, safe to
// copy across goroutines.
type Variant struct {
	ID        string      `json:"id"`
	Type      VariantType `json:"type"`
	PaywallID string      `json:"paywall_id,omitempty"` // treatment only
}

// Experiment is the campaign experiment a matched rule assigns.
type Experiment struct {
	ID      string  `json:"id"`
	GroupID string  `json:"group_id"`
	Variant Variant `json:"variant"`
}

// PresentByID synthesizes the experiment used for identifier-driven
// presentation requests, which bypass rule evaluation entirely.
func PresentByID(paywallID string) Experiment {
	return Experiment{
		ID:      paywallID,
		GroupID: "",
		Variant: Variant{
			ID:        "",
			Type:      VariantTreatment,
			PaywallID: paywallID,
		},
	}
}
