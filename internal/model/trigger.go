package model

// Trigger is a named hook point holding its audience rules in declared
// order. First matching rule wins; triggers are replaced wholesale on
// every configuration load.
type Trigger struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

// Rule is one audience condition plus the experiment/variant it assigns
// when it matches. An empty Expression always matches, which makes such
// a rule a terminator: rules after it are unreachable.
type Rule struct {
	Expression        string      `json:"expression,omitempty"`
	ExperimentID      string      `json:"experiment_id"`
	ExperimentGroupID string      `json:"experiment_group_id"`
	Variant           Variant     `json:"variant"`
	Occurrence        *Occurrence `json:"occurrence,omitempty"`
}

func (r Rule) Experiment() Experiment {
	return Experiment{
		ID:      r.ExperimentID,
		GroupID: r.ExperimentGroupID,
		Variant: r.Variant,
	}
}

// Occurrence caps how many times a rule may match for one user.
type Occurrence struct {
	Key      string `json:"key"`
	MaxCount int    `json:"max_count"`
}

// AssignmentState is the per-rule confirmation bookkeeping, tracked per
// configuration generation. The two phases make explicit that a
// dispatch was attempted, not that it was acknowledged.
type AssignmentState int

const (
	AssignmentUnconfirmed AssignmentState = iota
	AssignmentDispatched
)

// ConfirmableAssignment is produced when a rule match was not yet
// dispatched for confirmation. At most one is produced per resolved
// rule match per configuration generation.
type ConfirmableAssignment struct {
	ExperimentID string  `json:"experiment_id"`
	Variant      Variant `json:"variant"`
}
