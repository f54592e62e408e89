package audience

import (
	"paywall-engine/internal/model"
	"paywall-engine/internal/ruleeval"
)

// Resolution is a successful rule match. Assignment is non-nil only
// when the match was newly computed, i.e. no confirmation dispatch has
// been attempted for it this generation.
type Resolution struct {
	Rule       model.Rule
	Assignment *model.ConfirmableAssignment
}

// Resolver walks a trigger's rules in declared order and returns the
// first match. It never mutates store state; marking an assignment as
// dispatched is the pipeline's job, which keeps resolution side-effect
// free and testable in isolation.
type Resolver struct {
	store *Store
	eval  *ruleeval.Evaluator
}

func NewResolver(store *Store, eval *ruleeval.Evaluator) *Resolver {
	return &Resolver{store: store, eval: eval}
}

// Resolve returns the first matching rule, or nil if none match. The
// unmatched list records every rule considered before the match (or all
// of them when nothing matched) with the reason it was passed over.
//
// A rule with no expression always matches, so anything after it is
// unreachable. That mirrors catch-all rule semantics upstream and is
// deliberately not flagged here; ordering validation belongs to the
// configuration tooling.
func (r *Resolver) Resolve(trigger model.Trigger, ctx ruleeval.Context) (*Resolution, []model.UnmatchedRule) {
	var unmatched []model.UnmatchedRule
	for _, rule := range trigger.Rules {
		if capped(r.store, rule) {
			unmatched = append(unmatched, model.UnmatchedRule{
				ExperimentID: rule.ExperimentID,
				Reason:       model.UnmatchedOccurrence,
			})
			continue
		}
		if !r.eval.Evaluate(rule.Expression, ctx) {
			unmatched = append(unmatched, model.UnmatchedRule{
				ExperimentID: rule.ExperimentID,
				Reason:       model.UnmatchedExpression,
			})
			continue
		}

		res := &Resolution{Rule: rule}
		if r.store.AssignmentState(rule.ExperimentID) == model.AssignmentUnconfirmed {
			res.Assignment = &model.ConfirmableAssignment{
				ExperimentID: rule.ExperimentID,
				Variant:      rule.Variant,
			}
		}
		return res, unmatched
	}
	return nil, unmatched
}

func capped(store *Store, rule model.Rule) bool {
	if rule.Occurrence == nil {
		return false
	}
	return store.OccurrenceCount(rule.Occurrence.Key) >= rule.Occurrence.MaxCount
}
