package audience

import (
	"errors"

	"paywall-engine/internal/model"
	"paywall-engine/internal/ruleeval"
)

// ErrConfigUnavailable is returned when no configuration generation has
// been loaded yet.
var ErrConfigUnavailable = errors.New("audience configuration unavailable")

// Classify maps a resolution (or its absence) onto the closed outcome
// set. The mapping is total: every evaluation lands on exactly one of
// the five result kinds.
func Classify(res *Resolution, unmatched []model.UnmatchedRule, triggerExists bool) (model.TriggerResult, *model.ConfirmableAssignment) {
	if !triggerExists {
		return model.EventNotFoundResult(), nil
	}
	if res == nil {
		return model.NoRuleMatchResult(unmatched), nil
	}
	switch res.Rule.Variant.Type {
	case model.VariantHoldout:
		return model.HoldoutResult(res.Rule.Experiment()), res.Assignment
	default:
		return model.PaywallResult(res.Rule.Experiment()), res.Assignment
	}
}

// Service ties store, resolver and classifier together for one-shot
// event evaluation against a captured snapshot.
type Service struct {
	store    *Store
	resolver *Resolver
}

func NewService(store *Store, eval *ruleeval.Evaluator) *Service {
	return &Service{store: store, resolver: NewResolver(store, eval)}
}

func (s *Service) Store() *Store { return s.store }

// Evaluate runs the full resolve-and-classify sequence for an event
// against the given snapshot.
func (s *Service) Evaluate(snap ConfigSnapshot, event model.Event, ctx ruleeval.Context) (model.TriggerResult, *model.ConfirmableAssignment) {
	trigger, ok := snap.Trigger(event.Name)
	if !ok {
		return Classify(nil, nil, false)
	}
	res, unmatched := s.resolver.Resolve(trigger, ctx)
	return Classify(res, unmatched, true)
}

// EvaluateCurrent is Evaluate against the store's current generation,
// for callers that do not need snapshot pinning (dry-run evaluation).
func (s *Service) EvaluateCurrent(event model.Event, ctx ruleeval.Context) (model.TriggerResult, *model.ConfirmableAssignment) {
	snap, ok := s.store.Snapshot()
	if !ok {
		return model.ErrorResult(ErrConfigUnavailable), nil
	}
	return s.Evaluate(snap, event, ctx)
}
