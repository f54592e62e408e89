package audience

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paywall-engine/internal/model"
	"paywall-engine/internal/ruleeval"
)

func treatmentRule(expID, variantID, paywallID, expression string) model.Rule {
	return model.Rule{
		Expression:        expression,
		ExperimentID:      expID,
		ExperimentGroupID: "group_1",
		Variant: model.Variant{
			ID:        variantID,
			Type:      model.VariantTreatment,
			PaywallID: paywallID,
		},
	}
}

func holdoutRule(expID, variantID, expression string) model.Rule {
	return model.Rule{
		Expression:        expression,
		ExperimentID:      expID,
		ExperimentGroupID: "group_1",
		Variant:           model.Variant{ID: variantID, Type: model.VariantHoldout},
	}
}

func TestResolve_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		rules         []model.Rule
		ctx           ruleeval.Context
		wantMatch     string // experiment id, "" for no match
		wantUnmatched []model.UnmatchedReason
	}{
		{
			name:      "empty rule list never matches",
			rules:     nil,
			ctx:       ruleeval.Context{},
			wantMatch: "",
		},
		{
			name: "first matching rule wins",
			rules: []model.Rule{
				treatmentRule("exp_1", "v1", "pw_1", "params.steps >= 3"),
				treatmentRule("exp_2", "v2", "pw_2", "params.steps >= 1"),
			},
			ctx:       ruleeval.Context{Params: map[string]any{"steps": 5}},
			wantMatch: "exp_1",
		},
		{
			name: "later rule matches when earlier does not",
			rules: []model.Rule{
				treatmentRule("exp_1", "v1", "pw_1", "params.steps >= 10"),
				treatmentRule("exp_2", "v2", "pw_2", "params.steps >= 1"),
			},
			ctx:           ruleeval.Context{Params: map[string]any{"steps": 5}},
			wantMatch:     "exp_2",
			wantUnmatched: []model.UnmatchedReason{model.UnmatchedExpression},
		},
		{
			name: "no rule matches",
			rules: []model.Rule{
				treatmentRule("exp_1", "v1", "pw_1", "params.steps >= 10"),
				holdoutRule("exp_2", "v2", "params.steps >= 8"),
			},
			ctx:           ruleeval.Context{Params: map[string]any{"steps": 5}},
			wantMatch:     "",
			wantUnmatched: []model.UnmatchedReason{model.UnmatchedExpression, model.UnmatchedExpression},
		},
		{
			name: "expressionless catch-all placed first always wins",
			rules: []model.Rule{
				treatmentRule("exp_1", "v1", "pw_1", ""),
				treatmentRule("exp_2", "v2", "pw_2", "params.steps >= 1"),
			},
			ctx:       ruleeval.Context{Params: map[string]any{"steps": 5}},
			wantMatch: "exp_1",
		},
		{
			name: "malformed expression treated as non-match",
			rules: []model.Rule{
				treatmentRule("exp_1", "v1", "pw_1", "params.steps >="),
				treatmentRule("exp_2", "v2", "pw_2", ""),
			},
			ctx:           ruleeval.Context{Params: map[string]any{"steps": 5}},
			wantMatch:     "exp_2",
			wantUnmatched: []model.UnmatchedReason{model.UnmatchedExpression},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			resolver := NewResolver(store, ruleeval.New())
			trigger := model.Trigger{Name: "test_trigger", Rules: tt.rules}

			res, unmatched := resolver.Resolve(trigger, tt.ctx)

			if tt.wantMatch == "" {
				assert.Nil(t, res)
			} else {
				require.NotNil(t, res)
				assert.Equal(t, tt.wantMatch, res.Rule.ExperimentID)
			}
			reasons := make([]model.UnmatchedReason, 0, len(unmatched))
			for _, u := range unmatched {
				reasons = append(reasons, u.Reason)
			}
			if len(tt.wantUnmatched) == 0 {
				assert.Empty(t, reasons)
			} else {
				assert.Equal(t, tt.wantUnmatched, reasons)
			}
		})
	}
}

func TestResolve_ConfirmableAssignmentOncePerGeneration(t *testing.T) {
	store := NewStore()
	resolver := NewResolver(store, ruleeval.New())
	trigger := model.Trigger{
		Name:  "onboarding_complete",
		Rules: []model.Rule{treatmentRule("exp_1", "v1", "pw_42", "params.steps >= 3")},
	}
	ctx := ruleeval.Context{Params: map[string]any{"steps": 5}}

	res, _ := resolver.Resolve(trigger, ctx)
	require.NotNil(t, res)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, "exp_1", res.Assignment.ExperimentID)
	assert.Equal(t, "v1", res.Assignment.Variant.ID)

	// Until a dispatch is attempted, re-resolution keeps producing the
	// assignment.
	res, _ = resolver.Resolve(trigger, ctx)
	require.NotNil(t, res)
	assert.NotNil(t, res.Assignment)

	store.MarkDispatched("exp_1")
	res, _ = resolver.Resolve(trigger, ctx)
	require.NotNil(t, res)
	assert.Nil(t, res.Assignment)

	// A new generation resets dispatch state.
	store.Replace(nil, nil)
	res, _ = resolver.Resolve(trigger, ctx)
	require.NotNil(t, res)
	assert.NotNil(t, res.Assignment)
}

func TestResolve_OccurrenceCap(t *testing.T) {
	store := NewStore()
	resolver := NewResolver(store, ruleeval.New())

	rule := treatmentRule("exp_1", "v1", "pw_1", "")
	rule.Occurrence = &model.Occurrence{Key: "occ_1", MaxCount: 2}
	fallback := treatmentRule("exp_2", "v2", "pw_2", "")
	trigger := model.Trigger{Name: "checkout_viewed", Rules: []model.Rule{rule, fallback}}

	res, _ := resolver.Resolve(trigger, ruleeval.Context{})
	require.NotNil(t, res)
	assert.Equal(t, "exp_1", res.Rule.ExperimentID)

	store.RecordOccurrence("occ_1")
	store.RecordOccurrence("occ_1")

	res, unmatched := resolver.Resolve(trigger, ruleeval.Context{})
	require.NotNil(t, res)
	assert.Equal(t, "exp_2", res.Rule.ExperimentID)
	require.Len(t, unmatched, 1)
	assert.Equal(t, model.UnmatchedOccurrence, unmatched[0].Reason)
}

// Property-based test: resolution always returns the first rule whose
// expression holds, never a later one.
func TestResolve_PropertyFirstMatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	store := NewStore()
	resolver := NewResolver(store, ruleeval.New())

	properties.Property("first rule with a true expression wins", prop.ForAll(
		func(thresholds []int, steps int) bool {
			rules := make([]model.Rule, len(thresholds))
			for i, th := range thresholds {
				rules[i] = treatmentRule(
					fmt.Sprintf("exp_%d", i),
					fmt.Sprintf("v%d", i),
					fmt.Sprintf("pw_%d", i),
					fmt.Sprintf("params.steps >= %d", th),
				)
			}
			trigger := model.Trigger{Name: "prop_trigger", Rules: rules}
			res, _ := resolver.Resolve(trigger, ruleeval.Context{
				Params: map[string]any{"steps": steps},
			})

			for i, th := range thresholds {
				if steps >= th {
					return res != nil && res.Rule.ExperimentID == fmt.Sprintf("exp_%d", i)
				}
			}
			return res == nil
		},
		gen.SliceOf(gen.IntRange(-100, 100)),
		gen.IntRange(-100, 100),
	))

	properties.TestingRun(t)
}

func BenchmarkResolve(b *testing.B) {
	store := NewStore()
	resolver := NewResolver(store, ruleeval.New())

	rules := make([]model.Rule, 0, 50)
	for i := 0; i < 50; i++ {
		rules = append(rules, treatmentRule(
			fmt.Sprintf("exp_%d", i),
			fmt.Sprintf("v%d", i),
			fmt.Sprintf("pw_%d", i),
			fmt.Sprintf("params.steps > %d", 1000+i),
		))
	}
	trigger := model.Trigger{Name: "bench_trigger", Rules: rules}
	ctx := ruleeval.Context{Params: map[string]any{"steps": 5}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resolver.Resolve(trigger, ctx)
	}
}
