package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paywall-engine/internal/model"
	"paywall-engine/internal/ruleeval"
)

func TestClassify_Scenarios(t *testing.T) {
	treatment := treatmentRule("exp_1", "v1", "pw_42", "")
	holdout := holdoutRule("exp_2", "v2", "")
	assignment := &model.ConfirmableAssignment{ExperimentID: "exp_1", Variant: treatment.Variant}

	tests := []struct {
		name          string
		res           *Resolution
		triggerExists bool
		wantKind      model.TriggerResultKind
		wantExpID     string
		wantConfirm   bool
	}{
		{
			name:          "unknown trigger",
			res:           nil,
			triggerExists: false,
			wantKind:      model.ResultEventNotFound,
		},
		{
			name:          "known trigger, no match",
			res:           nil,
			triggerExists: true,
			wantKind:      model.ResultNoRuleMatch,
		},
		{
			name:          "treatment match",
			res:           &Resolution{Rule: treatment, Assignment: assignment},
			triggerExists: true,
			wantKind:      model.ResultPaywall,
			wantExpID:     "exp_1",
			wantConfirm:   true,
		},
		{
			name:          "holdout match",
			res:           &Resolution{Rule: holdout},
			triggerExists: true,
			wantKind:      model.ResultHoldout,
			wantExpID:     "exp_2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, confirmable := Classify(tt.res, nil, tt.triggerExists)

			assert.Equal(t, tt.wantKind, result.Kind)
			if tt.wantExpID != "" {
				require.NotNil(t, result.Experiment)
				assert.Equal(t, tt.wantExpID, result.Experiment.ID)
			}
			if tt.wantConfirm {
				assert.NotNil(t, confirmable)
			} else {
				assert.Nil(t, confirmable)
			}
		})
	}
}

func TestService_Evaluate(t *testing.T) {
	store := NewStore()
	svc := NewService(store, ruleeval.New())
	store.Replace([]model.Trigger{
		{
			Name: "onboarding_complete",
			Rules: []model.Rule{
				treatmentRule("exp_1", "v1", "paywall_42", "params.steps >= 3"),
			},
		},
	}, nil)

	snap, ok := store.Snapshot()
	require.True(t, ok)

	tests := []struct {
		name     string
		event    string
		params   map[string]any
		wantKind model.TriggerResultKind
	}{
		{
			name:     "matching event yields paywall",
			event:    "onboarding_complete",
			params:   map[string]any{"steps": 5},
			wantKind: model.ResultPaywall,
		},
		{
			name:     "non-matching params yield no rule match",
			event:    "onboarding_complete",
			params:   map[string]any{"steps": 1},
			wantKind: model.ResultNoRuleMatch,
		},
		{
			name:     "unknown trigger yields event not found",
			event:    "frobnicate",
			wantKind: model.ResultEventNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := model.NewEvent(tt.event, tt.params)
			result, _ := svc.Evaluate(snap, event, ruleeval.Context{Params: event.Parameters})
			assert.Equal(t, tt.wantKind, result.Kind)

			if tt.wantKind == model.ResultPaywall {
				require.NotNil(t, result.Experiment)
				assert.Equal(t, "exp_1", result.Experiment.ID)
				assert.Equal(t, "v1", result.Experiment.Variant.ID)
				assert.Equal(t, "paywall_42", result.Experiment.Variant.PaywallID)
			}
		})
	}
}

func TestService_EvaluateCurrent_NoConfig(t *testing.T) {
	svc := NewService(NewStore(), ruleeval.New())

	result, confirmable := svc.EvaluateCurrent(model.NewEvent("anything", nil), ruleeval.Context{})

	assert.Equal(t, model.ResultError, result.Kind)
	assert.ErrorIs(t, result.Err, ErrConfigUnavailable)
	assert.Nil(t, confirmable)
}
