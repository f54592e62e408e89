package audience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paywall-engine/internal/model"
)

func TestStore_ReplaceResetsAssignments(t *testing.T) {
	store := NewStore()
	store.MarkDispatched("exp_1")
	assert.Equal(t, model.AssignmentDispatched, store.AssignmentState("exp_1"))

	store.Replace(nil, nil)
	assert.Equal(t, model.AssignmentUnconfirmed, store.AssignmentState("exp_1"))
}

func TestStore_OccurrencesSurviveReplace(t *testing.T) {
	store := NewStore()
	store.RecordOccurrence("occ_1")
	store.RecordOccurrence("occ_1")
	store.RecordOccurrence("") // no-op

	store.Replace(nil, nil)
	assert.Equal(t, 2, store.OccurrenceCount("occ_1"))
}

func TestStore_SeedDispatched(t *testing.T) {
	store := NewStore()
	store.SeedDispatched([]string{"exp_1", "exp_2"})

	assert.Equal(t, model.AssignmentDispatched, store.AssignmentState("exp_1"))
	assert.Equal(t, model.AssignmentDispatched, store.AssignmentState("exp_2"))
	assert.Equal(t, model.AssignmentUnconfirmed, store.AssignmentState("exp_3"))
}

func TestStore_SnapshotPinning(t *testing.T) {
	store := NewStore()
	gen1 := store.Replace([]model.Trigger{{Name: "old_trigger"}}, []model.Paywall{{ID: "pw_1"}})

	snap, ok := store.Snapshot()
	require.True(t, ok)
	assert.Equal(t, gen1, snap.GenerationID)

	// An in-flight request holding snap keeps seeing the old generation
	// after a wholesale replacement.
	gen2 := store.Replace([]model.Trigger{{Name: "new_trigger"}}, nil)
	assert.NotEqual(t, gen1, gen2)

	_, ok = snap.Trigger("old_trigger")
	assert.True(t, ok)
	_, ok = snap.Trigger("new_trigger")
	assert.False(t, ok)
	_, ok = snap.Paywall("pw_1")
	assert.True(t, ok)

	current, ok := store.Snapshot()
	require.True(t, ok)
	_, ok = current.Trigger("new_trigger")
	assert.True(t, ok)
}

func TestStore_NotLoaded(t *testing.T) {
	store := NewStore()
	assert.False(t, store.Loaded())
	_, ok := store.Snapshot()
	assert.False(t, ok)
}
