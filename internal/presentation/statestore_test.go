package presentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paywall-engine/internal/model"
)

func presentedAttempt(store *StateStore, eventName, surfaceID, paywallID string) Request {
	event := model.NewEvent(eventName, nil)
	req := NewRequest(Info{Event: &event})
	info := model.PaywallInfo{PaywallID: paywallID}
	_ = store.BeginPresenting(req, surfaceID, info)
	store.RecordAttempt(req, Presented(info))
	return req
}

func TestStateStore_BeginPresentingIsExclusive(t *testing.T) {
	store := NewStateStore()
	event := model.NewEvent("evt", nil)
	req := NewRequest(Info{Event: &event})
	info := model.PaywallInfo{PaywallID: "pw_1"}

	require.NoError(t, store.BeginPresenting(req, "surface_1", info))

	err := store.BeginPresenting(req, "surface_2", info)
	assert.ErrorIs(t, err, ErrPaywallAlreadyPresented)

	surfaceID, ok := store.CurrentlyPresentingSurface()
	require.True(t, ok)
	assert.Equal(t, "surface_1", surfaceID)
}

func TestStateStore_EndPresentingIgnoresStaleSurface(t *testing.T) {
	store := NewStateStore()
	presentedAttempt(store, "evt", "surface_1", "pw_1")

	store.EndPresenting("surface_other")
	_, ok := store.CurrentlyPresentingSurface()
	assert.True(t, ok)

	store.EndPresenting("surface_1")
	_, ok = store.CurrentlyPresentingSurface()
	assert.False(t, ok)
}

func TestStateStore_FastPathConditions(t *testing.T) {
	t.Run("hit when same event fully presented", func(t *testing.T) {
		store := NewStateStore()
		presentedAttempt(store, "evt", "surface_1", "pw_1")

		info, ok := store.PresentedInfoForEvent("evt")
		require.True(t, ok)
		assert.Equal(t, "pw_1", info.PaywallID)
	})

	t.Run("miss for different event", func(t *testing.T) {
		store := NewStateStore()
		presentedAttempt(store, "evt", "surface_1", "pw_1")

		_, ok := store.PresentedInfoForEvent("other")
		assert.False(t, ok)
	})

	t.Run("miss for empty event name", func(t *testing.T) {
		store := NewStateStore()
		presentedAttempt(store, "evt", "surface_1", "pw_1")

		_, ok := store.PresentedInfoForEvent("")
		assert.False(t, ok)
	})

	t.Run("miss when reserved but not yet presented", func(t *testing.T) {
		store := NewStateStore()
		event := model.NewEvent("evt", nil)
		req := NewRequest(Info{Event: &event})
		require.NoError(t, store.BeginPresenting(req, "surface_1", model.PaywallInfo{PaywallID: "pw_1"}))

		_, ok := store.PresentedInfoForEvent("evt")
		assert.False(t, ok)
	})

	t.Run("miss after dismissal", func(t *testing.T) {
		store := NewStateStore()
		presentedAttempt(store, "evt", "surface_1", "pw_1")
		store.EndPresenting("surface_1")

		_, ok := store.PresentedInfoForEvent("evt")
		assert.False(t, ok)
	})
}

func TestStateStore_Reset(t *testing.T) {
	store := NewStateStore()
	presentedAttempt(store, "evt", "surface_1", "pw_1")

	store.Reset()

	_, ok := store.CurrentlyPresentingSurface()
	assert.False(t, ok)
	_, ok = store.LastAttempt()
	assert.False(t, ok)
	_, ok = store.PresentedInfoForEvent("evt")
	assert.False(t, ok)
}
