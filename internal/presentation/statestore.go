package presentation

import (
	"sync"

	"paywall-engine/internal/model"
)

// Attempt is the recorded {request, outcome} pair.
type Attempt struct {
	Request Request
	State   State
}

// StateStore tracks the single in-flight / most recent presentation
// attempt. Its check-and-reserve is the one serialization point that
// keeps two concurrent requests from both reaching Presented. Single
// writer (the pipeline), multiple readers.
type StateStore struct {
	mu                sync.Mutex
	presentingSurface string
	presentingEvent   string
	presentingInfo    *model.PaywallInfo
	last              *Attempt
}

func NewStateStore() *StateStore {
	return &StateStore{}
}

// BeginPresenting atomically re-checks that no paywall is live and
// reserves the surface for this request. The check must happen here, at
// the point of actually taking the surface, not only at request start:
// this is what closes the race between two concurrently fired triggers.
func (s *StateStore) BeginPresenting(req Request, surfaceID string, info model.PaywallInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presentingSurface != "" {
		return ErrPaywallAlreadyPresented
	}
	s.presentingSurface = surfaceID
	s.presentingEvent = req.Info.EventName()
	s.presentingInfo = &info
	return nil
}

// EndPresenting releases the surface reservation. A stale surface id is
// ignored.
func (s *StateStore) EndPresenting(surfaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presentingSurface != surfaceID {
		return
	}
	s.presentingSurface = ""
	s.presentingEvent = ""
	s.presentingInfo = nil
}

// RecordAttempt overwrites the last {request, outcome} pair.
func (s *StateStore) RecordAttempt(req Request, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &Attempt{Request: req, State: state}
}

// CurrentlyPresentingSurface returns the live surface id, if any.
func (s *StateStore) CurrentlyPresentingSurface() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presentingSurface, s.presentingSurface != ""
}

// PresentedInfoForEvent is the fast-path lookup: when the same event is
// retriggered while its paywall is still up and fully presented, the
// pipeline re-emits the displayed paywall's info instead of re-running.
func (s *StateStore) PresentedInfoForEvent(eventName string) (model.PaywallInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presentingSurface == "" || s.presentingInfo == nil {
		return model.PaywallInfo{}, false
	}
	if eventName == "" || s.presentingEvent != eventName {
		return model.PaywallInfo{}, false
	}
	if s.last == nil || s.last.State.Kind != StatePresented {
		return model.PaywallInfo{}, false
	}
	return *s.presentingInfo, true
}

// LastAttempt returns the most recent recorded attempt.
func (s *StateStore) LastAttempt() (Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Attempt{}, false
	}
	return *s.last, true
}

// Reset clears everything. Called on sign-out / session teardown.
func (s *StateStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presentingSurface = ""
	s.presentingEvent = ""
	s.presentingInfo = nil
	s.last = nil
}
