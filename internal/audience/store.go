package audience

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paywall-engine/internal/cache"
	"paywall-engine/internal/model"
)

// ConfigSnapshot is one immutable configuration generation. In-flight
// requests capture a snapshot once and complete against it even if the
// store is replaced underneath them.
type ConfigSnapshot struct {
	GenerationID string
	triggers     map[string]model.Trigger
	paywalls     map[string]model.Paywall
}

func (s ConfigSnapshot) Trigger(name string) (model.Trigger, bool) {
	t, ok := s.triggers[name]
	return t, ok
}

func (s ConfigSnapshot) Paywall(id string) (model.Paywall, bool) {
	p, ok := s.paywalls[id]
	return p, ok
}

func (s ConfigSnapshot) TriggerNames() []string {
	names := make([]string, 0, len(s.triggers))
	for name := range s.triggers {
		names = append(names, name)
	}
	return names
}

// Store indexes triggers and paywalls by name/id and tracks the mutable
// bookkeeping that lives alongside them: per-rule assignment dispatch
// state (reset on every generation) and per-key occurrence counts
// (user history, kept across generations).
type Store struct {
	snap cache.Snapshot[ConfigSnapshot]

	mu          sync.Mutex
	assignments map[string]model.AssignmentState
	occurrences map[string]int
}

func NewStore() *Store {
	return &Store{
		assignments: map[string]model.AssignmentState{},
		occurrences: map[string]int{},
	}
}

// Replace installs a new configuration generation wholesale. There is
// no partial merge; assignment dispatch state starts over unconfirmed.
func (s *Store) Replace(triggers []model.Trigger, paywalls []model.Paywall) string {
	gen := ConfigSnapshot{
		GenerationID: uuid.NewString(),
		triggers:     make(map[string]model.Trigger, len(triggers)),
		paywalls:     make(map[string]model.Paywall, len(paywalls)),
	}
	for _, t := range triggers {
		gen.triggers[t.Name] = t
	}
	for _, p := range paywalls {
		gen.paywalls[p.ID] = p
	}

	s.mu.Lock()
	s.assignments = map[string]model.AssignmentState{}
	s.mu.Unlock()

	s.snap.Store(gen)
	log.Info().
		Str("generation", gen.GenerationID).
		Int("triggers", len(triggers)).
		Int("paywalls", len(paywalls)).
		Msg("audience configuration replaced")
	return gen.GenerationID
}

// Snapshot returns the current generation, if one has been loaded.
func (s *Store) Snapshot() (ConfigSnapshot, bool) {
	return s.snap.Load()
}

func (s *Store) Loaded() bool {
	_, ok := s.snap.Load()
	return ok
}

// AssignmentState reports the dispatch state for an experiment's
// assignment in the current generation.
func (s *Store) AssignmentState(experimentID string) model.AssignmentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[experimentID]
}

// MarkDispatched records that a confirmation dispatch was attempted for
// the experiment. Further matches of the same rule will not produce a
// new ConfirmableAssignment this generation.
func (s *Store) MarkDispatched(experimentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[experimentID] = model.AssignmentDispatched
}

// SeedDispatched marks previously acknowledged assignments as already
// dispatched, so a warm start does not re-confirm them.
func (s *Store) SeedDispatched(experimentIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range experimentIDs {
		s.assignments[id] = model.AssignmentDispatched
	}
}

func (s *Store) OccurrenceCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occurrences[key]
}

// RecordOccurrence increments the count for an occurrence key. Called
// when a presentation actually happens, not on every match.
func (s *Store) RecordOccurrence(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occurrences[key]++
}
