package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"paywall-engine/internal/model"
	"paywall-engine/internal/storage"
)

// Transport sends one assignment confirmation to the backend. It must
// be idempotent server-side: confirming the same pair twice is
// harmless.
type Transport interface {
	Confirm(ctx context.Context, experimentID, variantID string) error
}

// LogTransport only logs confirmations. Used when no backend is wired.
type LogTransport struct{}

func (LogTransport) Confirm(_ context.Context, experimentID, variantID string) error {
	log.Info().
		Str("experiment_id", experimentID).
		Str("variant_id", variantID).
		Msg("assignment confirmed")
	return nil
}

// Dispatcher performs fire-and-forget assignment confirmation. A
// dispatch failure is logged and dropped: confirmation is
// eventually-consistent and a dropped one is corrected on a future
// evaluation. Acknowledged pairs are persisted so a warm start does
// not re-dispatch them.
type Dispatcher struct {
	transport Transport
	kv        storage.KV
	timeout   time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	acked    map[string]string // experimentID -> variantID
}

func NewDispatcher(transport Transport, kv storage.KV) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		kv:        kv,
		timeout:   10 * time.Second,
		inflight:  map[string]struct{}{},
		acked:     map[string]string{},
	}
}

// Dispatch sends the confirmation on a background goroutine and returns
// immediately. Duplicate dispatches of a pair already in flight or
// already acknowledged are dropped.
func (d *Dispatcher) Dispatch(a model.ConfirmableAssignment) {
	d.mu.Lock()
	if _, ok := d.inflight[a.ExperimentID]; ok {
		d.mu.Unlock()
		return
	}
	if v, ok := d.acked[a.ExperimentID]; ok && v == a.Variant.ID {
		d.mu.Unlock()
		return
	}
	d.inflight[a.ExperimentID] = struct{}{}
	d.mu.Unlock()

	go d.send(a)
}

func (d *Dispatcher) send(a model.ConfirmableAssignment) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.transport.Confirm(ctx, a.ExperimentID, a.Variant.ID)

	d.mu.Lock()
	delete(d.inflight, a.ExperimentID)
	if err == nil {
		d.acked[a.ExperimentID] = a.Variant.ID
	}
	snapshot := make(map[string]string, len(d.acked))
	for k, v := range d.acked {
		snapshot[k] = v
	}
	d.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).
			Str("experiment_id", a.ExperimentID).
			Str("variant_id", a.Variant.ID).
			Msg("assignment confirmation dispatch failed")
		return
	}
	d.persist(ctx, snapshot)
}

func (d *Dispatcher) persist(ctx context.Context, acked map[string]string) {
	if d.kv == nil {
		return
	}
	data, err := json.Marshal(acked)
	if err != nil {
		log.Error().Err(err).Msg("marshal acknowledged assignments")
		return
	}
	if err := d.kv.Set(ctx, storage.KeyConfirmedAssignments, data); err != nil {
		log.Warn().Err(err).Msg("persist acknowledged assignments")
	}
}

// Acknowledged loads the persisted acknowledged-assignment set. The
// returned experiment ids seed the audience store on warm start.
func (d *Dispatcher) Acknowledged(ctx context.Context) ([]string, error) {
	if d.kv == nil {
		return nil, nil
	}
	data, err := d.kv.Get(ctx, storage.KeyConfirmedAssignments)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var acked map[string]string
	if err := json.Unmarshal(data, &acked); err != nil {
		return nil, err
	}
	d.mu.Lock()
	ids := make([]string, 0, len(acked))
	for id, variant := range acked {
		d.acked[id] = variant
		ids = append(ids, id)
	}
	d.mu.Unlock()
	return ids, nil
}
