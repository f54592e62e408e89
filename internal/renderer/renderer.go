package renderer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"paywall-engine/internal/model"
)

var (
	// ErrNoSurface means no host surface is available to present on.
	ErrNoSurface = errors.New("no presentation surface available")
	// ErrAlreadyPresented is reported by a renderer that is already
	// showing a paywall on the requested surface.
	ErrAlreadyPresented = errors.New("paywall already presented")
)

// Surface is a render target handed out by the host.
type Surface struct {
	ID string
}

// Renderer is the presentation collaborator. Rendering internals are
// out of scope; the pipeline only needs acquire/present/dismiss and a
// busy check.
type Renderer interface {
	AcquireSurface(ctx context.Context) (Surface, error)
	Present(ctx context.Context, surface Surface, paywall model.PaywallInfo) error
	Dismiss(ctx context.Context, surfaceID string) error
	IsSurfaceBusy() bool
}

// Headless is a renderer with no visual output, used by the service and
// in tests. It tracks a single busy surface.
type Headless struct {
	mu        sync.Mutex
	available bool
	busy      string
}

func NewHeadless() *Headless {
	return &Headless{available: true}
}

// SetAvailable toggles whether surfaces can be acquired at all.
func (h *Headless) SetAvailable(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = ok
}

func (h *Headless) AcquireSurface(_ context.Context) (Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available {
		return Surface{}, ErrNoSurface
	}
	return Surface{ID: uuid.NewString()}, nil
}

func (h *Headless) Present(_ context.Context, surface Surface, _ model.PaywallInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy != "" {
		return ErrAlreadyPresented
	}
	h.busy = surface.ID
	return nil
}

func (h *Headless) Dismiss(_ context.Context, surfaceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy == surfaceID {
		h.busy = ""
	}
	return nil
}

func (h *Headless) IsSurfaceBusy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.busy != ""
}
