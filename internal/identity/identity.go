package identity

import (
	"context"
	"sync"
)

// SubscriptionStatus is the tri-state subscription signal. It may
// change at any time; readers take the value at the moment they ask.
type SubscriptionStatus string

const (
	StatusUnknown  SubscriptionStatus = "UNKNOWN"
	StatusActive   SubscriptionStatus = "ACTIVE"
	StatusInactive SubscriptionStatus = "INACTIVE"
)

// Manager holds the two asynchronously-resolving identity signals:
// "identity established" (monotonic, latches true once) and the
// subscription status. Waits are channel-based suspensions, never
// busy loops.
type Manager struct {
	mu          sync.Mutex
	established bool
	identityCh  chan struct{}
	status      SubscriptionStatus
	statusCh    chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		identityCh: make(chan struct{}),
		status:     StatusUnknown,
		statusCh:   make(chan struct{}),
	}
}

// SetEstablished latches the identity signal. Idempotent.
func (m *Manager) SetEstablished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.established {
		return
	}
	m.established = true
	close(m.identityCh)
}

func (m *Manager) Established() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.established
}

// WaitEstablished suspends until identity is established or the context
// is done.
func (m *Manager) WaitEstablished(ctx context.Context) error {
	m.mu.Lock()
	ch := m.identityCh
	m.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSubscriptionStatus publishes a new status and wakes any waiters.
func (m *Manager) SetSubscriptionStatus(status SubscriptionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == m.status {
		return
	}
	m.status = status
	close(m.statusCh)
	m.statusCh = make(chan struct{})
}

func (m *Manager) SubscriptionStatus() SubscriptionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// WaitKnownStatus suspends until the subscription status resolves to a
// non-unknown value or the context is done.
func (m *Manager) WaitKnownStatus(ctx context.Context) (SubscriptionStatus, error) {
	for {
		m.mu.Lock()
		status := m.status
		ch := m.statusCh
		m.mu.Unlock()
		if status != StatusUnknown {
			return status, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return StatusUnknown, ctx.Err()
		}
	}
}

// Reset reverts both signals, used on sign-out.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.established {
		m.established = false
		m.identityCh = make(chan struct{})
	}
	if m.status != StatusUnknown {
		m.status = StatusUnknown
		close(m.statusCh)
		m.statusCh = make(chan struct{})
	}
}
