package presentation

import (
	"time"

	"github.com/google/uuid"

	"paywall-engine/internal/identity"
	"paywall-engine/internal/model"
)

// Purpose distinguishes a real presentation attempt from a dry-run
// classification-only request.
type Purpose string

const (
	PurposePresentation Purpose = "presentation"
	PurposeGetResult    Purpose = "get_result"
)

// Info is what drives the request: either an app-emitted event, or an
// explicit paywall identifier (developer tooling) which bypasses rule
// evaluation.
type Info struct {
	Event     *model.Event
	PaywallID string
}

func (i Info) EventName() string {
	if i.Event != nil {
		return i.Event.Name
	}
	return ""
}

// Overrides are caller-supplied deviations from configured behavior.
type Overrides struct {
	ProductID                string
	PresentationStyle        string
	IgnoreSubscriptionStatus bool
}

// StatusSources reads the live flags a request observes. Two requests
// may see different values taken at different times; that is
// intentional, status can change mid-pipeline.
type StatusSources struct {
	Subscription     func() identity.SubscriptionStatus
	DebuggerAttached func() bool
	HasInternet      func() bool
}

// Request is one immutable "should we show a paywall" attempt.
type Request struct {
	ID               string
	Info             Info
	Overrides        Overrides
	Purpose          Purpose
	DebuggerSession  bool
	Status           StatusSources
	UserAttributes   map[string]any
	DeviceAttributes map[string]any
	CreatedAt        time.Time
}

// NewRequest builds a presentation request with defaulted status
// sources: unknown subscription, no debugger, internet available.
func NewRequest(info Info) Request {
	return Request{
		ID:      uuid.NewString(),
		Info:    info,
		Purpose: PurposePresentation,
		Status: StatusSources{
			Subscription:     func() identity.SubscriptionStatus { return identity.StatusUnknown },
			DebuggerAttached: func() bool { return false },
			HasInternet:      func() bool { return true },
		},
		CreatedAt: time.Now(),
	}
}
