package api

import (
	"encoding/json"
	"net/http"

	"paywall-engine/internal/identity"
	"paywall-engine/internal/model"
	"paywall-engine/internal/presentation"
)

// Handler exposes the engine's three operations over HTTP: dry-run
// evaluation, presentation, and dismissal.
type Handler struct {
	Pipeline *presentation.Pipeline
	Identity *identity.Manager
}

func NewHandler(pipeline *presentation.Pipeline, id *identity.Manager) *Handler {
	return &Handler{Pipeline: pipeline, Identity: id}
}

type evaluateRequest struct {
	Event  string         `json:"event"`
	Params map[string]any `json:"params,omitempty"`
	User   map[string]any `json:"user,omitempty"`
	Device map[string]any `json:"device,omitempty"`
}

type presentRequest struct {
	evaluateRequest
	PaywallID string `json:"paywall_id,omitempty"`

	SubscriptionStatus string `json:"subscription_status,omitempty"`
	DebuggerAttached   bool   `json:"debugger_attached,omitempty"`
	DebuggerSession    bool   `json:"debugger_session,omitempty"`
	HasInternet        *bool  `json:"has_internet,omitempty"`

	Overrides struct {
		ProductID                string `json:"product_id,omitempty"`
		PresentationStyle        string `json:"presentation_style,omitempty"`
		IgnoreSubscriptionStatus bool   `json:"ignore_subscription_status,omitempty"`
	} `json:"overrides"`
}

type dismissRequest struct {
	Result string `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}

	event := model.NewEvent(req.Event, req.Params)
	result := h.Pipeline.Evaluate(r.Context(), event, req.User, req.Device)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Present(w http.ResponseWriter, r *http.Request) {
	var req presentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == "" && req.PaywallID == "" {
		writeError(w, http.StatusBadRequest, "event or paywall_id is required")
		return
	}

	// An authenticated API call establishes identity; the payload's
	// subscription status feeds the process-level signal.
	h.Identity.SetEstablished()
	if req.SubscriptionStatus != "" {
		h.Identity.SetSubscriptionStatus(identity.SubscriptionStatus(req.SubscriptionStatus))
	}

	info := presentation.Info{PaywallID: req.PaywallID}
	if req.Event != "" {
		event := model.NewEvent(req.Event, req.Params)
		info.Event = &event
	}

	preq := presentation.NewRequest(info)
	preq.UserAttributes = req.User
	preq.DeviceAttributes = req.Device
	preq.DebuggerSession = req.DebuggerSession
	preq.Overrides = presentation.Overrides{
		ProductID:                req.Overrides.ProductID,
		PresentationStyle:        req.Overrides.PresentationStyle,
		IgnoreSubscriptionStatus: req.Overrides.IgnoreSubscriptionStatus,
	}
	preq.Status = presentation.StatusSources{
		Subscription:     h.Identity.SubscriptionStatus,
		DebuggerAttached: func() bool { return req.DebuggerAttached },
		HasInternet: func() bool {
			if req.HasInternet == nil {
				return true
			}
			return *req.HasInternet
		},
	}

	select {
	case state, ok := <-h.Pipeline.Present(r.Context(), preq):
		if !ok {
			writeError(w, http.StatusInternalServerError, "pipeline closed without a terminal state")
			return
		}
		writeJSON(w, http.StatusOK, state)
	case <-r.Context().Done():
		writeError(w, http.StatusGatewayTimeout, "request cancelled")
	}
}

func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Pipeline.DismissCurrent(r.Context(), req.Result); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
