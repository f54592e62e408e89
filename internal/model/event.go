package model

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one app-emitted occurrence that may fire a trigger.
// Immutable once created.
type Event struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewEvent(name string, params map[string]any) Event {
	return Event{
		Name:       name,
		Parameters: sanitizeParams(name, params),
		CreatedAt:  time.Now(),
	}
}

// sanitizeParams keeps JSON-safe scalar values only. Arrays, objects and
// anything that won't serialize are dropped with a diagnostic.
func sanitizeParams(event string, params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if !isScalar(v) {
			log.Debug().
				Str("event", event).
				Str("param", k).
				Msg("dropping non-scalar event parameter")
			continue
		}
		out[k] = v
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}
