package internal

import (
	"encoding/json"
	"time"
)

// RiverEventKind is the River job kind used for published events.
const RiverEventKind = "hookswitch.event"

// Event is the envelope published for every dispatched webhook.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	RequestID string `json:"request_id,omitempty"`
	// Data is the flattened payload rules are evaluated against.
	Data       map[string]interface{} `json:"data"`
	RawPayload json.RawMessage        `json:"raw_payload"`
	ReceivedAt time.Time              `json:"received_at"`
}
