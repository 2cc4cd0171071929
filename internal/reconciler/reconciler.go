// Package reconciler merges server-pushed dispatch events into locally
// held client view state. Views apply optimistic overlays for actions
// the client itself issued and roll them back on conflict; the pushed
// snapshot remains the authoritative resync path.
package reconciler

import (
	"encoding/json"
	"fmt"
)

// wireEvent is the decoded shape of a dispatch channel message.
type wireEvent struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

func decodeEvent(raw []byte) (*wireEvent, error) {
	var ev wireEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode dispatch event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("dispatch event without type")
	}
	return &ev, nil
}
