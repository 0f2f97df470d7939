// Package protocol implements the heartbeat wire codec exchanged between a
// session host and its orchestrating agent: the outbound request carrying
// lifecycle state, health, and the connected-player roster, and the inbound
// response carrying session configuration, maintenance notices, and the next
// operation to perform.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaintenanceTimeLayout is the only accepted format for the
// nextScheduledMaintenanceUtc response field (ISO 8601 UTC, second
// granularity).
const MaintenanceTimeLayout = "2006-01-02T15:04:05Z"

// HeartbeatRequest is a snapshot of the local session-host state reported on
// every heartbeat tick.
type HeartbeatRequest struct {
	GameState string
	Healthy   bool
	PlayerIDs []string
}

type wirePlayer struct {
	PlayerID string `json:"PlayerId"`
}

type wireRequest struct {
	CurrentGameState  string       `json:"CurrentGameState"`
	CurrentGameHealth string       `json:"CurrentGameHealth"`
	CurrentPlayers    []wirePlayer `json:"CurrentPlayers"`
}

// EncodeHeartbeatRequest serializes a request snapshot to its JSON wire
// form. Encoding is deterministic for a given snapshot.
func EncodeHeartbeatRequest(req HeartbeatRequest) ([]byte, error) {
	health := "Unhealthy"
	if req.Healthy {
		health = "Healthy"
	}

	players := make([]wirePlayer, 0, len(req.PlayerIDs))
	for _, id := range req.PlayerIDs {
		players = append(players, wirePlayer{PlayerID: id})
	}

	data, err := json.Marshal(wireRequest{
		CurrentGameState:  req.GameState,
		CurrentGameHealth: health,
		CurrentPlayers:    players,
	})
	if err != nil {
		return nil, fmt.Errorf("encode heartbeat request: %w", err)
	}
	return data, nil
}

// HeartbeatResponse is the decoded orchestrator reply. Every field is
// optional; a zero value means the orchestrator sent no update for it.
type HeartbeatResponse struct {
	SessionConfig               map[string]any `json:"sessionConfig"`
	NextScheduledMaintenanceUTC string         `json:"nextScheduledMaintenanceUtc"`
	Operation                   string         `json:"operation"`
}

// DecodeHeartbeatResponse parses a response body. Unknown top-level fields
// are ignored for forward compatibility. A malformed body yields an error
// and no partial result.
func DecodeHeartbeatResponse(body []byte) (*HeartbeatResponse, error) {
	var resp HeartbeatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode heartbeat response: %w", err)
	}
	return &resp, nil
}

// ConfigEntries extracts the string-valued session configuration entries,
// including those of the nested metadata sub-object. Non-string values are
// skipped; metadata entries land in the same flat namespace as the
// session-config entries, mirroring how they are merged into the host's
// settings.
func (r *HeartbeatResponse) ConfigEntries() map[string]string {
	if r.SessionConfig == nil {
		return nil
	}

	entries := make(map[string]string)
	for key, value := range r.SessionConfig {
		if s, ok := value.(string); ok {
			entries[key] = s
		}
	}
	if meta, ok := r.SessionConfig["metadata"].(map[string]any); ok {
		for key, value := range meta {
			if s, ok := value.(string); ok {
				entries[key] = s
			}
		}
	}
	return entries
}

// InitialPlayers extracts the initial-player roster carried inside the
// session configuration, preserving order. Returns nil when the field is
// absent or empty.
func (r *HeartbeatResponse) InitialPlayers() []string {
	raw, ok := r.SessionConfig["initialPlayers"].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}

	players := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			players = append(players, s)
		}
	}
	if len(players) == 0 {
		return nil
	}
	return players
}

// ParseMaintenanceTime parses a maintenance timestamp in
// MaintenanceTimeLayout. A value that fails to parse maps to the Unix epoch
// rather than an error, so a garbled announcement never aborts response
// processing yet still compares unequal to any real maintenance time.
func ParseMaintenanceTime(value string) time.Time {
	t, err := time.Parse(MaintenanceTimeLayout, value)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}
