// Package lifeline embeds a session-host agent inside a game server process.
// The agent reports the server's lifecycle state to its orchestrator over a
// periodic HTTP heartbeat and applies the operations the orchestrator sends
// back: session configuration, maintenance notices, activation, termination.
package lifeline

// GameState is the lifecycle state of the hosted game server. Transitions
// move forward only: Initializing -> StandingBy -> Active -> Terminating.
// Re-entry into StandingBy after Active never happens; the orchestrator
// tears the host down instead.
type GameState int

const (
	StateInvalid GameState = iota
	StateInitializing
	StateStandingBy
	StateActive
	StateTerminating
)

// gameStateNames maps states to the names reported on the wire.
var gameStateNames = map[GameState]string{
	StateInvalid:      "Invalid",
	StateInitializing: "Initializing",
	StateStandingBy:   "StandingBy",
	StateActive:       "Active",
	StateTerminating:  "Terminating",
}

// String returns the wire name of the state.
func (s GameState) String() string {
	if name, ok := gameStateNames[s]; ok {
		return name
	}
	return "Invalid"
}

// MarshalJSON serializes GameState as its wire name.
func (s GameState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ConnectedPlayer identifies one player currently connected to the hosted
// game. The roster reported to the orchestrator is always replaced
// wholesale, never patched.
type ConnectedPlayer struct {
	PlayerID string `json:"player_id"`
}
