// Package events defines the asynchronous publish-subscribe bus that links
// the heartbeat engine to ancillary subsystems (journal, telemetry, ops API)
// without ever blocking the heartbeat loop on a subscriber.
package events

import "time"

// EventType identifies a class of engine event.
type EventType string

const (
	// EventStateChanged fires once per actual lifecycle transition, never
	// for a SetState call that leaves the state unchanged.
	EventStateChanged EventType = "state_changed"

	// EventOperationReceived fires for every operation decoded from a
	// heartbeat response, including unknown ones.
	EventOperationReceived EventType = "operation_received"

	// EventSessionConfigUpdated fires after session-config entries have
	// been merged into the shared settings.
	EventSessionConfigUpdated EventType = "session_config_updated"

	// EventMaintenanceScheduled fires once per distinct maintenance
	// announcement (de-duplicated against the cached notice).
	EventMaintenanceScheduled EventType = "maintenance_scheduled"

	// EventHeartbeatFailed fires when a heartbeat exchange is dropped due
	// to a transport or decode failure.
	EventHeartbeatFailed EventType = "heartbeat_failed"

	// EventAgentStopped fires when the heartbeat loop has fully exited.
	EventAgentStopped EventType = "agent_stopped"
)

// Event is a single notification published through the bus.
type Event struct {
	Type    EventType
	Source  string
	Payload any
}

// StateChangedPayload carries a lifecycle transition.
type StateChangedPayload struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// OperationPayload carries a decoded orchestrator operation.
type OperationPayload struct {
	Operation string `json:"operation"`
	GameState string `json:"game_state"`
}

// SessionConfigPayload carries the keys merged from a heartbeat response.
type SessionConfigPayload struct {
	Keys []string `json:"keys"`
}

// MaintenancePayload carries a newly announced maintenance window.
type MaintenancePayload struct {
	NextMaintenanceUTC time.Time `json:"next_maintenance_utc"`
}

// HeartbeatFailurePayload describes a dropped heartbeat exchange.
type HeartbeatFailurePayload struct {
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason"`
}
