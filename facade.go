package lifeline

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lifeline-project/lifeline/config"
)

// This file is the request/query surface used by the hosted game process.
// Every method is safe to call from any goroutine, and safe before Start.

// State returns the current lifecycle state.
func (e *Engine) State() GameState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.gameState
}

// Healthy returns the last-known health flag.
func (e *Engine) Healthy() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.healthy
}

// SetState records a lifecycle transition requested by the hosted game and
// wakes the scheduler for a prompt heartbeat. Setting the current state
// again changes nothing and signals nothing.
func (e *Engine) SetState(state GameState) {
	e.stateMu.Lock()
	previous := e.gameState
	changed := previous != state
	if changed {
		e.gameState = state
	}
	e.stateMu.Unlock()

	if !changed {
		return
	}

	e.signalHeartbeat()
	log.Debug().
		Str("previous", previous.String()).
		Str("current", state.String()).
		Msg("game state changed")

	e.bus.Emit(e.ctx, eventStateChanged(previous, state))
}

// ReadyForPlayers reports the host as StandingBy and blocks until the
// orchestrator resolves the session: true when it activated the server,
// false when it terminated it instead. The wait is unbounded.
func (e *Engine) ReadyForPlayers() bool {
	if e.State() != StateActive {
		e.SetState(StateStandingBy)
		<-e.activeCh
	}
	return e.State() == StateActive
}

// UpdateConnectedPlayers replaces the reported player roster wholesale.
func (e *Engine) UpdateConnectedPlayers(players []ConnectedPlayer) {
	roster := make([]ConnectedPlayer, len(players))
	copy(roster, players)

	e.playersMu.Lock()
	e.players = roster
	e.playersMu.Unlock()
}

// ConnectedPlayers returns a copy of the current roster.
func (e *Engine) ConnectedPlayers() []ConnectedPlayer {
	e.playersMu.Lock()
	defer e.playersMu.Unlock()

	roster := make([]ConnectedPlayer, len(e.players))
	copy(roster, e.players)
	return roster
}

// ConfigSettings returns a snapshot of the merged configuration: the static
// settings from startup overlaid with every session-config entry received
// so far.
func (e *Engine) ConfigSettings() map[string]string {
	e.configMu.Lock()
	defer e.configMu.Unlock()

	snapshot := make(map[string]string, len(e.settings))
	for k, v := range e.settings {
		snapshot[k] = v
	}
	return snapshot
}

// InitialPlayers returns the write-once roster of players the orchestrator
// expects to join, or nil when none has been announced.
func (e *Engine) InitialPlayers() []string {
	e.configMu.Lock()
	defer e.configMu.Unlock()

	if e.initialPlayers == nil {
		return nil
	}
	players := make([]string, len(e.initialPlayers))
	copy(players, e.initialPlayers)
	return players
}

// GameServerConnectionInfo returns the orchestrator-assigned address of
// this host.
func (e *Engine) GameServerConnectionInfo() config.GameServerConnectionInfo {
	return e.connectionInfo
}

// ServerID returns the orchestrator-assigned instance id.
func (e *Engine) ServerID() string {
	return e.setting(config.ServerIDKey)
}

// LogsDirectory returns the folder the orchestrator designated for logs.
func (e *Engine) LogsDirectory() string {
	return e.setting(config.LogFolderKey)
}

// SharedContentDirectory returns the folder shared across session hosts.
func (e *Engine) SharedContentDirectory() string {
	return e.setting(config.SharedContentFolderKey)
}

// CertificateDirectory returns the folder holding installed certificates.
func (e *Engine) CertificateDirectory() string {
	return e.setting(config.CertificateFolderKey)
}

func (e *Engine) setting(key string) string {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.settings[key]
}

// RegisterShutdownCallback installs the function invoked (on its own
// goroutine) when the orchestrator terminates the session. Single slot;
// the last registration wins.
func (e *Engine) RegisterShutdownCallback(cb func()) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.shutdownCb = cb
}

// RegisterHealthCallback installs the function polled immediately before
// each heartbeat to refresh the health flag. Single slot; the last
// registration wins.
func (e *Engine) RegisterHealthCallback(cb func() bool) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.healthCb = cb
}

// RegisterMaintenanceCallback installs the function invoked once per
// distinct maintenance announcement. Single slot; the last registration
// wins.
func (e *Engine) RegisterMaintenanceCallback(cb func(next time.Time)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.maintenanceCb = cb
}
