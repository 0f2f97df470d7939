package lifeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lifeline-project/lifeline/config"
	"github.com/lifeline-project/lifeline/events"
	"github.com/lifeline-project/lifeline/internal/logging"
	"github.com/lifeline-project/lifeline/protocol"
)

// HeartbeatInterval is the cadence of the background heartbeat loop. Local
// state transitions wake the loop early; the interval is the upper bound
// between exchanges.
const HeartbeatInterval = time.Second

const heartbeatPathPrefix = "/v1/sessionHosts/"

// Engine is the in-process session-host agent. It owns the shared heartbeat
// state, the background scheduler goroutine, and the outbound HTTP handle.
// Construct it with NewEngine; a zero Engine is not usable.
type Engine struct {
	heartbeatURL string
	interval     time.Duration
	client       *http.Client
	bus          *events.Bus

	connectionInfo  config.GameServerConnectionInfo
	shouldHeartbeat bool

	// stateMu guards the current game state and the last-known health flag.
	stateMu   sync.Mutex
	gameState GameState
	healthy   bool

	// playersMu guards the connected-player roster.
	playersMu sync.Mutex
	players   []ConnectedPlayer

	// configMu guards the merged settings, the write-once initial-player
	// roster, and the maintenance de-duplication cache, so a response merge
	// is atomic with respect to concurrent reads.
	configMu          sync.Mutex
	settings          map[string]string
	initialPlayers    []string
	cachedMaintenance time.Time

	// cbMu guards the single-slot callbacks. Handles are copied out under
	// the lock and invoked unlocked.
	cbMu          sync.Mutex
	shutdownCb    func()
	healthCb      func() bool
	maintenanceCb func(time.Time)

	// signalCh wakes the scheduler early; 1-buffered with non-blocking
	// sends, so re-signaling while a wake is already pending is a no-op.
	signalCh chan struct{}

	// activeCh releases ReadyForPlayers waiters. Closed exactly once, on
	// the first Active or Terminate operation.
	activeCh   chan struct{}
	activeOnce sync.Once

	running atomic.Bool

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewEngine builds an engine from a configuration source. The source is
// read exactly once. Construction fails when the heartbeat endpoint or the
// server id is missing; no engine comes up without them. A nil bus gets a
// private one.
func NewEngine(src config.Provider, bus *events.Bus) (*Engine, error) {
	settings := make(map[string]string)
	for k, v := range src.GameCertificates() {
		settings[k] = v
	}
	for k, v := range src.BuildMetadata() {
		settings[k] = v
	}
	for k, v := range src.GamePorts() {
		settings[k] = v
	}
	settings[config.HeartbeatEndpointKey] = src.HeartbeatEndpoint()
	settings[config.ServerIDKey] = src.ServerID()
	settings[config.LogFolderKey] = src.LogFolder()
	settings[config.SharedContentFolderKey] = src.SharedContentFolder()
	settings[config.CertificateFolderKey] = src.CertificateFolder()
	settings[config.TitleIDKey] = src.TitleID()
	settings[config.BuildIDKey] = src.BuildID()
	settings[config.RegionKey] = src.Region()
	settings[config.PublicIPv4AddressKey] = src.PublicIPv4Address()
	settings[config.FullyQualifiedDomainNameKey] = src.FullyQualifiedDomainName()

	endpoint := settings[config.HeartbeatEndpointKey]
	serverID := settings[config.ServerIDKey]
	if endpoint == "" || serverID == "" {
		return nil, fmt.Errorf("%w: heartbeat endpoint and server id are required",
			config.ErrMissingSetting)
	}

	if src.ShouldLog() {
		if err := logging.AttachFile(src.LogFolder()); err != nil {
			log.Warn().Err(err).Msg("failed to open agent log file")
		}
	}

	if bus == nil {
		bus = events.NewBus()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		heartbeatURL: "http://" + endpoint + heartbeatPathPrefix + serverID,
		interval:     HeartbeatInterval,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    2,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		bus:             bus,
		connectionInfo:  src.GameServerConnectionInfo(),
		shouldHeartbeat: src.ShouldHeartbeat(),
		gameState:       StateInitializing,
		healthy:         true,
		settings:        settings,
		signalCh:        make(chan struct{}, 1),
		activeCh:        make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("server_id", serverID).
		Msg("session-host agent configured")

	return e, nil
}

// Start launches the background heartbeat loop. Calling Start on an
// already-running engine is a no-op returning success.
func (e *Engine) Start() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.stopped {
		return fmt.Errorf("engine already stopped")
	}
	if e.started {
		return nil
	}
	e.started = true

	if !e.shouldHeartbeat {
		log.Info().Msg("heartbeating disabled by configuration")
		return nil
	}

	e.running.Store(true)
	e.wg.Add(1)
	go e.heartbeatLoop()

	log.Info().Dur("interval", e.interval).Msg("heartbeat loop started")
	return nil
}

// Stop halts the heartbeat loop and blocks until it has fully exited, then
// releases the transport. Safe to call multiple times and safe to call when
// Start never ran.
func (e *Engine) Stop() {
	e.lifecycleMu.Lock()
	if e.stopped {
		e.lifecycleMu.Unlock()
		return
	}
	e.stopped = true
	e.lifecycleMu.Unlock()

	e.running.Store(false)
	e.signalHeartbeat()
	e.cancel()

	// The transport must outlive the last possible in-flight call, so the
	// join comes first.
	e.wg.Wait()
	e.client.CloseIdleConnections()

	log.Info().Msg("session-host agent stopped")
}

// signalHeartbeat requests an early heartbeat. At most one wake is pending
// at a time.
func (e *Engine) signalHeartbeat() {
	select {
	case e.signalCh <- struct{}{}:
	default:
	}
}

// heartbeatLoop waits out the interval or an early-wake signal, then
// performs one exchange, until the run flag clears.
func (e *Engine) heartbeatLoop() {
	defer e.wg.Done()

	for e.running.Load() {
		select {
		case <-e.signalCh:
			log.Debug().Msg("state transition signaled an early heartbeat")
		case <-time.After(e.interval):
		}

		// Skip the exchange if this wake was the shutdown signal.
		if e.running.Load() {
			e.exchangeHeartbeat()
		}
	}

	e.bus.Emit(context.Background(), events.Event{
		Type:   events.EventAgentStopped,
		Source: "engine",
	})
}

// exchangeHeartbeat performs one request/response round trip. Every failure
// mode is a logged no-op; the next tick retries naturally.
func (e *Engine) exchangeHeartbeat() {
	body, err := protocol.EncodeHeartbeatRequest(e.buildRequest())
	if err != nil {
		log.Error().Err(err).Msg("failed to encode heartbeat request")
		return
	}

	req, err := http.NewRequestWithContext(e.ctx, http.MethodPatch, e.heartbeatURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("failed to build heartbeat request")
		return
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := e.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("heartbeat exchange failed")
		e.emitFailure(0, err.Error())
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read heartbeat response")
		e.emitFailure(resp.StatusCode, err.Error())
		return
	}

	if resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(data)).
			Msg("received non-success status from agent endpoint")
		e.emitFailure(resp.StatusCode, "non-success status")
		return
	}

	decoded, err := protocol.DecodeHeartbeatResponse(data)
	if err != nil {
		log.Warn().Err(err).Str("body", string(data)).Msg("failed to parse heartbeat response")
		e.emitFailure(resp.StatusCode, err.Error())
		return
	}

	e.applyResponse(decoded)
}

// buildRequest snapshots the shared state into a request. The health
// callback, when registered, is polled immediately before encoding; without
// one the last-known health value persists.
func (e *Engine) buildRequest() protocol.HeartbeatRequest {
	e.cbMu.Lock()
	healthCb := e.healthCb
	e.cbMu.Unlock()

	if healthCb != nil {
		h := healthCb()
		e.stateMu.Lock()
		e.healthy = h
		e.stateMu.Unlock()
	}

	e.stateMu.Lock()
	state := e.gameState
	healthy := e.healthy
	e.stateMu.Unlock()

	e.playersMu.Lock()
	ids := make([]string, len(e.players))
	for i, p := range e.players {
		ids[i] = p.PlayerID
	}
	e.playersMu.Unlock()

	return protocol.HeartbeatRequest{
		GameState: state.String(),
		Healthy:   healthy,
		PlayerIDs: ids,
	}
}

func (e *Engine) emitFailure(status int, reason string) {
	e.bus.Emit(e.ctx, events.Event{
		Type:   events.EventHeartbeatFailed,
		Source: "engine",
		Payload: events.HeartbeatFailurePayload{
			StatusCode: status,
			Reason:     reason,
		},
	})
}

// applyResponse merges a decoded response into the shared state and drives
// the lifecycle state machine. Application is all-or-nothing per section:
// extraction happens before any lock is taken, so a malformed piece never
// leaves a partial merge behind.
func (e *Engine) applyResponse(resp *protocol.HeartbeatResponse) {
	if resp.SessionConfig != nil {
		e.mergeSessionConfig(resp)
	}
	if resp.NextScheduledMaintenanceUTC != "" {
		e.noteMaintenance(resp.NextScheduledMaintenanceUTC)
	}
	if resp.Operation != "" {
		e.dispatchOperation(resp.Operation)
	}
}

// mergeSessionConfig overwrites settings with the response's string entries
// and populates the initial-player roster the first time a non-empty one
// arrives. Later rosters are ignored.
func (e *Engine) mergeSessionConfig(resp *protocol.HeartbeatResponse) {
	entries := resp.ConfigEntries()
	newInitial := resp.InitialPlayers()

	e.configMu.Lock()
	for k, v := range entries {
		e.settings[k] = v
	}
	if len(e.initialPlayers) == 0 && newInitial != nil {
		e.initialPlayers = newInitial
	}
	e.configMu.Unlock()

	if len(entries) == 0 {
		return
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.bus.Emit(e.ctx, events.Event{
		Type:    events.EventSessionConfigUpdated,
		Source:  "engine",
		Payload: events.SessionConfigPayload{Keys: keys},
	})
}

// noteMaintenance invokes the maintenance callback once per distinct
// announcement. The cache lives under the config lock so merge-and-notify
// is atomic with respect to concurrent readers.
func (e *Engine) noteMaintenance(raw string) {
	next := protocol.ParseMaintenanceTime(raw)

	e.cbMu.Lock()
	cb := e.maintenanceCb
	e.cbMu.Unlock()

	notify := false
	e.configMu.Lock()
	if cb != nil && (e.cachedMaintenance.IsZero() || !next.Equal(e.cachedMaintenance)) {
		e.cachedMaintenance = next
		notify = true
	}
	e.configMu.Unlock()

	if !notify {
		return
	}

	cb(next)
	e.bus.Emit(e.ctx, events.Event{
		Type:    events.EventMaintenanceScheduled,
		Source:  "engine",
		Payload: events.MaintenancePayload{NextMaintenanceUTC: next},
	})
}

// dispatchOperation runs the lifecycle state machine on a decoded
// operation. A transition to the current state is a no-op, so duplicate
// operations never double-signal.
func (e *Engine) dispatchOperation(name string) {
	op := protocol.ParseOperation(name)

	e.bus.Emit(e.ctx, events.Event{
		Type:   events.EventOperationReceived,
		Source: "engine",
		Payload: events.OperationPayload{
			Operation: name,
			GameState: e.State().String(),
		},
	})

	switch op {
	case protocol.OpContinue:
		// No action required.
	case protocol.OpActive:
		if e.State() != StateActive {
			e.SetState(StateActive)
			e.releaseActiveWaiters()
		}
	case protocol.OpTerminate:
		if e.State() != StateTerminating {
			e.SetState(StateTerminating)
			e.releaseActiveWaiters()
			go e.runShutdownCallback()
		}
	default:
		log.Warn().Str("operation", name).Msg("unknown operation received")
	}
}

func eventStateChanged(previous, current GameState) events.Event {
	return events.Event{
		Type:   events.EventStateChanged,
		Source: "engine",
		Payload: events.StateChangedPayload{
			Previous: previous.String(),
			Current:  current.String(),
		},
	}
}

func (e *Engine) releaseActiveWaiters() {
	e.activeOnce.Do(func() { close(e.activeCh) })
}

// runShutdownCallback executes the registered shutdown callback off the
// heartbeat goroutine, then clears the run flag so no further ticks occur.
func (e *Engine) runShutdownCallback() {
	e.cbMu.Lock()
	cb := e.shutdownCb
	e.cbMu.Unlock()

	if cb != nil {
		cb()
	}

	e.running.Store(false)
	e.signalHeartbeat()
}
