package lifeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeline-project/lifeline/config"
)

// stubOrchestrator is a scripted agent endpoint. Every heartbeat gets the
// current response body; the test flips the body as the scenario advances.
type stubOrchestrator struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []capturedRequest
	hits     atomic.Int64
}

type capturedRequest struct {
	method      string
	path        string
	contentType string
	body        map[string]any
}

func newStubOrchestrator() *stubOrchestrator {
	return &stubOrchestrator{status: http.StatusOK, body: `{}`}
}

func (o *stubOrchestrator) respond(status int, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
	o.body = body
}

func (o *stubOrchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var decoded map[string]any
	_ = json.NewDecoder(r.Body).Decode(&decoded)

	o.mu.Lock()
	o.requests = append(o.requests, capturedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        decoded,
	})
	status, body := o.status, o.body
	o.mu.Unlock()
	o.hits.Add(1)

	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (o *stubOrchestrator) request(i int) capturedRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[i]
}

func newTestEngine(t *testing.T, orch *stubOrchestrator) *Engine {
	t.Helper()

	srv := httptest.NewServer(orch)
	t.Cleanup(srv.Close)

	e, err := NewEngine(&config.Static{
		Endpoint:            srv.Listener.Addr().String(),
		ID:                  "host-1",
		LogDir:              t.TempDir(),
		HeartbeatingEnabled: true,
	}, nil)
	require.NoError(t, err)

	e.interval = 5 * time.Millisecond
	t.Cleanup(e.Stop)
	return e
}

func waitForHits(t *testing.T, orch *stubOrchestrator, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return orch.hits.Load() >= n
	}, 2*time.Second, time.Millisecond)
}

func TestHeartbeatWireFormat(t *testing.T) {
	orch := newStubOrchestrator()
	e := newTestEngine(t, orch)
	require.NoError(t, e.Start())

	waitForHits(t, orch, 1)

	req := orch.request(0)
	assert.Equal(t, http.MethodPatch, req.method)
	assert.Equal(t, "/v1/sessionHosts/host-1", req.path)
	assert.Equal(t, "application/json; charset=utf-8", req.contentType)

	assert.Equal(t, "Initializing", req.body["CurrentGameState"])
	assert.Equal(t, "Healthy", req.body["CurrentGameHealth"], "no health callback defaults to healthy")
	assert.Equal(t, []any{}, req.body["CurrentPlayers"])
}

func TestHeartbeatReportsRosterAndHealth(t *testing.T) {
	orch := newStubOrchestrator()
	e := newTestEngine(t, orch)
	e.RegisterHealthCallback(func() bool { return false })
	e.UpdateConnectedPlayers([]ConnectedPlayer{{PlayerID: "p1"}, {PlayerID: "p2"}})
	require.NoError(t, e.Start())

	waitForHits(t, orch, 1)

	req := orch.request(0)
	assert.Equal(t, "Unhealthy", req.body["CurrentGameHealth"])
	assert.Equal(t, []any{
		map[string]any{"PlayerId": "p1"},
		map[string]any{"PlayerId": "p2"},
	}, req.body["CurrentPlayers"])
	assert.False(t, e.Healthy())
}

func TestActivateReleasesReadyForPlayers(t *testing.T) {
	orch := newStubOrchestrator()
	orch.respond(http.StatusOK, `{"operation": "Active"}`)
	e := newTestEngine(t, orch)

	ready := make(chan bool, 1)
	go func() { ready <- e.ReadyForPlayers() }()
	require.Eventually(t, func() bool {
		return e.State() == StateStandingBy
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, e.Start())

	select {
	case got := <-ready:
		assert.True(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadyForPlayers never unblocked")
	}
	assert.Equal(t, StateActive, e.State())

	// A second waiter passes straight through once the session is resolved.
	assert.True(t, e.ReadyForPlayers())
}

func TestTerminateRunsShutdownOnceAndStopsHeartbeats(t *testing.T) {
	orch := newStubOrchestrator()
	orch.respond(http.StatusOK, `{"operation": "Terminate"}`)

	e := newTestEngine(t, orch)
	var shutdowns atomic.Int32
	e.RegisterShutdownCallback(func() { shutdowns.Add(1) })

	ready := make(chan bool, 1)
	go func() { ready <- e.ReadyForPlayers() }()
	require.Eventually(t, func() bool {
		return e.State() == StateStandingBy
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, e.Start())

	select {
	case got := <-ready:
		assert.False(t, got, "termination resolves the session without activation")
	case <-time.After(2 * time.Second):
		t.Fatal("ReadyForPlayers never unblocked")
	}

	assert.Equal(t, StateTerminating, e.State())
	require.Eventually(t, func() bool {
		return shutdowns.Load() == 1
	}, 2*time.Second, time.Millisecond)

	// The loop winds down after the callback; the tick count goes quiet.
	time.Sleep(30 * time.Millisecond)
	settled := orch.hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, orch.hits.Load())
	assert.Equal(t, int32(1), shutdowns.Load())
}

func TestSessionConfigMergeAndInitialPlayersWriteOnce(t *testing.T) {
	orch := newStubOrchestrator()
	orch.respond(http.StatusOK, `{
		"sessionConfig": {
			"sessionId": "s-1",
			"metadata": {"mode": "ranked"},
			"initialPlayers": ["p1", "p2"]
		}
	}`)
	e := newTestEngine(t, orch)
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool {
		return e.ConfigSettings()["sessionId"] == "s-1"
	}, 2*time.Second, time.Millisecond)

	settings := e.ConfigSettings()
	assert.Equal(t, "ranked", settings["mode"], "metadata lands in the same namespace")
	assert.Equal(t, "host-1", settings[config.ServerIDKey], "startup settings survive the merge")
	assert.Equal(t, []string{"p1", "p2"}, e.InitialPlayers())

	// A later roster never replaces the first announcement; other entries
	// still merge.
	orch.respond(http.StatusOK, `{
		"sessionConfig": {
			"sessionId": "s-2",
			"initialPlayers": ["zz"]
		}
	}`)
	require.Eventually(t, func() bool {
		return e.ConfigSettings()["sessionId"] == "s-2"
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"p1", "p2"}, e.InitialPlayers())
}

func TestMaintenanceCallbackFiresOncePerAnnouncement(t *testing.T) {
	orch := newStubOrchestrator()
	orch.respond(http.StatusOK, `{"nextScheduledMaintenanceUtc": "2026-09-01T04:00:00Z"}`)

	e := newTestEngine(t, orch)
	var calls atomic.Int32
	var lastSeen atomic.Value
	e.RegisterMaintenanceCallback(func(next time.Time) {
		calls.Add(1)
		lastSeen.Store(next)
	})
	require.NoError(t, e.Start())

	// Many heartbeats carry the same announcement; it fires once.
	waitForHits(t, orch, 5)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, time.Date(2026, 9, 1, 4, 0, 0, 0, time.UTC), lastSeen.Load())

	// A rescheduled maintenance fires again, once.
	orch.respond(http.StatusOK, `{"nextScheduledMaintenanceUtc": "2026-09-02T04:00:00Z"}`)
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, time.Millisecond)

	start := orch.hits.Load()
	waitForHits(t, orch, start+3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMalformedResponseChangesNothing(t *testing.T) {
	orch := newStubOrchestrator()
	orch.respond(http.StatusOK, `{"operation": `)
	e := newTestEngine(t, orch)
	require.NoError(t, e.Start())

	waitForHits(t, orch, 3)
	assert.Equal(t, StateInitializing, e.State())
	assert.Nil(t, e.InitialPlayers())
}

func TestErrorStatusBodyIsNotInterpreted(t *testing.T) {
	orch := newStubOrchestrator()
	// A well-formed body on a failure status must not drive the state
	// machine.
	orch.respond(http.StatusServiceUnavailable, `{"operation": "Active"}`)
	e := newTestEngine(t, orch)
	require.NoError(t, e.Start())

	waitForHits(t, orch, 3)
	assert.Equal(t, StateInitializing, e.State())
}

func TestStartAndStopLifecycle(t *testing.T) {
	orch := newStubOrchestrator()
	e := newTestEngine(t, orch)

	require.NoError(t, e.Start())
	require.NoError(t, e.Start(), "second Start is a no-op")

	waitForHits(t, orch, 1)

	e.Stop()
	e.Stop()

	assert.Error(t, e.Start(), "a stopped engine does not restart")

	settled := orch.hits.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, orch.hits.Load(), "no heartbeats after Stop returns")
}

func TestHeartbeatingDisabled(t *testing.T) {
	orch := newStubOrchestrator()
	srv := httptest.NewServer(orch)
	t.Cleanup(srv.Close)

	e, err := NewEngine(&config.Static{
		Endpoint: srv.Listener.Addr().String(),
		ID:       "host-1",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(e.Stop)

	require.NoError(t, e.Start())
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, orch.hits.Load())
}

func TestNewEngineRequiresEndpointAndID(t *testing.T) {
	tests := []struct {
		name string
		src  config.Static
	}{
		{"both missing", config.Static{}},
		{"endpoint missing", config.Static{ID: "host-1"}},
		{"id missing", config.Static{Endpoint: "orchestrator:56001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(&tt.src, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrMissingSetting)
		})
	}
}

func TestSetStateSignalsOnlyOnChange(t *testing.T) {
	e, err := NewEngine(&config.Static{
		Endpoint: "orchestrator:56001",
		ID:       "host-1",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(e.Stop)

	// No loop is running, so pending signals stay in the channel.
	e.SetState(StateStandingBy)
	require.Len(t, e.signalCh, 1)

	<-e.signalCh
	e.SetState(StateStandingBy)
	assert.Empty(t, e.signalCh, "re-setting the current state signals nothing")

	e.SetState(StateActive)
	assert.Len(t, e.signalCh, 1)
}
