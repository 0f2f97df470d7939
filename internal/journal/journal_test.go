package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeline-project/lifeline/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal", "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record("state_changed", map[string]string{"current": "Active"}))
	require.NoError(t, j.Record("heartbeat_failed", map[string]any{"status": 503}))

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "heartbeat_failed", entries[0].Kind)
	assert.Equal(t, "state_changed", entries[1].Kind)
	assert.JSONEq(t, `{"current":"Active"}`, entries[1].Detail)
	assert.False(t, entries[0].RecordedAt.IsZero())
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record("state_changed", nil))
	}

	entries, err := j.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecentEmpty(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubscribeRecordsBusEvents(t *testing.T) {
	j := openTestJournal(t)

	bus := events.NewBus()
	j.Subscribe(bus)

	bus.Emit(context.Background(), events.Event{
		Type:    events.EventMaintenanceScheduled,
		Source:  "engine",
		Payload: events.MaintenancePayload{NextMaintenanceUTC: time.Date(2026, 9, 1, 4, 0, 0, 0, time.UTC)},
	})
	bus.Stop()

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(events.EventMaintenanceScheduled), entries[0].Kind)
	assert.Contains(t, entries[0].Detail, "2026-09-01T04:00:00Z")
}
