package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfbot-project/lfbot/internal/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(context.Background(), filepath.Join(t.TempDir(), "data", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, events.Event{
		Type:    events.EventConnected,
		Source:  "ribbon",
		Epoch:   "e1",
		Payload: events.ConnectionPayload{Endpoint: "/ribbon/a"},
	}))
	require.NoError(t, j.Record(ctx, events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	}))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, string(events.EventShutdown), entries[0].Type)
	assert.Nil(t, entries[0].Detail)

	assert.Equal(t, string(events.EventConnected), entries[1].Type)
	assert.Equal(t, "e1", entries[1].Epoch)
	var detail events.ConnectionPayload
	require.NoError(t, json.Unmarshal(entries[1].Detail, &detail))
	assert.Equal(t, "/ribbon/a", detail.Endpoint)
	assert.WithinDuration(t, time.Now(), entries[1].OccurredAt, time.Minute)
}

func TestJournalRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, events.Event{Type: events.EventRoomUpdated}))
	}

	entries, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Greater(t, entries[0].ID, entries[1].ID)

	entries, err = j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestJournalPrune(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.AddDate(0, 0, i)
		j.now = func() time.Time { return at }
		require.NoError(t, j.Record(ctx, events.Event{Type: events.EventRoomLeft}))
	}

	removed, err := j.Prune(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestJournalSubscribe(t *testing.T) {
	j := openTestJournal(t)
	bus := events.NewEventBus()
	j.Subscribe(bus)

	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventJoinCommand,
		Payload: events.JoinCommandPayload{UserID: "u1", Accepted: false, Violation: "options.boardwidth=4"},
	}))
	bus.Stop()

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, string(entries[0].Detail), "options.boardwidth=4")
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := OpenJournal(ctx, path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, events.Event{Type: events.EventAuthorized}))
	require.NoError(t, j.Close())

	j, err = OpenJournal(ctx, path)
	require.NoError(t, err)
	defer j.Close()

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	size, err := j.SizeBytes()
	require.NoError(t, err)
	assert.Positive(t, size)
}
