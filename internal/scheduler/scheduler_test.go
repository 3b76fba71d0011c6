package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lfbot-project/lfbot/internal/config"
)

type fakeJournal struct {
	prunedBefore time.Time
	removed      int64
}

func (f *fakeJournal) Prune(_ context.Context, before time.Time) (int64, error) {
	f.prunedBefore = before
	return f.removed, nil
}

func (f *fakeJournal) Count(context.Context) (int64, error) { return 3, nil }
func (f *fakeJournal) SizeBytes() (int64, error)           { return 4096, nil }

func TestCalculateNextCleanupTime(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name        string
		cleanupTime string
		now         time.Time
		want        time.Time
	}{
		{"later today", "04:00", time.Date(2024, 5, 1, 1, 30, 0, 0, loc), time.Date(2024, 5, 1, 4, 0, 0, 0, loc)},
		{"already passed", "04:00", time.Date(2024, 5, 1, 9, 0, 0, 0, loc), time.Date(2024, 5, 2, 4, 0, 0, 0, loc)},
		{"exactly now", "04:00", time.Date(2024, 5, 1, 4, 0, 0, 0, loc), time.Date(2024, 5, 2, 4, 0, 0, 0, loc)},
		{"minutes", "23:45", time.Date(2024, 5, 1, 23, 0, 0, 0, loc), time.Date(2024, 5, 1, 23, 45, 0, 0, loc)},
		{"malformed falls back", "soon", time.Date(2024, 5, 1, 1, 0, 0, 0, loc), time.Date(2024, 5, 1, 4, 0, 0, 0, loc)},
		{"month end", "02:00", time.Date(2024, 1, 31, 3, 0, 0, 0, loc), time.Date(2024, 2, 1, 2, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateNextCleanupTime(tt.cleanupTime, tt.now))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.50 KB", formatBytes(1536))
	assert.Equal(t, "2.00 MB", formatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", formatBytes(1024*1024*1024))
}

func TestRunRetentionUsesRetentionWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	app := cfg.GetApplicationData()
	app.Journal.RetentionDays = 7
	cfg.SetApplicationData(app)

	journal := &fakeJournal{removed: 12}
	s := NewScheduler(cfg, journal)
	now := time.Date(2024, 5, 10, 4, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.runRetention(context.Background())

	assert.Equal(t, time.Date(2024, 5, 3, 4, 0, 0, 0, time.UTC), journal.prunedBefore)
}

func TestStartStopsWithContext(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), &fakeJournal{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
