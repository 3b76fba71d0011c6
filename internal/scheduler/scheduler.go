// Package scheduler runs the bot's daily housekeeping: journal retention
// and a journal size report.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/config"
)

// JournalStore is the part of db.Journal the scheduler maintains.
type JournalStore interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	SizeBytes() (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg     *config.Config
	journal JournalStore
	now     func() time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, journal JournalStore) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		journal: journal,
		now:     time.Now,
	}
}

// Start runs the scheduled tasks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	journalCfg := s.cfg.GetApplicationData().Journal
	if journalCfg.Enabled && s.journal != nil {
		go s.runRetentionLoop(ctx)
		go s.runReportLoop(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runRetentionLoop prunes the journal daily at the configured time.
func (s *Scheduler) runRetentionLoop(ctx context.Context) {
	for {
		cleanupTime := s.cfg.GetApplicationData().Journal.CleanupTime
		nextRun := calculateNextCleanupTime(cleanupTime, s.now())
		sleepDuration := time.Until(nextRun)

		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("journal retention scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.runRetention(ctx)
		}
	}
}

// runRetention deletes journal entries older than the retention window.
func (s *Scheduler) runRetention(ctx context.Context) {
	retentionDays := s.cfg.GetApplicationData().Journal.RetentionDays
	if retentionDays < 1 {
		retentionDays = 1
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	log.Info().
		Int("retention_days", retentionDays).
		Time("cutoff", cutoff).
		Msg("running journal retention")

	before, _ := s.journal.SizeBytes()

	removed, err := s.journal.Prune(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("journal retention failed")
		return
	}

	after, _ := s.journal.SizeBytes()

	log.Info().
		Int64("deleted_entries", removed).
		Str("size_before", formatBytes(before)).
		Str("size_after", formatBytes(after)).
		Msg("journal retention completed")
}

// runReportLoop logs the journal size once a day.
func (s *Scheduler) runReportLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *Scheduler) report(ctx context.Context) {
	count, err := s.journal.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to count journal entries")
		return
	}
	size, _ := s.journal.SizeBytes()

	log.Info().
		Int64("entries", count).
		Str("size", formatBytes(size)).
		Msg("daily journal report")
}

// calculateNextCleanupTime returns the first "HH:MM" occurrence after now.
func calculateNextCleanupTime(cleanupTime string, now time.Time) time.Time {
	parts := strings.Split(cleanupTime, ":")

	hour, minute := 4, 0 // Default: 4:00 AM
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
