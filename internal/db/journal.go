package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/events"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 1000
)

var journalMigrations = []string{
	`CREATE TABLE IF NOT EXISTS journal (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at INTEGER NOT NULL,
		type        TEXT    NOT NULL,
		source      TEXT    NOT NULL DEFAULT '',
		epoch       TEXT    NOT NULL DEFAULT '',
		detail      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_occurred_at ON journal (occurred_at)`,
}

// Entry is one journaled event.
type Entry struct {
	ID         int64           `json:"id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Epoch      string          `json:"epoch,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// Journal is an append-only log of ribbon events.
type Journal struct {
	db  *Database
	now func() time.Time
}

// OpenJournal opens the journal database at path, creating it if needed.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, journalMigrations); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return &Journal{db: database, now: time.Now}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Subscribe records every ribbon event published on bus.
func (j *Journal) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(events.RibbonEvents, "journal.record", func(ctx context.Context, event events.Event) error {
		return j.Record(ctx, event)
	})
}

// Record appends event to the journal.
func (j *Journal) Record(ctx context.Context, event events.Event) error {
	var detail interface{}
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
		}
		detail = string(data)
	}

	_, err := j.db.Exec(ctx,
		`INSERT INTO journal (occurred_at, type, source, epoch, detail) VALUES (?, ?, ?, ?, ?)`,
		j.now().UTC().UnixMilli(), string(event.Type), event.Source, event.Epoch, detail)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", event.Type, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// selects DefaultRecentLimit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := j.db.Query(ctx,
		`SELECT id, occurred_at, type, source, epoch, detail FROM journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e      Entry
			millis int64
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &millis, &e.Type, &e.Source, &e.Epoch, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.OccurredAt = time.UnixMilli(millis).UTC()
		if detail.Valid {
			e.Detail = json.RawMessage(detail.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of journaled entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal: %w", err)
	}
	return n, nil
}

// Prune deletes entries that occurred before the cutoff and returns how
// many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.Exec(ctx, `DELETE FROM journal WHERE occurred_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("removed", n).Time("before", before).Msg("journal pruned")
	}
	return n, nil
}

// SizeBytes returns the size of the database file on disk.
func (j *Journal) SizeBytes() (int64, error) {
	info, err := os.Stat(j.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
