// Package util provides logging and host helpers shared by lfbot's packages.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AppName tags every log line and names the log files.
const AppName = "lfbot"

// Field names shared by every package so log lines can be filtered the
// same way regardless of who wrote them.
const (
	FieldComponent = "component"
	FieldEpoch     = "epoch"
)

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`

	// ConsoleOut overrides stdout for the console writer.
	ConsoleOut io.Writer `json:"-"`
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	}
}

// InitLogger points the global logger at a dated JSON file in cfg.Directory
// and, when cfg.Console is set, a human-readable console stream.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
	}

	logFilePath := logFileFor(cfg.Directory, time.Now(), cfg.MaxSizeMB)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		out := cfg.ConsoleOut
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				FieldComponent,
				zerolog.MessageFieldName,
			},
			FieldsExclude: []string{FieldComponent, "app"},
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", AppName).
		Logger()

	log.Info().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	go cleanOldLogs(cfg.Directory, cfg.MaxBackups)

	return nil
}

// logFileFor picks today's log file. Once a file reaches maxSizeMB the next
// numbered sibling is used (lfbot_2024-01-02.1.log, .2.log, ...).
func logFileFor(directory string, now time.Time, maxSizeMB int) string {
	base := fmt.Sprintf("%s_%s", AppName, now.Format("2006-01-02"))
	path := filepath.Join(directory, base+".log")
	if maxSizeMB <= 0 {
		return path
	}
	limit := int64(maxSizeMB) << 20
	for n := 1; ; n++ {
		info, err := os.Stat(path)
		if err != nil || info.Size() < limit {
			return path
		}
		path = filepath.Join(directory, fmt.Sprintf("%s.%d.log", base, n))
	}
}

// cleanOldLogs keeps the newest maxBackups lfbot log files. Files not
// written by lfbot are left alone.
func cleanOldLogs(directory string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, AppName+"_") || filepath.Ext(name) != ".log" {
			continue
		}
		names = append(names, name)
	}
	// Date stamps sort lexically, oldest day first.
	sort.Strings(names)

	for i := 0; i < len(names)-maxBackups; i++ {
		path := filepath.Join(directory, names[i])
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old log file")
			continue
		}
		log.Debug().Str("file", path).Msg("removed old log file")
	}
}

// ComponentLogger derives a logger tagged with the owning component from
// the global logger.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// EpochLogger tags parent with a connection epoch id so every line from one
// socket lifetime can be grouped.
func EpochLogger(parent zerolog.Logger, id string) zerolog.Logger {
	return parent.With().Str(FieldEpoch, id).Logger()
}
