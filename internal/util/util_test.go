package util

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"lfbot_2024-01-01.log",
		"lfbot_2024-01-02.log",
		"lfbot_2024-01-03.log",
		"lfbot_2024-01-04.log",
		"notes.txt",
		"other.log",
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	cleanOldLogs(dir, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.Equal(t, []string{"lfbot_2024-01-03.log", "lfbot_2024-01-04.log", "notes.txt", "other.log"}, left)
}

func TestLogFileForRollsOverAtSizeLimit(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, filepath.Join(dir, "lfbot_2024-01-02.log"), logFileFor(dir, day, 1))

	full := bytes.Repeat([]byte("x"), 1<<20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lfbot_2024-01-02.log"), full, 0644))
	assert.Equal(t, filepath.Join(dir, "lfbot_2024-01-02.1.log"), logFileFor(dir, day, 1))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lfbot_2024-01-02.1.log"), []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "lfbot_2024-01-02.1.log"), logFileFor(dir, day, 1))

	assert.Equal(t, filepath.Join(dir, "lfbot_2024-01-02.log"), logFileFor(dir, day, 0))
}

func TestComponentAndEpochFields(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	logger := EpochLogger(ComponentLogger("ribbon"), "e-1")
	logger.Info().Msg("connected")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ribbon", line[FieldComponent])
	assert.Equal(t, "e-1", line[FieldEpoch])
	assert.Equal(t, "connected", line["message"])
}

func TestInitLoggerConsoleShowsComponent(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var console bytes.Buffer
	cfg := DefaultLogConfig()
	cfg.Directory = t.TempDir()
	cfg.ConsoleOut = &console
	require.NoError(t, InitLogger(cfg))

	apiLogger := ComponentLogger("api")
	apiLogger.Info().Msg("listening")

	out := console.String()
	assert.Contains(t, out, "api")
	assert.Contains(t, out, "listening")
	assert.False(t, strings.Contains(out, "component="), "component is rendered as a column, not a field")
}

func TestInitLoggerCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := DefaultLogConfig()
	cfg.Directory = dir
	cfg.Console = false
	cfg.Level = "not-a-level"

	require.NoError(t, InitLogger(cfg))

	matches, err := filepath.Glob(filepath.Join(dir, AppName+"_*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.Equal(t, runtime.GOARCH, info.Architecture)
	assert.Equal(t, runtime.NumCPU(), info.CPUCores)
	assert.NotEmpty(t, info.GoVersion)
}

func TestProcessStats(t *testing.T) {
	stats := GetProcessStats()
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Positive(t, stats.Goroutines)
	assert.NotEmpty(t, stats.Uptime)
}
