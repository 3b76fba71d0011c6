// Package config handles configuration loading, validation, and persistence
// for lfbot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5080
	DefaultAPIBaseURL = "https://tetr.io"
	DefaultRibbonHost = "tetr.io"
	DefaultUserAgent  = "haru/lfbot"
	DefaultTokenEnv   = "TOKEN"
	DefaultEnvFile    = ".env"
)

// Config is the root configuration structure for lfbot.
type Config struct {
	mu   sync.RWMutex
	path string

	Ribbon          RibbonConfig    `json:"ribbon"`
	ApplicationData ApplicationData `json:"application_data"`
}

// RibbonConfig contains the bot account and session settings.
type RibbonConfig struct {
	// HTTP bootstrap
	APIBaseURL     string `json:"api_base_url"`
	UserAgent      string `json:"user_agent"`
	HTTPTimeoutSec int    `json:"http_timeout_sec"`

	// WebSocket
	Host   string `json:"host"`
	Scheme string `json:"scheme"`

	// Credentials
	TokenEnv string `json:"token_env"`
	EnvFile  string `json:"env_file"`

	// Behaviour
	PresenceStatus string `json:"presence_status"`
	DMReply        string `json:"dm_reply"`
	JoinCommand    string `json:"join_command"`
	InviteGreeting string `json:"invite_greeting"`
	Farewell       string `json:"farewell"`

	Reconnect ReconnectConfig `json:"reconnect"`
}

// ReconnectConfig holds the re-dial policy after connection failures.
type ReconnectConfig struct {
	Enabled     bool `json:"enabled"`
	MinDelayMS  int  `json:"min_delay_ms"`
	MaxDelayMS  int  `json:"max_delay_ms"`
	MaxAttempts int  `json:"max_attempts"`
}

// ApplicationData contains the bot process settings.
type ApplicationData struct {
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Journal JournalConfig `json:"journal"`
	Logging LoggingConfig `json:"logging"`
	CLI     CLIConfig     `json:"cli"`
}

// APIConfig holds the status API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	// ControlToken, when set, is required as a bearer token on control routes.
	ControlToken string `json:"control_token"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// CLIConfig toggles the interactive console.
type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ribbon: RibbonConfig{
			APIBaseURL:     DefaultAPIBaseURL,
			UserAgent:      DefaultUserAgent,
			HTTPTimeoutSec: 30,
			Host:           DefaultRibbonHost,
			Scheme:         "wss",
			TokenEnv:       DefaultTokenEnv,
			EnvFile:        DefaultEnvFile,
			PresenceStatus: "away",
			DMReply:        "hi! invite me to a custom room and type ~join in chat to play",
			JoinCommand:    "~join",
			InviteGreeting: "!",
			Farewell:       ":crying:",
			Reconnect: ReconnectConfig{
				Enabled:     true,
				MinDelayMS:  500,
				MaxDelayMS:  30000,
				MaxAttempts: 10,
			},
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Enabled:      true,
				Port:         DefaultAPIPort,
				RateLimitRPS: 10,
			},
			MQTT: MQTTConfig{
				Enabled:  false,
				Port:     8883,
				UseTLS:   true,
				ClientID: "lfbot",
			},
			Journal: JournalConfig{
				Enabled:       true,
				Path:          filepath.Join("data", "journal.db"),
				RetentionDays: 14,
				CleanupTime:   "04:00",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json always lists every option the binary knows about.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRibbon returns a copy of the ribbon configuration.
func (c *Config) GetRibbon() RibbonConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Ribbon
}

// SetRibbon updates the ribbon configuration.
func (c *Config) SetRibbon(data RibbonConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ribbon = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// SetLogLevel overrides the configured log level.
func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData.Logging.Level = level
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// RibbonBaseURL is the scheme and host every ribbon endpoint is appended to.
func (r RibbonConfig) RibbonBaseURL() string {
	scheme := r.Scheme
	if scheme == "" {
		scheme = "wss"
	}
	return scheme + "://" + strings.TrimRight(r.Host, "/")
}

// HTTPTimeout returns the bootstrap request timeout.
func (r RibbonConfig) HTTPTimeout() time.Duration {
	if r.HTTPTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.HTTPTimeoutSec) * time.Second
}

// MinDelay returns the first reconnect delay.
func (r ReconnectConfig) MinDelay() time.Duration {
	return time.Duration(r.MinDelayMS) * time.Millisecond
}

// MaxDelay returns the reconnect delay ceiling.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}
