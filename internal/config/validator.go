package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateRibbon(&cfg.Ribbon, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateRibbon(data *RibbonConfig, result *ValidationResult) {
	if u, err := url.Parse(data.APIBaseURL); err != nil || u.Host == "" {
		result.AddError("ribbon.api_base_url", fmt.Sprintf("invalid URL: %q", data.APIBaseURL))
	} else if u.Scheme != "https" {
		result.AddWarning("ribbon.api_base_url", "bearer token will be sent without TLS")
	}

	if strings.TrimSpace(data.Host) == "" {
		result.AddError("ribbon.host", "ribbon host is required")
	}
	switch data.Scheme {
	case "wss":
	case "ws":
		result.AddWarning("ribbon.scheme", "ribbon traffic will not be encrypted")
	default:
		result.AddError("ribbon.scheme", fmt.Sprintf("unsupported scheme %q (expected ws or wss)", data.Scheme))
	}

	if strings.TrimSpace(data.TokenEnv) == "" {
		result.AddError("ribbon.token_env", "token environment variable name is required")
	}
	if strings.TrimSpace(data.UserAgent) == "" {
		result.AddWarning("ribbon.user_agent", "empty user agent may be rejected by the API")
	}

	if strings.TrimSpace(data.JoinCommand) == "" {
		result.AddError("ribbon.join_command", "join command is required")
	} else if strings.ContainsAny(data.JoinCommand, " \t") {
		result.AddError("ribbon.join_command", "join command must be a single word")
	}

	switch data.PresenceStatus {
	case "online", "away", "busy", "offline":
	default:
		result.AddWarning("ribbon.presence_status",
			fmt.Sprintf("unknown presence status %q", data.PresenceStatus))
	}

	if data.Reconnect.Enabled {
		if data.Reconnect.MinDelayMS < 1 {
			result.AddError("ribbon.reconnect.min_delay_ms", "minimum delay must be positive")
		}
		if data.Reconnect.MaxDelayMS < data.Reconnect.MinDelayMS {
			result.AddError("ribbon.reconnect.max_delay_ms", "maximum delay must not be below the minimum")
		}
		if data.Reconnect.MaxAttempts < 1 {
			result.AddWarning("ribbon.reconnect.max_attempts", "reconnect attempts are unlimited")
		}
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if data.API.RateLimitRPS < 0 {
			result.AddError("application_data.api.rate_limit_rps", "rate limit must not be negative")
		}
		if data.API.ControlToken == "" {
			result.AddWarning("application_data.api.control_token", "control routes are unauthenticated")
		}
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	if data.Journal.Enabled {
		if strings.TrimSpace(data.Journal.Path) == "" {
			result.AddError("application_data.journal.path", "journal path is required when enabled")
		}
		if data.Journal.RetentionDays < 1 {
			result.AddError("application_data.journal.retention_days", "retention days must be at least 1")
		}
		if _, err := time.Parse("15:04", data.Journal.CleanupTime); err != nil {
			result.AddError("application_data.journal.cleanup_time",
				fmt.Sprintf("invalid time %q (expected HH:MM)", data.Journal.CleanupTime))
		}
	}

	switch strings.ToLower(data.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		result.AddWarning("application_data.logging.level",
			fmt.Sprintf("unknown log level %q, falling back to info", data.Logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
