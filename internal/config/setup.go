package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard asks for the bot token and the few settings worth changing
// on first run, then saves the token to the env file and the rest to
// config.json.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	p := prompter{reader: reader, out: out}

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║            lfbot - First Run Setup           ║")
	fmt.Fprintln(out, "╠══════════════════════════════════════════════╣")
	fmt.Fprintln(out, "║  A TETR.IO bot account token is required.    ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	ribbon := cfg.GetRibbon()
	app := cfg.GetApplicationData()

	fmt.Fprintln(out, "── Account ──")
	token := p.secret("Bot token")
	if token == "" {
		return fmt.Errorf("%w: no token entered", ErrTokenMissing)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Behaviour ──")
	ribbon.PresenceStatus = p.str("Presence status (online, away, busy)", ribbon.PresenceStatus)
	ribbon.JoinCommand = p.str("Room chat join command", ribbon.JoinCommand)
	ribbon.DMReply = p.str("Reply to direct messages", ribbon.DMReply)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Services ──")
	app.API.Enabled = p.boolean("Enable status API", app.API.Enabled)
	if app.API.Enabled {
		app.API.Port = p.integer("Status API port", app.API.Port)
	}
	app.MQTT.Enabled = p.boolean("Enable MQTT telemetry", app.MQTT.Enabled)
	if app.MQTT.Enabled {
		app.MQTT.BrokerURL = p.str("MQTT broker host", app.MQTT.BrokerURL)
	}

	cfg.SetRibbon(ribbon)
	cfg.SetApplicationData(app)

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}
	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := SaveToken(ribbon.EnvFile, ribbon.TokenEnv, token); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Token saved to %s, configuration saved to %s\n", ribbon.EnvFile, cfg.Path())
	fmt.Fprintln(out)

	return nil
}

type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func (p prompter) line() string {
	input, _ := p.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (p prompter) str(prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(p.out, "  %s: ", prompt)
	}

	if input := p.line(); input != "" {
		return input
	}
	return defaultVal
}

func (p prompter) secret(prompt string) string {
	fmt.Fprintf(p.out, "  %s: ", prompt)
	return p.line()
}

func (p prompter) integer(prompt string, defaultVal int) int {
	fmt.Fprintf(p.out, "  %s [%d]: ", prompt, defaultVal)

	input := p.line()
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(p.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (p prompter) boolean(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}
	fmt.Fprintf(p.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(p.line())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
