// lfbot - a TETR.IO custom-room bot.
//
// lfbot bootstraps against the TETR.IO HTTP API, holds a Ribbon WebSocket
// session open across migrations and reconnects, joins rooms it is invited
// to, and exposes its state through a status API, MQTT telemetry and an
// operator console.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/lfbot-project/lfbot/internal/api"
	lfcli "github.com/lfbot-project/lfbot/internal/cli"
	"github.com/lfbot-project/lfbot/internal/config"
	"github.com/lfbot-project/lfbot/internal/connector"
	"github.com/lfbot-project/lfbot/internal/db"
	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/ribbon"
	"github.com/lfbot-project/lfbot/internal/scheduler"
	"github.com/lfbot-project/lfbot/internal/telemetry"
	"github.com/lfbot-project/lfbot/internal/util"
)

const (
	AppName    = "lfbot"
	AppVersion = "1.0.0"
	Banner     = `
  _  __ _           _
 | |/ _| |__   ___ | |_
 | | |_| '_ \ / _ \| __|
 | |  _| |_) | (_) | |_
 |_|_| |_.__/ \___/ \__|  v%s
 TETR.IO custom-room bot
`
)

// shutdownTimeout bounds how long tasks get to stop after shutdown starts.
const shutdownTimeout = 30 * time.Second

func main() {
	cmd := &cli.Command{
		Name:    AppName,
		Usage:   "TETR.IO custom-room bot",
		Version: AppVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   config.DefaultConfigDir,
				Usage:   "directory holding config.json",
				Sources: cli.EnvVars("LFBOT_CONFIG_DIR"),
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "dotenv file holding the bot token (overrides ribbon.env_file)",
				Sources: cli.EnvVars("LFBOT_ENV_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (trace, debug, info, warn, error)",
				Sources: cli.EnvVars("LFBOT_LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:  "no-console",
				Usage: "disable the interactive operator console",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("lfbot exited with an error")
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cmd.String("config-dir"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.SetLogLevel(level)
	}
	if envFile := cmd.String("env-file"); envFile != "" {
		ribbonCfg := cfg.GetRibbon()
		ribbonCfg.EnvFile = envFile
		cfg.SetRibbon(ribbonCfg)
	}

	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxSizeMB:  appData.Logging.MaxSizeMB,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	log.Info().
		Str("version", AppVersion).
		Str("config", cfg.Path()).
		Msg("starting lfbot")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return errors.New("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Str("go", sysInfo.GoVersion).
		Msg("system information")

	token, err := loadToken(cfg)
	if err != nil {
		return err
	}

	ribbonCfg := cfg.GetRibbon()
	tetra := connector.NewTetraConnector(cfg, token)

	bootCtx, cancelBoot := context.WithTimeout(ctx, 2*ribbonCfg.HTTPTimeout())
	boot, err := tetra.Bootstrap(bootCtx)
	cancelBoot()
	if err != nil {
		var bootErr *connector.BootstrapError
		if errors.As(err, &bootErr) {
			log.Error().Str("step", bootErr.Step).Err(bootErr.Err).Msg("bootstrap failed")
		}
		return err
	}

	log.Info().
		Str("user", boot.User.Username).
		Str("user_id", boot.User.ID).
		Str("endpoint", boot.Endpoint).
		Str("server_version", boot.Signature.Version()).
		Msg("bootstrap complete")

	eventBus := events.NewEventBus()
	metrics := telemetry.NewMetrics()

	client := ribbon.NewClient(ribbon.Options{
		BaseURL:        ribbonCfg.RibbonBaseURL(),
		Endpoint:       boot.Endpoint,
		Token:          token,
		Signature:      boot.Signature,
		User:           boot.User,
		PresenceStatus: ribbonCfg.PresenceStatus,
		DMReply:        ribbonCfg.DMReply,
		JoinCommand:    ribbonCfg.JoinCommand,
		InviteGreeting: ribbonCfg.InviteGreeting,
		Farewell:       ribbonCfg.Farewell,
		Reconnect: ribbon.ReconnectPolicy{
			Enabled:     ribbonCfg.Reconnect.Enabled,
			MinDelay:    ribbonCfg.Reconnect.MinDelay(),
			MaxDelay:    ribbonCfg.Reconnect.MaxDelay(),
			MaxAttempts: ribbonCfg.Reconnect.MaxAttempts,
		},
		Dialer: ribbon.WebsocketDialer{
			Header: http.Header{"User-Agent": {ribbonCfg.UserAgent}},
		},
		Friends: tetra,
		Bus:     eventBus,
		Metrics: metrics,
	})

	// Journal
	var journal *db.Journal
	if appData.Journal.Enabled {
		journal, err = db.OpenJournal(ctx, appData.Journal.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open journal, journaling disabled")
		} else {
			defer journal.Close()
			journal.Subscribe(eventBus)
		}
	}

	// MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, AppVersion)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	var apiServer *api.Server
	if appData.API.Enabled {
		apiServer = api.NewServer(cfg, client, AppVersion)
		var journalReader api.JournalReader
		if journal != nil {
			journalReader = journal
		}
		apiServer.SetDependencies(journalReader, metrics.Handler())
	}

	shutdownCh := make(chan string, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, e events.Event) error {
		select {
		case shutdownCh <- e.Source:
		default:
		}
		return nil
	})

	// The ribbon client runs on its own context so it can still say goodbye
	// after the other tasks are told to stop.
	botCtx, stopBot := context.WithCancel(context.Background())
	defer stopBot()

	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()
	g, gctx := errgroup.WithContext(taskCtx)

	// Task 1: Ribbon session. The process exits when it returns.
	g.Go(func() error {
		defer cancelTasks()
		log.Info().Msg("starting ribbon client")
		err := client.Run(botCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Task 2: Status API
	if apiServer != nil {
		g.Go(func() error {
			log.Info().Int("port", appData.API.Port).Msg("starting status API")
			if err := startWithRetry(gctx, "status API", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("status API failed after retries (non-fatal)")
			}
			return nil
		})
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		g.Go(func() error {
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
			return nil
		})
	}

	// Task 4: Scheduler (journal retention)
	if journal != nil {
		sched := scheduler.NewScheduler(cfg, journal)
		g.Go(func() error {
			log.Info().Msg("starting task scheduler")
			sched.Start(gctx)
			return nil
		})
	}

	// Task 5: Operator console
	if appData.CLI.Enabled && !cmd.Bool("no-console") && isatty.IsTerminal(os.Stdin.Fd()) {
		console := lfcli.NewCLI(client, eventBus, os.Stdin, os.Stdout)
		g.Go(func() error {
			console.Start(gctx)
			return nil
		})
	}

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case source := <-shutdownCh:
		log.Info().Str("source", source).Msg("shutdown requested")
	case <-gctx.Done():
		log.Info().Msg("ribbon session ended")
	}

	log.Info().Msg("initiating graceful shutdown...")

	farewellCtx, cancelFarewell := context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.Farewell(farewellCtx); err != nil && !errors.Is(err, ribbon.ErrNotConnected) {
		log.Warn().Err(err).Msg("failed to leave room")
	}
	cancelFarewell()

	stopBot()
	cancelTasks()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	var runErr error
	select {
	case runErr = <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	eventBus.Stop()

	log.Info().Msg("lfbot stopped")
	return runErr
}

// loadToken reads the bot token, running the setup wizard on an
// interactive terminal when none is configured.
func loadToken(cfg *config.Config) (string, error) {
	ribbonCfg := cfg.GetRibbon()

	token, err := config.LoadToken(ribbonCfg.EnvFile, ribbonCfg.TokenEnv)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, config.ErrTokenMissing) || !isatty.IsTerminal(os.Stdin.Fd()) {
		return "", err
	}

	log.Info().Msg("no bot token found, launching setup wizard")
	if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
		return "", fmt.Errorf("setup wizard failed: %w", err)
	}

	ribbonCfg = cfg.GetRibbon()
	return config.LoadToken(ribbonCfg.EnvFile, ribbonCfg.TokenEnv)
}

// startWithRetry attempts to start a listener with retry on bind errors.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
