package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hgeldenhuys/trak/internal/auth"
	"github.com/hgeldenhuys/trak/internal/config"
	"github.com/hgeldenhuys/trak/internal/daemon"
	"github.com/hgeldenhuys/trak/internal/httpapi"
	"github.com/hgeldenhuys/trak/internal/metrics"
	"github.com/hgeldenhuys/trak/internal/notify"
	"github.com/hgeldenhuys/trak/internal/responsestore"
	"github.com/hgeldenhuys/trak/internal/store"
	"github.com/hgeldenhuys/trak/internal/stream"
	"github.com/hgeldenhuys/trak/internal/summarizer"
	"github.com/hgeldenhuys/trak/internal/tracker"
	"github.com/hgeldenhuys/trak/internal/tts"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification daemon",
		Long: `Start trakd: ingest lifecycle events, track per-session transactions,
summarize completed work, and dispatch notifications across the
configured channels.

Graceful shutdown runs on SIGINT/SIGTERM: the HTTP listener stops
accepting new requests, the audio queue drains, the store closes, and
the PID file is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	// debug also selects development mode: text logs instead of JSON, and a
	// permissive REQUIRE_AUTH default instead of production's locked-down one.
	development := debug
	var handler slog.Handler
	if development {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)

	cfg, err := loadConfigOrDefaults(configPath, development)
	if err != nil {
		return fmt.Errorf("trakd: %w", err)
	}

	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return fmt.Errorf("trakd: create data dir: %w", err)
	}
	dbPath := filepath.Join(cfg.Store.DataDir, "trak.db")

	st, err := store.Open(ctx, store.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("trakd: open store: %w", err)
	}
	defer st.Close()

	pidPath := defaultPIDPath()
	pidInfo, err := daemon.AcquirePIDFile(pidPath, cfg.Server.Port, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("trakd: %w", err)
	}
	logger.Info("trakd: acquired pid file", "path", pidPath, "pid", pidInfo.PID)

	metricsReg := metrics.New()

	trk := tracker.New(st,
		tracker.WithThresholdMs(cfg.Notify.ThresholdMs),
		tracker.WithStaleMaxAge(cfg.Notify.StaleMaxAge),
		tracker.WithLogger(logger),
		tracker.WithMetrics(metricsReg),
	)

	summ := summarizer.New(summarizer.LLMConfig{
		APIKey: cfg.Credentials.AnthropicAPIKey,
		Model:  "claude-3-5-haiku-20241022",
	}, summarizer.WithLogger(logger), summarizer.WithMetrics(metricsReg))

	dispatcher := buildDispatcher(cfg, logger).WithMetrics(metricsReg)
	hub := stream.New(logger)
	responses := responsestore.New(responsestore.DefaultTTL, logger)
	authService := auth.NewService(st)

	go responses.RunSweeper(ctx, responsestore.DefaultSweepInterval)
	go runTrackerSweeper(ctx, trk, logger)

	srv := httpapi.NewServer(&httpapi.Server{
		Store:       st,
		Tracker:     trk,
		Summarizer:  summ,
		Dispatcher:  dispatcher,
		Hub:         hub,
		Responses:   responses,
		AuthService: authService,
		Metrics:     metricsReg,
		RequireAuth: cfg.Auth.RequireAuth,
		PublicURL:   cfg.Server.PublicURL,
		Port:        cfg.Server.Port,
		Logger:      logger,
	})

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	httpServer := &http.Server{Addr: addr, Handler: srv.Mount()}

	coordinator := daemon.NewCoordinator(10*time.Second, logger)
	coordinator.Register(daemon.PhaseStopAccepting, "http-listener", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	coordinator.Register(daemon.PhaseDrain, "audio-queue", func(ctx context.Context) error {
		return dispatcher.WaitForAudioDrain(ctx)
	})
	coordinator.Register(daemon.PhaseStore, "event-store", func(ctx context.Context) error {
		return st.Close()
	})
	coordinator.Register(daemon.PhaseCleanup, "pid-file", func(ctx context.Context) error {
		return daemon.ReleasePIDFile(pidPath)
	})

	shutdownDone := coordinator.OnSignal()

	logger.Info("trakd: listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("trakd: serve: %w", err)
	}

	<-shutdownDone
	return nil
}

func buildDispatcher(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	var ttsGen notify.TTSGenerator
	if cfg.Notify.TTSEnabled {
		ttsCfg := tts.DefaultConfig()
		ttsCfg.Enabled = true
		if cfg.Credentials.ElevenLabsAPIKey != "" {
			ttsCfg.Provider = tts.ProviderElevenLabs
			ttsCfg.ElevenLabs.APIKey = cfg.Credentials.ElevenLabsAPIKey
			ttsCfg.FallbackChain = []tts.Provider{tts.ProviderOpenAI, tts.ProviderEdge}
		} else if cfg.Credentials.OpenAIAPIKey != "" {
			ttsCfg.Provider = tts.ProviderOpenAI
			ttsCfg.OpenAI.APIKey = cfg.Credentials.OpenAIAPIKey
			ttsCfg.FallbackChain = []tts.Provider{tts.ProviderEdge}
		}
		ttsCfg.ApplyDefaults()
		ttsGen = tts.NewGenerator(ttsCfg)
	}

	audioQueue := notify.NewAudioQueue(notify.NewSubprocessPlayer(defaultAudioPlayer()), logger)
	webhookSender := notify.NewWebhookSender(nil, logger)

	var consoleWriter *notify.ConsoleWriter
	if cfg.Notify.ConsoleEnabled {
		consoleWriter = notify.NewConsoleWriter(os.Stdout)
	}

	return notify.NewDispatcher(notify.Config{
		TTSEnabled:     cfg.Notify.TTSEnabled,
		DiscordEnabled: cfg.Notify.DiscordEnabled,
		ConsoleEnabled: cfg.Notify.ConsoleEnabled,
		WebhookURL:     cfg.Credentials.DiscordWebhookURL,
	}, ttsGen, audioQueue, webhookSender, consoleWriter, logger)
}

func defaultAudioPlayer() string {
	switch {
	case fileExists("/usr/bin/afplay"):
		return "afplay"
	default:
		return "ffplay"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadConfigOrDefaults(path string, development bool) (*config.Config, error) {
	if !fileExists(path) {
		path = ""
	}
	return config.Load(path, development)
}

func runTrackerSweeper(ctx context.Context, trk *tracker.Tracker, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := trk.Sweep(ctx); err != nil {
				logger.Warn("trakd: tracker sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("trakd: swept stale transactions", "count", n)
			}
		}
	}
}
