// Command livevoice is a push-to-talk voice agent: it streams the microphone
// to a live speech model, plays the spoken reply and keeps a transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/livevoice/internal/app"
	"github.com/MrWong99/livevoice/internal/config"
	"github.com/MrWong99/livevoice/internal/health"
	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/internal/ptt"
	"github.com/MrWong99/livevoice/internal/ui"
	"github.com/MrWong99/livevoice/pkg/live"
	"github.com/MrWong99/livevoice/pkg/live/gemini"
	"github.com/MrWong99/livevoice/pkg/live/genai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "livevoice.yaml", "path to the YAML configuration file (optional)")
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	pttMode := flag.String("ptt", "", "push-to-talk mode: auto, gated or ungated (overrides the config file)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "livevoice: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livevoice: %v\n", err)
		return 1
	}
	config.ApplyEnv(cfg, os.Getenv)
	if *pttMode != "" {
		cfg.PTT.Mode = ptt.Mode(*pttMode)
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			fmt.Fprintf(os.Stderr, "livevoice: %s is required; set it in the environment or in %s\n", config.EnvAPIKey, *envFile)
		}
		fmt.Fprintf(os.Stderr, "livevoice: invalid configuration:\n%v\n", err)
		return 1
	}

	mode, _ := ptt.ParseMode(string(cfg.PTT.Mode))
	mode = ptt.Resolve(mode, os.Stdin.Fd())
	interactive := mode == ptt.ModeGated

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logOut, closeLog, err := logOutput(cfg.Server.LogFile, interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livevoice: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &level})))

	slog.Info("livevoice starting",
		"config", *configPath,
		"backend", cfg.Live.Backend,
		"model", cfg.Live.Model,
		"ptt", string(mode),
	)

	// ── Config hot reload (log level only) ───────────────────────────────────
	if _, err := os.Stat(*configPath); err == nil {
		w, err := config.NewWatcher(context.Background(), *configPath, func(d config.ConfigDiff, _ *config.Config) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if len(d.RestartRequired) > 0 {
				slog.Warn("config changes take effect after restart", "keys", d.RestartRequired)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for range hup {
					if _, err := w.Reload(); err != nil {
						slog.Warn("config reload failed", "err", err)
					}
				}
			}()
		}
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// ── Front end ─────────────────────────────────────────────────────────────
	gate := ptt.NewGate(!interactive)
	var (
		reporter ui.Reporter
		term     *ui.Terminal
	)
	if interactive {
		term = ui.NewTerminal(os.Stdin, os.Stdout, gate)
		reporter = term
	} else {
		reporter = ui.NewPlain(os.Stdout)
	}

	// ── Application ───────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinConnectors(reg)

	application, err := app.New(ctx, cfg,
		app.WithRegistry(reg),
		app.WithReporter(reporter),
		app.WithGate(gate),
		app.WithMetrics(telemetry.Metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		fmt.Fprintf(os.Stderr, "livevoice: %v\n", err)
		return 1
	}

	_ = ui.WriteBanner(os.Stdout, ui.BannerInfo{
		Model:       cfg.Live.Model,
		Entries:     application.History().Len(),
		HistoryPath: cfg.History.Path,
		Mode:        mode,
	})

	// ── Ops server (optional) ─────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := health.NewServer(cfg.Server.ListenAddr,
			health.New(application.Checkers()...),
			telemetry.Handler(),
			observe.Middleware(telemetry.Metrics, "/healthz", "/readyz", "/metrics"),
		)
		go func() {
			if err := srv.Run(ctx); err != nil {
				slog.Error("ops server error", "err", err)
			}
		}()
	}

	// ── Terminal UI ───────────────────────────────────────────────────────────
	uiDone := make(chan struct{})
	if term != nil {
		go func() {
			defer close(uiDone)
			if err := term.Run(ctx); err != nil {
				slog.Error("terminal ui error", "err", err)
			}
			cancel()
		}()
	} else {
		close(uiDone)
	}

	runErr := application.Run(ctx)
	cancel()
	<-uiDone

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	if runErr != nil {
		slog.Error("session ended with error", "err", runErr)
		fmt.Fprintf(os.Stderr, "livevoice: %v\n", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinConnectors wires the live backends that ship with
// livevoice into reg.
func registerBuiltinConnectors(reg *config.Registry) {
	reg.Register("gemini-live", func(c config.LiveConfig) (live.Connector, error) {
		opts := []gemini.Option{gemini.WithModel(c.Model)}
		if c.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.BaseURL))
		}
		return gemini.New(c.APIKey, opts...), nil
	})
	reg.Register("genai", func(c config.LiveConfig) (live.Connector, error) {
		opts := []genai.Option{genai.WithModel(c.Model)}
		if c.BaseURL != "" {
			opts = append(opts, genai.WithBaseURL(c.BaseURL))
		}
		return genai.New(c.APIKey, opts...), nil
	})
}

// logOutput picks the log destination. While the terminal UI owns the
// screen logs go to logFile, or nowhere when it is empty.
func logOutput(logFile string, interactive bool) (io.Writer, func(), error) {
	if logFile == "" {
		if interactive {
			return io.Discard, func() {}, nil
		}
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
