// Command whisperd is a local development backend for the WhisperBrain
// client: the voice WebSocket, the preference REST API, health probes and
// metrics on a single listener. It answers every utterance with a canned
// reply and a synthesized tone so the client can run without any speech
// models installed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MihirPatel5/WhisperBrain/internal/config"
	"github.com/MihirPatel5/WhisperBrain/internal/devserver"
	"github.com/MihirPatel5/WhisperBrain/internal/observe"
	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
	fileprefs "github.com/MihirPatel5/WhisperBrain/pkg/prefs/file"
	pgprefs "github.com/MihirPatel5/WhisperBrain/pkg/prefs/postgres"
	redisprefs "github.com/MihirPatel5/WhisperBrain/pkg/prefs/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listenAddr := flag.String("listen", "", "listen address, overriding server.addr from the config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "whisperd: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "whisperd: %v\n", err)
		}
		return 1
	}
	addr := cfg.Server.Addr
	if *listenAddr != "" {
		addr = *listenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	slog.Info("whisperd starting",
		"config", *configPath,
		"listen_addr", addr,
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "whisperd"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Preference store ──────────────────────────────────────────────────────
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open preference store", "err", err)
		return 1
	}
	defer closeStore()

	srv, err := devserver.New(devserver.Config{
		CannedReply: cfg.Server.CannedReply,
		RPS:         cfg.Server.Rate.RPS,
		Burst:       cfg.Server.Rate.Burst,
		Store:       store,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, addr)

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Serve(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("serve error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildStore opens the preference store selected by prefs.store. The
// returned closer releases whatever connection the store holds.
func buildStore(ctx context.Context, cfg *config.Config) (prefs.Store, func(), error) {
	switch cfg.Prefs.Store {
	case config.StoreFile:
		return fileprefs.NewStore(cfg.Prefs.Path), func() {}, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Prefs.Redis.Addr,
			Password: cfg.Prefs.Redis.Password,
			DB:       cfg.Prefs.Redis.DB,
		})
		return redisprefs.NewStore(client), func() { _ = client.Close() }, nil
	case config.StorePostgres:
		store, err := pgprefs.NewStore(ctx, cfg.Prefs.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return prefs.NewMemoryStore(), func() {}, nil
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, addr string) {
	storeKind := cfg.Prefs.Store
	if storeKind == "" {
		storeKind = config.StoreMemory
	}
	rateLimit := "(disabled)"
	if cfg.Server.Rate.RPS > 0 {
		rateLimit = fmt.Sprintf("%g rps, burst %d", cfg.Server.Rate.RPS, cfg.Server.Rate.Burst)
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        whisperd, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen addr     : %-19s ║\n", summaryValue(addr))
	fmt.Printf("║  Voice socket    : %-19s ║\n", "/voice")
	fmt.Printf("║  Prefs store     : %-19s ║\n", summaryValue(string(storeKind)))
	fmt.Printf("║  Rate limit      : %-19s ║\n", summaryValue(rateLimit))
	fmt.Printf("║  Canned reply    : %-19s ║\n", summaryValue(cfg.Server.CannedReply))
	fmt.Println("╚═══════════════════════════════════════╝")
}

// summaryValue truncates v so it fits the summary box column.
func summaryValue(v string) string {
	if len(v) > 19 {
		return v[:16] + "..."
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
