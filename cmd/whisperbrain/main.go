// Command whisperbrain is the voice conversation client. It replays a WAV
// file as the microphone, endpoints utterances, exchanges them with the
// backend over WebSocket and writes the spoken replies to the output
// directory, printing the conversation as it unfolds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MihirPatel5/WhisperBrain/internal/config"
	"github.com/MihirPatel5/WhisperBrain/internal/health"
	"github.com/MihirPatel5/WhisperBrain/internal/observe"
	"github.com/MihirPatel5/WhisperBrain/internal/protocol"
	"github.com/MihirPatel5/WhisperBrain/internal/session"
	"github.com/MihirPatel5/WhisperBrain/internal/vad"
	"github.com/MihirPatel5/WhisperBrain/pkg/audio/wavfile"
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
	inputPath := flag.String("input", "", "WAV file replayed as the capture source, overriding audio.input")
	debugAddr := flag.String("listen-debug", "", "debug listener address, overriding debug.addr")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "whisperbrain: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "whisperbrain: %v\n", err)
		}
		return 1
	}
	if *inputPath != "" {
		cfg.Audio.Input = *inputPath
	}
	if *debugAddr != "" {
		cfg.Debug.Addr = *debugAddr
	}
	if cfg.Audio.Input == "" {
		fmt.Fprintln(os.Stderr, "whisperbrain: no audio input configured; set audio.input or pass -input")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	slog.Info("whisperbrain starting",
		"config", *configPath,
		"backend", cfg.Backend.URL,
		"input", cfg.Audio.Input,
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "whisperbrain"})
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

	// ── Preference store and cache ────────────────────────────────────────────
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open preference store", "err", err)
		return 1
	}
	defer closeStore()

	var syncer prefs.Syncer
	if base, err := cfg.Backend.HTTPBase(); err != nil {
		slog.Warn("preference sync disabled", "err", err)
	} else {
		syncer = prefs.NewSyncClient(base)
	}
	cache := prefs.NewCache(store, syncer, prefs.WithLogger(logger))

	// ── Backend session ───────────────────────────────────────────────────────
	sess := protocol.New(cfg.Backend.URL, protocol.WithLogger(logger))

	// ── Reconnect policy ──────────────────────────────────────────────────────
	// The config switch turns the feature on; the connection.* preferences
	// refine it, so the same document that drives the backend also drives
	// this client.
	var coord *session.Coordinator
	var rc *session.Reconnector
	reconnectSummary := "(disabled)"
	if cfg.Reconnect.Auto {
		pol := cfg.Reconnect
		doc := cache.Get(ctx)
		if doc.Connection.MaxRetries > 0 {
			pol.MaxRetries = doc.Connection.MaxRetries
		}
		if doc.Connection.ReconnectDelay > 0 {
			pol.Delay = time.Duration(doc.Connection.ReconnectDelay) * time.Second
		}
		if doc.Connection.AutoReconnect {
			rc = session.NewReconnector(session.ReconnectorConfig{
				Target:     sess,
				MaxRetries: pol.MaxRetries,
				Backoff:    pol.Delay,
				MaxBackoff: pol.MaxDelay,
				Logger:     logger,
				OnReconnect: func() {
					// Capture died with the old connection; open a fresh
					// utterance on the new one.
					err := coord.StartRecording(context.Background())
					if err != nil && !errors.Is(err, session.ErrAlreadyRecording) {
						slog.Warn("restarting recording after reconnect", "err", err)
					}
				},
			})
			reconnectSummary = fmt.Sprintf("%d retries, %s", pol.MaxRetries, pol.Delay)
		} else {
			slog.Info("auto reconnect disabled by preferences")
		}
	}

	// ── Audio I/O ─────────────────────────────────────────────────────────────
	capture := wavfile.NewProvider(cfg.Audio.Input,
		wavfile.WithFrameSize(cfg.Audio.FrameSize),
		wavfile.WithSampleRate(cfg.Audio.SampleRate),
		// Pad the file so the endpointer sees enough silence to fire even
		// when the recording ends right after the last word.
		wavfile.WithTrailingSilence(cfg.VAD.MinSilence+500*time.Millisecond),
	)
	playback, err := wavfile.NewSink(cfg.Audio.OutputDir)
	if err != nil {
		slog.Error("failed to open output directory", "err", err)
		return 1
	}

	coord = session.NewCoordinator(session.CoordinatorConfig{
		Backend:  sess,
		Capture:  capture,
		Playback: playback,
		VAD: vad.Config{
			SpeechThreshold:  cfg.VAD.SpeechThreshold,
			SilenceThreshold: cfg.VAD.SilenceThreshold,
			MinSilence:       cfg.VAD.MinSilence,
		},
		SampleRate:   cfg.Audio.SampleRate,
		ReplyTimeout: cfg.Backend.ReplyTimeout,
		Prefs:        cache,
		Reconnector:  rc,
		Logger:       logger,
	})

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(coord, rc, logLevel, config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, reconnectSummary)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return runUI(gctx, coord) })

	if cfg.Debug.Addr != "" {
		dbg := newDebugServer(cfg.Debug.Addr, coord, store)
		g.Go(func() error {
			if err := dbg.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug listener on %s: %w", cfg.Debug.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return dbg.Shutdown(drainCtx)
		})
		slog.Info("debug listener ready", "addr", cfg.Debug.Addr)
	}

	if rc != nil {
		rc.Monitor(gctx)
		defer rc.Stop()
	}

	slog.Info("session starting, press Ctrl+C to shut down")

	// Open the conversation. A failed start is not fatal when the
	// reconnector is armed: the drop it observes starts the retry cycle,
	// and a successful reconnect reopens the recording.
	if err := coord.StartRecording(ctx); err != nil {
		if rc == nil {
			slog.Error("failed to start session", "err", err)
			return 1
		}
		slog.Warn("session start failed, reconnecting", "err", err)
	}

	err = g.Wait()
	_ = sess.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
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

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyConfigChange applies the hot-reloadable slice of a config edit; the
// rest takes effect on the next start.
func applyConfigChange(coord *session.Coordinator, rc *session.Reconnector, level *slog.LevelVar, d config.ConfigDiff) {
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := coord.UpdateVAD(ctx, vad.Config{
			SpeechThreshold:  d.NewVAD.SpeechThreshold,
			SilenceThreshold: d.NewVAD.SilenceThreshold,
			MinSilence:       d.NewVAD.MinSilence,
		})
		if err != nil {
			slog.Warn("applying vad settings failed", "err", err)
		}
	}
	if d.ReconnectChanged {
		if rc == nil {
			slog.Info("reconnect settings changed; enabling auto reconnect needs a restart")
			return
		}
		rc.SetPolicy(d.NewReconnect.MaxRetries, d.NewReconnect.Delay, d.NewReconnect.MaxDelay)
		slog.Info("reconnect policy updated",
			"max_retries", d.NewReconnect.MaxRetries,
			"delay", d.NewReconnect.Delay,
			"max_delay", d.NewReconnect.MaxDelay,
		)
	}
}

// ── Event printing ────────────────────────────────────────────────────────────

// runUI prints the coordinator's event stream as conversation lines until
// the session ends.
func runUI(ctx context.Context, coord *session.Coordinator) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-coord.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventState:
		fmt.Printf("[session] %s\n", ev.State)
	case session.EventRecording:
		if ev.Recording {
			fmt.Println("[session] listening")
		} else {
			fmt.Println("[session] utterance captured")
		}
	case session.EventPhase:
		fmt.Printf("[backend] %s\n", ev.Phase)
	case session.EventExchange:
		fmt.Printf("\nYou:       %s\nAssistant: %s\n\n", ev.User, ev.Assistant)
	case session.EventReply:
		fmt.Printf("[session] reply audio received, %d bytes\n", ev.ReplyBytes)
	case session.EventError:
		fmt.Printf("[session] error: %v\n", ev.Err)
	}
}

// ── Debug listener ────────────────────────────────────────────────────────────

// newDebugServer assembles the diagnostics listener: health probes plus the
// Prometheus scrape endpoint.
func newDebugServer(addr string, coord *session.Coordinator, store prefs.Store) *http.Server {
	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "backend", Check: func(context.Context) error {
			if st := coord.State(); st != protocol.StateConnected {
				return fmt.Errorf("backend %s", st)
			}
			return nil
		}},
		health.Checker{Name: "prefs", Check: func(ctx context.Context) error {
			if _, err := store.Load(ctx); err != nil && !errors.Is(err, prefs.ErrNotFound) {
				return err
			}
			return nil
		}},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, reconnect string) {
	storeKind := cfg.Prefs.Store
	if storeKind == "" {
		storeKind = config.StoreMemory
	}
	debug := cfg.Debug.Addr
	if debug == "" {
		debug = "(disabled)"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      whisperbrain, startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Backend         : %-19s ║\n", summaryValue(cfg.Backend.URL))
	fmt.Printf("║  Input           : %-19s ║\n", summaryValue(cfg.Audio.Input))
	fmt.Printf("║  Output dir      : %-19s ║\n", summaryValue(cfg.Audio.OutputDir))
	fmt.Printf("║  Prefs store     : %-19s ║\n", summaryValue(string(storeKind)))
	fmt.Printf("║  Reconnect       : %-19s ║\n", summaryValue(reconnect))
	fmt.Printf("║  Debug listener  : %-19s ║\n", summaryValue(debug))
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

// newLogger builds the process logger with a swappable level, so the config
// watcher can raise or lower verbosity without a restart.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
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
