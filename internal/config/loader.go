package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown fields are rejected. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Log
	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	// Backend
	if cfg.Backend.URL == "" {
		slog.Warn("backend.url is empty; the client will not be able to connect")
	} else if _, err := cfg.Backend.HTTPBase(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Backend.ReplyTimeout < 0 {
		errs = append(errs, fmt.Errorf("backend.reply_timeout %v must not be negative", cfg.Backend.ReplyTimeout))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// VAD
	if cfg.VAD.SpeechThreshold <= 0 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %g must be positive", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %g must be positive", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SpeechThreshold > 0 && cfg.VAD.SilenceThreshold > 0 && cfg.VAD.SilenceThreshold >= cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %g must be below vad.speech_threshold %g", cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.MinSilence <= 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence %v must be positive", cfg.VAD.MinSilence))
	}

	// Reconnect
	if cfg.Reconnect.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries %d must not be negative", cfg.Reconnect.MaxRetries))
	}
	if cfg.Reconnect.Delay < 0 {
		errs = append(errs, fmt.Errorf("reconnect.delay %v must not be negative", cfg.Reconnect.Delay))
	}
	if cfg.Reconnect.MaxDelay != 0 && cfg.Reconnect.MaxDelay < cfg.Reconnect.Delay {
		errs = append(errs, fmt.Errorf("reconnect.max_delay %v must not be below reconnect.delay %v", cfg.Reconnect.MaxDelay, cfg.Reconnect.Delay))
	}

	// Prefs
	if cfg.Prefs.Store != "" && !cfg.Prefs.Store.IsValid() {
		errs = append(errs, fmt.Errorf("prefs.store %q is invalid; valid values: memory, file, redis, postgres", cfg.Prefs.Store))
	}
	switch cfg.Prefs.Store {
	case StoreFile:
		if cfg.Prefs.Path == "" {
			errs = append(errs, errors.New("prefs.path is required when prefs.store is file"))
		}
	case StoreRedis:
		if cfg.Prefs.Redis.Addr == "" {
			errs = append(errs, errors.New("prefs.redis.addr is required when prefs.store is redis"))
		}
	case StorePostgres:
		if cfg.Prefs.Postgres.DSN == "" {
			errs = append(errs, errors.New("prefs.postgres.dsn is required when prefs.store is postgres"))
		}
	}

	// Server
	if cfg.Server.Rate.RPS < 0 {
		errs = append(errs, fmt.Errorf("server.rate.rps %g must not be negative", cfg.Server.Rate.RPS))
	}
	if cfg.Server.Rate.RPS > 0 && cfg.Server.Rate.Burst <= 0 {
		errs = append(errs, fmt.Errorf("server.rate.burst %d must be positive when server.rate.rps is set", cfg.Server.Rate.Burst))
	}

	return errors.Join(errs...)
}
