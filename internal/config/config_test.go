package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MihirPatel5/WhisperBrain/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
log:
  level: debug

backend:
  url: wss://voice.example.com/voice
  reply_timeout: 45s

audio:
  sample_rate: 48000
  frame_size: 1024
  input: testdata/hello.wav
  output_dir: /tmp/replies

vad:
  speech_threshold: 0.03
  silence_threshold: 0.01
  min_silence: 2s

reconnect:
  auto: false
  max_retries: 8
  delay: 1s
  max_delay: 20s

prefs:
  store: redis
  redis:
    addr: redis.example.com:6379
    password: hunter2
    db: 3

debug:
  addr: 127.0.0.1:9090

server:
  addr: ":9000"
  canned_reply: "Copy that."
  rate:
    rps: 1.5
    burst: 10
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != config.LogDebug {
		t.Errorf("log.level: got %q, want %q", cfg.Log.Level, config.LogDebug)
	}
	if cfg.Backend.URL != "wss://voice.example.com/voice" {
		t.Errorf("backend.url: got %q", cfg.Backend.URL)
	}
	if cfg.Backend.ReplyTimeout != 45*time.Second {
		t.Errorf("backend.reply_timeout: got %v, want 45s", cfg.Backend.ReplyTimeout)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.FrameSize != 1024 {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Audio.Input != "testdata/hello.wav" {
		t.Errorf("audio.input: got %q", cfg.Audio.Input)
	}
	if cfg.VAD.SpeechThreshold != 0.03 || cfg.VAD.SilenceThreshold != 0.01 {
		t.Errorf("vad thresholds: got %+v", cfg.VAD)
	}
	if cfg.VAD.MinSilence != 2*time.Second {
		t.Errorf("vad.min_silence: got %v, want 2s", cfg.VAD.MinSilence)
	}
	if cfg.Reconnect.Auto {
		t.Error("reconnect.auto: got true, want false")
	}
	if cfg.Reconnect.MaxRetries != 8 {
		t.Errorf("reconnect.max_retries: got %d, want 8", cfg.Reconnect.MaxRetries)
	}
	if cfg.Prefs.Store != config.StoreRedis {
		t.Errorf("prefs.store: got %q, want redis", cfg.Prefs.Store)
	}
	if cfg.Prefs.Redis.Addr != "redis.example.com:6379" || cfg.Prefs.Redis.DB != 3 {
		t.Errorf("prefs.redis: got %+v", cfg.Prefs.Redis)
	}
	if cfg.Debug.Addr != "127.0.0.1:9090" {
		t.Errorf("debug.addr: got %q", cfg.Debug.Addr)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("server.addr: got %q", cfg.Server.Addr)
	}
	if cfg.Server.CannedReply != "Copy that." {
		t.Errorf("server.canned_reply: got %q", cfg.Server.CannedReply)
	}
	if cfg.Server.Rate.RPS != 1.5 || cfg.Server.Rate.Burst != 10 {
		t.Errorf("server.rate: got %+v", cfg.Server.Rate)
	}
}

func TestLoadFromReader_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}

	want := config.Default()
	if cfg.Log.Level != want.Log.Level {
		t.Errorf("log.level: got %q, want default %q", cfg.Log.Level, want.Log.Level)
	}
	if cfg.VAD != want.VAD {
		t.Errorf("vad: got %+v, want defaults %+v", cfg.VAD, want.VAD)
	}
	if cfg.Reconnect != want.Reconnect {
		t.Errorf("reconnect: got %+v, want defaults %+v", cfg.Reconnect, want.Reconnect)
	}
	if cfg.Prefs.Store != config.StoreFile || cfg.Prefs.Path != "preferences.json" {
		t.Errorf("prefs: got %+v, want file/preferences.json", cfg.Prefs)
	}
}

func TestLoadFromReader_PartialOverridesDefaults(t *testing.T) {
	yaml := `
vad:
  speech_threshold: 0.05
  silence_threshold: 0.04
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VAD.SpeechThreshold != 0.05 {
		t.Errorf("vad.speech_threshold: got %g, want 0.05", cfg.VAD.SpeechThreshold)
	}
	// Untouched fields keep their defaults.
	if cfg.VAD.MinSilence != 1500*time.Millisecond {
		t.Errorf("vad.min_silence: got %v, want default 1.5s", cfg.VAD.MinSilence)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("audio.sample_rate: got %d, want default 16000", cfg.Audio.SampleRate)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
audio:
  sample_rate: 16000
  bitrate: 320
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "bitrate") {
		t.Errorf("error should mention the unknown field, got: %v", err)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := config.Validate(config.Default()); err != nil {
		t.Errorf("Validate(Default()) = %v, want nil", err)
	}
}

// ── Derived values ───────────────────────────────────────────────────────────

func TestBackendHTTPBase(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"ws://localhost:8000/voice", "http://localhost:8000", false},
		{"wss://voice.example.com/voice", "https://voice.example.com", false},
		{"http://localhost:8000", "http://localhost:8000", false},
		{"https://voice.example.com/api?x=1", "https://voice.example.com", false},
		{"ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			b := config.BackendConfig{URL: tt.url}
			got, err := b.HTTPBase()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("HTTPBase(%q) = %q, want error", tt.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("HTTPBase(%q): %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("HTTPBase(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

// ── Enum types ───────────────────────────────────────────────────────────────

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`LogLevel("verbose").IsValid() = true, want false`)
	}
}

func TestStoreKindIsValid(t *testing.T) {
	for _, k := range []config.StoreKind{config.StoreMemory, config.StoreFile, config.StoreRedis, config.StorePostgres} {
		if !k.IsValid() {
			t.Errorf("StoreKind(%q).IsValid() = false, want true", k)
		}
	}
	if config.StoreKind("sqlite").IsValid() {
		t.Error(`StoreKind("sqlite").IsValid() = true, want false`)
	}
}
