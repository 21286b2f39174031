package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MihirPatel5/WhisperBrain/internal/observe"
)

// Default reconnection parameters, matching the backend's advertised
// connection preferences.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 3 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Connector is the connect slice of the protocol session a [Reconnector]
// re-establishes.
type Connector interface {
	Connect(ctx context.Context) error
}

// Reconnector watches for dropped backend connections and re-establishes
// them with bounded, exponentially backed-off retries.
//
// The coordinator signals drops via [Reconnector.NotifyDisconnect];
// [Reconnector.Monitor] runs the watch goroutine. All methods are safe for
// concurrent use.
type Reconnector struct {
	target      Connector
	onReconnect func()
	log         *slog.Logger
	metrics     *observe.Metrics

	mu         sync.Mutex
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{} // signalled when a disconnect is detected
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Target is the connection to re-establish. Required.
	Target Connector

	// MaxRetries caps reconnection attempts per drop before giving up.
	// Defaults to 5 if zero.
	MaxRetries int

	// Backoff is the initial delay between attempts. Doubles each attempt
	// up to MaxBackoff. Defaults to 3s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the backoff delay. Defaults to 30s
	// if zero.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful reconnection. May be nil.
	OnReconnect func()

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// NewReconnector creates a [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	r := &Reconnector{
		target:       cfg.Target,
		onReconnect:  cfg.OnReconnect,
		log:          log,
		metrics:      m,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
	r.SetPolicy(cfg.MaxRetries, cfg.Backoff, cfg.MaxBackoff)
	return r
}

// SetPolicy replaces the retry policy. Non-positive values select the
// defaults. The new policy takes effect on the next reconnection cycle; a
// cycle already in progress keeps the values it started with.
func (r *Reconnector) SetPolicy(maxRetries int, backoff, maxBackoff time.Duration) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	r.mu.Lock()
	r.maxRetries = maxRetries
	r.backoff = backoff
	r.maxBackoff = maxBackoff
	r.mu.Unlock()
}

// policy returns the current retry parameters.
func (r *Reconnector) policy() (maxRetries int, backoff, maxBackoff time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxRetries, r.backoff, r.maxBackoff
}

// Monitor starts watching for disconnect signals in a background goroutine.
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// NotifyDisconnect signals the monitor that the connection has been lost
// and reconnection should be attempted. Safe to call multiple times; only
// the first call per reconnection cycle has effect.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
		// Already signalled; avoid blocking.
	}
}

// Stop halts monitoring. Safe to call multiple times.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// monitorLoop waits for disconnect notifications and attempts reconnection.
func (r *Reconnector) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.attemptReconnect(ctx)
		}
	}
}

// attemptReconnect tries to reconnect with exponential backoff.
func (r *Reconnector) attemptReconnect(ctx context.Context) {
	maxRetries, currentBackoff, maxBackoff := r.policy()

	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		r.log.Info("attempting reconnection",
			"attempt", attempt,
			"max_retries", maxRetries,
			"backoff", currentBackoff,
		)

		err := r.target.Connect(ctx)
		if err == nil {
			r.metrics.RecordReconnect(ctx, "ok")
			r.log.Info("reconnection successful", "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect()
			}
			return
		}

		r.metrics.RecordReconnect(ctx, "failed")
		r.log.Warn("reconnection attempt failed",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > maxBackoff {
			currentBackoff = maxBackoff
		}
	}

	r.metrics.RecordReconnect(ctx, "gave_up")
	r.log.Error("reconnection failed after max retries", "max_retries", maxRetries)
}
