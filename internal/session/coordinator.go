// Package session coordinates one voice conversation: it owns the capture
// pipeline, the endpointing decision, the conversation transcript and the
// utterance/reply exchange against the backend connection.
//
// The central type is [Coordinator]. All mutable state lives on its run
// loop: capture frames, socket events and user intents are posted to one
// channel and handled strictly in arrival order, so the buffer, the
// endpointer and the transcript need no locks. Blocking work (dialing,
// opening the capture device, the socket write, playback) runs on short
// helper goroutines that report back through the same channel; the loop
// itself never posts to its own channel, which is what makes the blocking
// posts from those helpers safe.
//
// The [Reconnector] complements the coordinator: the coordinator signals
// transport drops, the reconnector re-dials with bounded backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MihirPatel5/WhisperBrain/internal/observe"
	"github.com/MihirPatel5/WhisperBrain/internal/protocol"
	"github.com/MihirPatel5/WhisperBrain/internal/vad"
	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

const (
	// loopBuffer sizes the run loop's inbox. Producers block when it fills,
	// so it only needs to absorb bursts, not bound memory.
	loopBuffer = 256

	// eventBuffer sizes the outbound UI stream. Events beyond it are
	// dropped rather than ever stalling audio handling.
	eventBuffer = 128

	defaultSampleRate = 16000
)

var (
	// ErrAlreadyRecording rejects a start intent while capture is active.
	ErrAlreadyRecording = errors.New("session: recording already in progress")

	// ErrExchangePending rejects a start intent while a sent utterance is
	// still awaiting its reply.
	ErrExchangePending = errors.New("session: utterance exchange still pending")

	// ErrNotRecording rejects a stop intent when no capture is active.
	ErrNotRecording = errors.New("session: no recording in progress")

	// ErrNoAudio reports a flush that produced an empty utterance. Nothing
	// is sent.
	ErrNoAudio = errors.New("session: no audio captured")

	// ErrReplyTimeout reports an exchange abandoned because the backend did
	// not reply within the configured window.
	ErrReplyTimeout = errors.New("session: reply timed out")

	// ErrStopped is returned for intents issued after the run loop exited.
	ErrStopped = errors.New("session: coordinator stopped")
)

// Backend is the slice of the protocol session the coordinator drives.
// A *protocol.Session satisfies it.
type Backend interface {
	Connect(ctx context.Context) error
	SendUtterance(ctx context.Context, wav []byte) error
	Disconnect()
	State() protocol.State
	OnEvent(fn func(protocol.Event))
}

// EventKind discriminates coordinator events.
type EventKind int

const (
	// EventState reports a connection state change.
	EventState EventKind = iota

	// EventRecording reports capture starting or stopping.
	EventRecording

	// EventPhase relays a backend pipeline status line.
	EventPhase

	// EventExchange reports a completed (user, assistant) pair appended to
	// the transcript.
	EventExchange

	// EventReply reports a received spoken reply.
	EventReply

	// EventError reports a non-fatal fault.
	EventError
)

// String returns the kind's name for logs.
func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventRecording:
		return "recording"
	case EventPhase:
		return "phase"
	case EventExchange:
		return "exchange"
	case EventReply:
		return "reply"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one entry in the coordinator's outbound stream. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	// State is the connection state after an EventState transition.
	State protocol.State

	// Recording reports whether capture is active after an EventRecording
	// change.
	Recording bool

	// Phase is the backend's pipeline status line for EventPhase.
	Phase string

	// User and Assistant carry the pair appended for EventExchange.
	User      string
	Assistant string

	// ReplyBytes is the payload size for EventReply.
	ReplyBytes int

	// Err is the fault for EventError.
	Err error
}

// Snapshot is a point-in-time view of the coordinator's state. Because
// intents and events are served strictly in arrival order, a snapshot taken
// after a burst of events reflects every entry the loop already drained.
type Snapshot struct {
	State          protocol.State
	Recording      bool
	PendingReply   bool
	BufferedFrames int
	Turns          []ConversationTurn
}

// CoordinatorConfig assembles a [Coordinator]'s dependencies and tuning.
type CoordinatorConfig struct {
	// Backend is the protocol session to drive. Required.
	Backend Backend

	// Capture is the microphone-like frame source. Required.
	Capture audio.CaptureProvider

	// Playback plays received replies. Required.
	Playback audio.PlaybackSink

	// VAD tunes utterance endpointing.
	VAD vad.Config

	// SampleRate is the encode rate used when captured frames do not
	// declare their own. Defaults to 16000.
	SampleRate int

	// ReplyTimeout bounds how long a sent utterance may await its reply.
	// Zero disables the timeout.
	ReplyTimeout time.Duration

	// Prefs supplies the user preference document. Optional; when set,
	// features.vad_enabled gates automatic endpointing per recording.
	Prefs *prefs.Cache

	// Reconnector, when set, is signalled on transport drops so it can
	// re-establish the connection.
	Reconnector *Reconnector

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Coordinator orchestrates one voice conversation end to end: start/stop
// intents, frame accumulation, endpointing, encoding, the exchange with the
// backend and reply playback. Construct with [NewCoordinator], drive with
// [Coordinator.Run].
type Coordinator struct {
	backend  Backend
	capture  audio.CaptureProvider
	playback audio.PlaybackSink
	prefs    *prefs.Cache
	reconn   *Reconnector
	log      *slog.Logger
	metrics  *observe.Metrics

	sampleRate   int
	replyTimeout time.Duration

	loop   chan loopMsg
	events chan Event
	done   chan struct{}

	// Run-loop-owned state. Only Run's goroutine touches these.
	endpoint   *vad.Endpointer
	vadEnabled bool
	buffer     audio.CaptureBuffer
	transcript Transcript
	heldText   string
	recGen     uint64
	recording  bool
	recStart   time.Time
	starting   *startIntent
	pending    *pendingExchange
	exchSeq    uint64
	connUp     bool
	sawDrop    bool
	lastPhase  string
}

// startIntent is a start-recording request whose reply is deferred until
// connect and capture setup finish.
type startIntent struct {
	reply chan error
}

// pendingExchange tracks the one in-flight utterance/reply round trip.
type pendingExchange struct {
	id      uint64
	sentAt  time.Time
	replied bool
	timer   *time.Timer
}

// ─── Loop messages ────────────────────────────────────────────────────────────

type loopMsg interface{ isLoopMsg() }

type startMsg struct {
	ctx   context.Context
	reply chan error
}

// startedMsg reports the outcome of the async connect + capture setup.
type startedMsg struct {
	frames <-chan audio.AudioFrame
	err    error
}

type stopMsg struct {
	reply chan error
}

type disconnectMsg struct {
	reply chan struct{}
}

type clearMsg struct {
	reply chan struct{}
}

type vadMsg struct {
	cfg vad.Config
}

type frameMsg struct {
	gen   uint64
	frame audio.AudioFrame
}

// captureEndMsg reports that the frame channel closed on its own, meaning a
// finite source (file replay) ran out.
type captureEndMsg struct {
	gen uint64
}

type protoMsg struct {
	ev protocol.Event
}

type sendDoneMsg struct {
	id  uint64
	err error
}

type playDoneMsg struct {
	id  uint64
	err error
}

type timeoutMsg struct {
	id uint64
}

type snapshotMsg struct {
	reply chan Snapshot
}

func (startMsg) isLoopMsg()      {}
func (startedMsg) isLoopMsg()    {}
func (stopMsg) isLoopMsg()       {}
func (disconnectMsg) isLoopMsg() {}
func (clearMsg) isLoopMsg()      {}
func (vadMsg) isLoopMsg()        {}
func (frameMsg) isLoopMsg()      {}
func (captureEndMsg) isLoopMsg() {}
func (protoMsg) isLoopMsg()      {}
func (sendDoneMsg) isLoopMsg()   {}
func (playDoneMsg) isLoopMsg()   {}
func (timeoutMsg) isLoopMsg()    {}
func (snapshotMsg) isLoopMsg()   {}

// ─── Construction and lifecycle ───────────────────────────────────────────────

// NewCoordinator wires a coordinator from cfg. Call [Coordinator.Run] to
// start serving intents.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	c := &Coordinator{
		backend:      cfg.Backend,
		capture:      cfg.Capture,
		playback:     cfg.Playback,
		prefs:        cfg.Prefs,
		reconn:       cfg.Reconnector,
		log:          log,
		metrics:      m,
		sampleRate:   rate,
		replyTimeout: cfg.ReplyTimeout,
		loop:         make(chan loopMsg, loopBuffer),
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		endpoint:     vad.NewEndpointer(cfg.VAD),
		vadEnabled:   true,
	}
	c.backend.OnEvent(func(ev protocol.Event) { c.post(protoMsg{ev: ev}) })
	return c
}

// Run serves intents and events until ctx is cancelled. It owns every piece
// of mutable session state; nothing here needs a lock because all mutation
// happens on this goroutine, in arrival order.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.shutdown(ctx)
			return ctx.Err()
		case msg := <-c.loop:
			c.handle(ctx, msg)
		}
	}
}

func (c *Coordinator) shutdown(ctx context.Context) {
	if c.recording {
		c.recGen++
		c.recording = false
		if err := c.capture.Stop(); err != nil {
			c.log.Warn("stopping capture on shutdown", "error", err)
		}
	}
	if c.starting != nil {
		c.starting.reply <- ErrStopped
		c.starting = nil
	}
	c.closePending(ctx)
}

// Events returns the coordinator's outbound stream. A single consumer
// should drain it for the life of the session; events overflowing the
// buffer are dropped, never queued against the run loop.
func (c *Coordinator) Events() <-chan Event { return c.events }

// post delivers msg to the run loop. Every producer runs on its own
// goroutine and the loop never posts to itself, so blocking here cannot
// deadlock; the done guard releases producers once the loop has exited.
func (c *Coordinator) post(msg loopMsg) {
	select {
	case c.loop <- msg:
	case <-c.done:
	}
}

// send is post with caller-side cancellation, for intents.
func (c *Coordinator) send(ctx context.Context, msg loopMsg) error {
	select {
	case c.loop <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// emit publishes ev to the UI stream without blocking the loop. A slow or
// absent consumer costs dropped events, not stalled audio handling.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Debug("dropping coordinator event", "kind", ev.Kind)
	}
}

// ─── Intents ──────────────────────────────────────────────────────────────────

// StartRecording begins capturing a new utterance, connecting to the
// backend first when necessary. The endpointer and capture buffer are reset
// so nothing from a previous utterance leaks in.
//
// Fails with [ErrExchangePending] while a sent utterance still awaits its
// reply and with [ErrAlreadyRecording] while capture is active. ctx bounds
// connection setup, not the recording itself.
func (c *Coordinator) StartRecording(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, startMsg{ctx: ctx, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// StopRecording ends the active capture and flushes it through the same
// path an automatic endpoint takes: a non-empty utterance is encoded and
// sent, an empty one is discarded with [ErrNoAudio]. Unlike an automatic
// stop, trailing silence is kept, since the user chose the cut point.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, stopMsg{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Connect establishes the backend connection without starting a recording.
// Usually unnecessary: StartRecording connects on demand.
func (c *Coordinator) Connect(ctx context.Context) error {
	return c.backend.Connect(ctx)
}

// Disconnect aborts any active recording without sending it and initiates
// connection teardown. The Disconnected state event confirms completion.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := c.send(ctx, disconnectMsg{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// ClearTranscript discards the conversation history.
func (c *Coordinator) ClearTranscript(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := c.send(ctx, clearMsg{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// UpdateVAD swaps the endpointer configuration, for live tuning. Takes
// effect from the next frame; an utterance already in progress restarts its
// endpoint detection.
func (c *Coordinator) UpdateVAD(ctx context.Context, cfg vad.Config) error {
	return c.send(ctx, vadMsg{cfg: cfg})
}

// Snapshot returns a consistent view of the session state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		return Snapshot{}, ErrStopped
	}
}

// Transcript returns a copy of the conversation history.
func (c *Coordinator) Transcript(ctx context.Context) ([]ConversationTurn, error) {
	s, err := c.Snapshot(ctx)
	return s.Turns, err
}

// State reports the protocol connection state.
func (c *Coordinator) State() protocol.State { return c.backend.State() }

// ─── Run loop ─────────────────────────────────────────────────────────────────

func (c *Coordinator) handle(ctx context.Context, msg loopMsg) {
	switch m := msg.(type) {
	case startMsg:
		c.handleStart(ctx, m)
	case startedMsg:
		c.handleStarted(m)
	case stopMsg:
		m.reply <- c.handleStop(ctx)
	case disconnectMsg:
		c.handleDisconnect(m)
	case clearMsg:
		c.transcript.Clear()
		m.reply <- struct{}{}
	case vadMsg:
		c.endpoint = vad.NewEndpointer(m.cfg)
		c.log.Info("vad configuration updated",
			"speech_threshold", m.cfg.SpeechThreshold,
			"silence_threshold", m.cfg.SilenceThreshold,
			"min_silence", m.cfg.MinSilence,
		)
	case frameMsg:
		c.handleFrame(ctx, m)
	case captureEndMsg:
		if m.gen == c.recGen && c.recording {
			c.log.Info("capture source exhausted")
			c.finishRecording(ctx, false)
		}
	case protoMsg:
		c.handleProtocol(ctx, m.ev)
	case sendDoneMsg:
		c.handleSendDone(ctx, m)
	case playDoneMsg:
		c.handlePlayDone(ctx, m)
	case timeoutMsg:
		c.handleTimeout(ctx, m)
	case snapshotMsg:
		m.reply <- Snapshot{
			State:          c.backend.State(),
			Recording:      c.recording,
			PendingReply:   c.pending != nil,
			BufferedFrames: c.buffer.Len(),
			Turns:          c.transcript.Turns(),
		}
	}
}

func (c *Coordinator) handleStart(runCtx context.Context, m startMsg) {
	switch {
	case c.pending != nil:
		m.reply <- ErrExchangePending
		return
	case c.recording || c.starting != nil:
		m.reply <- ErrAlreadyRecording
		return
	}

	c.vadEnabled = true
	if c.prefs != nil {
		c.vadEnabled = c.prefs.Get(m.ctx).Features.VADEnabled
	}

	c.starting = &startIntent{reply: m.reply}
	go func() {
		// The intent ctx bounds dialing; capture is tied to the run loop's
		// lifetime instead so it survives the caller returning.
		if err := c.backend.Connect(m.ctx); err != nil {
			c.post(startedMsg{err: fmt.Errorf("connect backend: %w", err)})
			return
		}
		frames, err := c.capture.Start(runCtx)
		if err != nil {
			c.post(startedMsg{err: &audio.CaptureError{Op: "start", Err: err}})
			return
		}
		c.post(startedMsg{frames: frames})
	}()
}

func (c *Coordinator) handleStarted(m startedMsg) {
	intent := c.starting
	c.starting = nil
	if intent == nil {
		// Shutdown already answered the caller.
		if m.err == nil {
			_ = c.capture.Stop()
		}
		return
	}
	if m.err != nil {
		c.emit(Event{Kind: EventError, Err: m.err})
		intent.reply <- m.err
		return
	}

	c.recGen++
	c.recording = true
	c.recStart = time.Now()
	c.endpoint.Reset()
	c.buffer.Flush()
	go c.pump(c.recGen, m.frames)

	c.log.Info("recording started", "vad_enabled", c.vadEnabled)
	c.emit(Event{Kind: EventRecording, Recording: true})
	intent.reply <- nil
}

// pump forwards capture frames onto the loop. One pump runs per recording;
// gen lets the loop discard frames that race a stop.
func (c *Coordinator) pump(gen uint64, frames <-chan audio.AudioFrame) {
	for f := range frames {
		select {
		case c.loop <- frameMsg{gen: gen, frame: f}:
		case <-c.done:
			return
		}
	}
	select {
	case c.loop <- captureEndMsg{gen: gen}:
	case <-c.done:
	}
}

func (c *Coordinator) handleFrame(ctx context.Context, m frameMsg) {
	if m.gen != c.recGen || !c.recording {
		return // raced a stop; that utterance was already flushed
	}
	c.buffer.Append(m.frame)
	c.metrics.FramesCaptured.Add(ctx, 1)

	// Frame timestamps drive the endpoint clock, so a file replayed faster
	// than real time endpoints exactly like a live stream. Providers that
	// leave Timestamp zero fall back to arrival time.
	now := time.Now()
	if m.frame.Timestamp > 0 {
		now = c.recStart.Add(m.frame.Timestamp)
	}
	if c.vadEnabled && c.endpoint.Process(m.frame, now) {
		c.log.Info("utterance endpoint detected", "frames", c.buffer.Len())
		c.finishRecording(ctx, true)
	}
}

func (c *Coordinator) handleStop(ctx context.Context) error {
	if !c.recording {
		return ErrNotRecording
	}
	return c.finishRecording(ctx, false)
}

// finishRecording is the single flush path shared by automatic endpointing
// (vadFired), an explicit stop intent and capture source exhaustion. It
// decides between sending and discarding, and opens the pending exchange
// before the socket write is spawned so backpressure applies immediately.
func (c *Coordinator) finishRecording(ctx context.Context, vadFired bool) error {
	c.recGen++
	c.recording = false
	if err := c.capture.Stop(); err != nil {
		c.emit(Event{Kind: EventError, Err: &audio.CaptureError{Op: "stop", Err: err}})
	}
	u := c.buffer.Flush()
	c.emit(Event{Kind: EventRecording, Recording: false})

	if vadFired {
		// The hold period that triggered the endpoint is padding, not
		// speech; the backend should not have to transcribe it.
		u = vad.TrimTrailingSilence(u, c.endpoint.SilenceThreshold())
	}

	if u.SampleCount() == 0 {
		c.metrics.RecordUtterance(ctx, "discarded", 0)
		c.log.Info("discarding empty utterance")
		c.emit(Event{Kind: EventError, Err: ErrNoAudio})
		return ErrNoAudio
	}
	if st := c.backend.State(); st != protocol.StateConnected {
		c.metrics.RecordUtterance(ctx, "discarded", u.Duration().Seconds())
		err := fmt.Errorf("cannot send utterance while %s: %w", st, protocol.ErrNotConnected)
		c.log.Warn("discarding utterance", "state", st, "duration", u.Duration())
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	rate := c.sampleRate
	if r := u[0].SampleRate; r > 0 {
		rate = r
	}
	wav, err := audio.EncodeWAV(u, rate)
	if err != nil {
		c.metrics.RecordUtterance(ctx, "discarded", u.Duration().Seconds())
		err = fmt.Errorf("encode utterance: %w", err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	c.exchSeq++
	exch := &pendingExchange{id: c.exchSeq, sentAt: time.Now()}
	if c.replyTimeout > 0 {
		id := exch.id
		exch.timer = time.AfterFunc(c.replyTimeout, func() { c.post(timeoutMsg{id: id}) })
	}
	c.pending = exch
	c.metrics.PendingExchanges.Add(ctx, 1)
	c.metrics.RecordUtterance(ctx, "sent", u.Duration().Seconds())

	go func(id uint64, payload []byte) {
		err := c.backend.SendUtterance(ctx, payload)
		c.post(sendDoneMsg{id: id, err: err})
	}(exch.id, wav)

	c.log.Info("sending utterance",
		"bytes", len(wav),
		"duration", u.Duration(),
		"sample_rate", rate,
	)
	return nil
}

func (c *Coordinator) handleDisconnect(m disconnectMsg) {
	if c.recording {
		c.recGen++
		c.recording = false
		_ = c.capture.Stop()
		c.buffer.Flush()
		c.emit(Event{Kind: EventRecording, Recording: false})
	}
	go c.backend.Disconnect()
	m.reply <- struct{}{}
}

func (c *Coordinator) handleSendDone(ctx context.Context, m sendDoneMsg) {
	if m.err != nil {
		c.log.Warn("utterance send failed", "error", m.err)
		if c.pending != nil && c.pending.id == m.id {
			c.closePending(ctx)
		}
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("send utterance: %w", m.err)})
		return
	}
	c.metrics.RecordWSMessage(ctx, "out", "utterance")
}

func (c *Coordinator) handlePlayDone(ctx context.Context, m playDoneMsg) {
	if m.err != nil {
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("play reply: %w", m.err)})
	}
	if c.pending != nil && c.pending.id == m.id {
		c.log.Debug("exchange complete", "exchange", m.id)
		c.closePending(ctx)
	}
}

func (c *Coordinator) handleTimeout(ctx context.Context, m timeoutMsg) {
	if c.pending == nil || c.pending.id != m.id || c.pending.replied {
		return // the reply won the race
	}
	c.log.Warn("abandoning exchange, no reply before timeout", "timeout", c.replyTimeout)
	c.closePending(ctx)
	c.metrics.RecordBackendError(ctx, "timeout")
	c.emit(Event{Kind: EventError, Err: fmt.Errorf("%w after %s", ErrReplyTimeout, c.replyTimeout)})
}

// closePending resolves the in-flight exchange, releasing the backpressure
// that blocks new recordings. The held transcription dies with it.
func (c *Coordinator) closePending(ctx context.Context) {
	if c.pending == nil {
		return
	}
	if c.pending.timer != nil {
		c.pending.timer.Stop()
	}
	c.pending = nil
	c.heldText = ""
	c.metrics.PendingExchanges.Add(ctx, -1)
}

// ─── Protocol events ──────────────────────────────────────────────────────────

func (c *Coordinator) handleProtocol(ctx context.Context, ev protocol.Event) {
	if ev.Msg != nil {
		c.handleMessage(ctx, ev.Msg)
		return
	}
	switch ev.State {
	case protocol.StateConnected:
		if !c.connUp {
			c.connUp = true
			c.metrics.SessionConnected.Add(ctx, 1)
		}
		if c.sawDrop {
			// The backend allocates a fresh conversation per socket; the
			// old transcript no longer matches anything it remembers.
			c.sawDrop = false
			c.transcript.Clear()
			c.closePending(ctx)
			c.log.Info("reconnected, conversation context reset")
		}
		c.emit(Event{Kind: EventState, State: ev.State})
	case protocol.StateConnecting:
		c.emit(Event{Kind: EventState, State: ev.State})
	case protocol.StateDisconnected, protocol.StateError:
		c.handleDrop(ctx, ev)
	}
}

func (c *Coordinator) handleDrop(ctx context.Context, ev protocol.Event) {
	if c.connUp {
		c.connUp = false
		c.metrics.SessionConnected.Add(ctx, -1)
	}
	c.sawDrop = true

	if c.pending != nil {
		c.closePending(ctx)
		if ev.Err != nil {
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("reply lost, connection dropped: %w", ev.Err)})
		}
	} else if ev.Err != nil {
		c.emit(Event{Kind: EventError, Err: ev.Err})
	}

	if ev.Err != nil && c.reconn != nil {
		c.reconn.NotifyDisconnect()
	}
	c.emit(Event{Kind: EventState, State: ev.State})
}

func (c *Coordinator) handleMessage(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Identity:
		c.metrics.RecordWSMessage(ctx, "in", "identity")
		c.log.Info("backend assigned identity", "session_id", m.SessionID, "user_id", m.UserID)
	case protocol.Status:
		c.metrics.RecordWSMessage(ctx, "in", "status")
		c.handleStatus(ctx, m)
	case protocol.BackendError:
		c.metrics.RecordWSMessage(ctx, "in", "error")
		c.metrics.RecordBackendError(ctx, phaseLabel(c.lastPhase))
		c.log.Warn("backend reported error", "error", m.Message)
		// The connection stays up, but this exchange will never complete.
		c.closePending(ctx)
		c.emit(Event{Kind: EventError, Err: m})
	case protocol.AudioReply:
		c.metrics.RecordWSMessage(ctx, "in", "audio")
		c.handleReply(ctx, m)
	}
}

// handleStatus relays backend phases and grows the transcript. The backend
// reports the transcription and the reply text in separate frames; the
// transcription is held until its reply text arrives so the transcript only
// ever gains complete (user, assistant) pairs. A status carrying both at
// once is appended directly.
func (c *Coordinator) handleStatus(ctx context.Context, m protocol.Status) {
	c.lastPhase = m.Phase

	switch {
	case m.Text != "" && m.Response != "":
		c.appendExchange(m.Text, m.Response)
	case m.Text != "":
		c.heldText = m.Text
	case m.Response != "":
		if c.heldText != "" {
			c.appendExchange(c.heldText, m.Response)
		}
	}

	if m.Phase == protocol.PhaseNoSpeech {
		// The backend heard nothing; no reply will follow.
		c.closePending(ctx)
	}
	c.emit(Event{Kind: EventPhase, Phase: m.Phase})
}

func (c *Coordinator) appendExchange(user, assistant string) {
	c.heldText = ""
	c.transcript.AppendExchange(user, assistant)
	c.emit(Event{Kind: EventExchange, User: user, Assistant: assistant})
}

// handleReply routes a spoken reply to playback. The exchange resolves when
// playback finishes, not on receipt: recording over the assistant's own
// voice would feed the reply straight back into the next utterance.
func (c *Coordinator) handleReply(ctx context.Context, m protocol.AudioReply) {
	c.log.Info("audio reply received", "bytes", len(m.Payload))
	c.emit(Event{Kind: EventReply, ReplyBytes: len(m.Payload)})

	var id uint64
	if c.pending != nil {
		c.pending.replied = true
		if c.pending.timer != nil {
			c.pending.timer.Stop()
		}
		c.metrics.ExchangeDuration.Record(ctx, time.Since(c.pending.sentAt).Seconds())
		id = c.pending.id
	}
	go func(id uint64, payload []byte) {
		err := c.playback.Play(ctx, payload)
		c.post(playDoneMsg{id: id, err: err})
	}(id, m.Payload)
}

// phaseLabel compresses the backend's display phases into low-cardinality
// metric attribute values.
func phaseLabel(phase string) string {
	switch phase {
	case protocol.PhaseTranscribing:
		return "stt"
	case protocol.PhaseThinking:
		return "llm"
	case protocol.PhaseSpeaking:
		return "tts"
	case "":
		return "none"
	default:
		return "other"
	}
}
