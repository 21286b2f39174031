package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// maxReplyBytes raises the read limit above the library default: spoken
	// replies arrive as single multi-megabyte binary frames.
	maxReplyBytes = 16 << 20

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

var (
	// ErrNotConnected is returned by SendUtterance while the session is not
	// in StateConnected.
	ErrNotConnected = errors.New("protocol: not connected")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("protocol: session closed")
)

// TransportError wraps a socket-level failure: dialing, reading or writing.
// It always accompanies a transition to StateError.
type TransportError struct {
	Op  string // "dial", "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return "protocol: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// State is the connection state of a [Session].
type State int

const (
	// StateDisconnected means no connection exists; either none was ever
	// made or the last one was closed deliberately.
	StateDisconnected State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the WebSocket is open and utterances may be sent.
	StateConnected

	// StateError means the last connection failed or dropped. Like
	// StateDisconnected it permits a new Connect.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is one occurrence on the session: either a decoded inbound message
// or a state transition. Message events carry the state they were observed
// in; transition events have a nil Msg.
type Event struct {
	// Msg is the decoded inbound message. Nil for pure state transitions.
	Msg Message

	// State is the session state at the time the event was emitted.
	State State

	// Err carries the transport error behind a StateError transition, nil
	// otherwise.
	Err error
}

// ── Session ────────────────────────────────────────────────────────────────

// Session owns exactly one WebSocket connection to the backend and can be
// reconnected after a drop or a deliberate Disconnect. Inbound frames are
// decoded once and delivered to the registered event handler from the reader
// goroutine; retry policy deliberately lives with the caller, never here.
type Session struct {
	url string
	log *slog.Logger

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	cancel    context.CancelFunc
	gen       int
	sessionID string
	userID    string
	handler   func(Event)
	closed    bool
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets the logger used for dropped-frame diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// New creates a Session that will dial the given ws:// or wss:// URL. The
// session starts in StateDisconnected; call [Session.Connect] to open it.
func New(url string, opts ...Option) *Session {
	s := &Session{
		url: url,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnEvent registers the handler that receives every session event. The
// handler is invoked from the session's goroutines and must not block for
// long; register it before Connect to observe the connect transitions.
func (s *Session) OnEvent(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// emit delivers an event to the registered handler, outside the lock.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fn := s.handler
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Connect dials the backend and transitions Disconnected → Connecting →
// Connected. On failure the session lands in StateError with an event
// carrying the wrapped dial error; a later Connect may try again. Calling
// Connect while already connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		s.mu.Unlock()
		return errors.New("protocol: connect already in progress")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.emit(Event{State: StateConnecting})

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		s.emit(Event{State: StateError, Err: terr})
		return terr
	}
	conn.SetReadLimit(maxReplyBytes)

	readCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		// Closed while the dial was in flight.
		s.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "session closed")
		return ErrClosed
	}
	s.conn = conn
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.state = StateConnected
	s.mu.Unlock()

	s.emit(Event{State: StateConnected})

	go s.readLoop(readCtx, conn, gen)
	go s.keepaliveLoop(readCtx, conn)

	return nil
}

// SendUtterance uploads one encoded utterance as a single binary frame.
// Valid only while Connected; otherwise it returns [ErrNotConnected].
func (s *Session) SendUtterance(ctx context.Context, wav []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageBinary, wav); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the backend-assigned session and user IDs. Both are empty
// until the first identity frame arrives.
func (s *Session) Identity() (sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.userID
}

// Disconnect deliberately closes the current connection and returns the
// session to StateDisconnected. A later Connect opens a fresh connection.
// No-op unless Connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	cancel := s.cancel
	s.conn, s.cancel = nil, nil
	s.gen++ // orphan the reader so its exit stays silent
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	s.emit(Event{State: StateDisconnected})
}

// Close permanently shuts the session down. Idempotent; afterwards Connect
// and SendUtterance return [ErrClosed].
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	cancel := s.cancel
	s.conn, s.cancel = nil, nil
	s.gen++
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	if wasConnected {
		s.emit(Event{State: StateDisconnected})
	}
	return nil
}

// ── Connection goroutines ──────────────────────────────────────────────────

// readLoop reads frames from one connection until it fails or the context is
// cancelled. A cancelled context means the disconnect was initiated locally
// and the state is already settled; anything else is a transport error.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.transportDown(gen, &TransportError{Op: "read", Err: err})
			return
		}

		switch typ {
		case websocket.MessageBinary:
			s.emit(Event{Msg: AudioReply{Payload: data}, State: StateConnected})
		case websocket.MessageText:
			for _, msg := range ParseText(data) {
				s.dispatch(msg)
			}
		}
	}
}

// dispatch forwards one decoded message as an event. Identity updates the
// stored IDs first; Unrecognized is dropped here.
func (s *Session) dispatch(msg Message) {
	switch m := msg.(type) {
	case Identity:
		s.mu.Lock()
		if m.SessionID != "" {
			s.sessionID = m.SessionID
		}
		if m.UserID != "" {
			s.userID = m.UserID
		}
		s.mu.Unlock()
		s.emit(Event{Msg: m, State: StateConnected})
	case Unrecognized:
		s.log.Debug("dropping unrecognized frame", "payload", clip(m.Raw))
	default:
		s.emit(Event{Msg: msg, State: StateConnected})
	}
}

// transportDown records a connection failure. Stale generations (a reader
// outliving a Disconnect or reconnect) are ignored.
func (s *Session) transportDown(gen int, terr *TransportError) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.conn = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.emit(Event{State: StateError, Err: terr})
}

// keepaliveLoop pings the connection to keep idle voice sessions alive. Ping
// failures are ignored; a genuinely dead connection surfaces via readLoop.
func (s *Session) keepaliveLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}

// clip trims a frame payload for debug logging.
func clip(b []byte) string {
	const max = 120
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
