package devserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MihirPatel5/WhisperBrain/internal/protocol"
	"github.com/MihirPatel5/WhisperBrain/internal/vad"
	"github.com/MihirPatel5/WhisperBrain/pkg/audio"
)

// maxUtteranceBytes bounds a single inbound audio message. Matches the
// client's own reply limit; a minute of 16 kHz mono WAV is well under it.
const maxUtteranceBytes = 16 << 20

// Reply tone parameters. A short audible beep stands in for synthesized
// speech so a developer can hear the round trip.
const (
	toneFrequency = 440.0
	toneDuration  = 500 * time.Millisecond
	toneAmplitude = 0.3
)

// conversation tracks one connected client and the identity handed out on
// accept.
type conversation struct {
	sessionID string
	userID    string
	started   time.Time
	exchanges int
}

// newConversation mints backend-style identifiers: a full UUID for the
// session and a short hex handle for the user.
func newConversation() *conversation {
	user := uuid.New()
	return &conversation{
		sessionID: uuid.NewString(),
		userID:    "user_" + hex.EncodeToString(user[:4]),
		started:   time.Now(),
	}
}

// ackFrame is the first text frame on every connection.
type ackFrame struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// statusFrame is a pipeline progress frame. Text is a pointer because the
// no-speech frame carries an explicitly empty "text" field, while the other
// phases omit the key entirely.
type statusFrame struct {
	Status   string  `json:"status"`
	Text     *string `json:"text,omitempty"`
	Response string  `json:"response,omitempty"`
}

// errorFrame reports a failed exchange without closing the connection.
type errorFrame struct {
	Error string `json:"error"`
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("devserver: encode frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleVoice runs one voice session: identity ack, then a loop of
// utterance in, status frames and spoken reply out. Protocol errors are
// reported in-band; only transport failures end the session.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Non-browser clients send no Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "abandoned")

	s.handlers.Add(1)
	defer s.handlers.Done()

	conn.SetReadLimit(maxUtteranceBytes)

	conv := newConversation()
	s.track(conv)
	defer s.untrack(conv)

	ctx := r.Context()
	s.log.Info("voice session opened",
		"session_id", conv.sessionID,
		"user_id", conv.userID,
		"active", s.ActiveSessions(),
	)

	ack := ackFrame{
		Status:    protocol.PhaseConnected,
		SessionID: conv.sessionID,
		UserID:    conv.userID,
	}
	if err := writeFrame(ctx, conn, ack); err != nil {
		return
	}

	var limiter *rate.Limiter
	if s.limit > 0 {
		limiter = rate.NewLimiter(s.limit, s.burst)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.log.Info("voice session closed",
				"session_id", conv.sessionID,
				"exchanges", conv.exchanges,
				"uptime", time.Since(conv.started).Round(time.Second),
				"reason", err,
			)
			conn.Close(websocket.StatusNormalClosure, "session closed")
			return
		}
		if limiter != nil && !limiter.Allow() {
			s.log.Warn("rate limit exceeded", "session_id", conv.sessionID)
			msg := fmt.Sprintf("Rate limit exceeded: %d requests per minute", int(float64(s.limit)*60))
			if err := writeFrame(ctx, conn, errorFrame{Error: msg}); err != nil {
				return
			}
			continue
		}
		if typ != websocket.MessageBinary {
			s.log.Debug("ignoring text frame", "session_id", conv.sessionID, "bytes", len(data))
			continue
		}
		if err := s.exchange(ctx, conn, conv, data); err != nil {
			s.log.Warn("voice exchange aborted", "session_id", conv.sessionID, "error", err)
			return
		}
	}
}

// exchange walks one utterance through the canned pipeline. A non-nil
// return means the transport failed; pipeline problems are answered with an
// errorFrame and a nil return so the session continues.
func (s *Server) exchange(ctx context.Context, conn *websocket.Conn, conv *conversation, payload []byte) error {
	s.metrics.RecordWSMessage(ctx, "in", "audio")

	samples, sampleRate, err := audio.DecodeWAV(payload)
	if err != nil {
		s.log.Warn("rejecting unreadable utterance", "session_id", conv.sessionID, "error", err)
		return writeFrame(ctx, conn, errorFrame{Error: "Speech recognition failed: " + err.Error()})
	}

	if err := writeFrame(ctx, conn, statusFrame{Status: protocol.PhaseTranscribing}); err != nil {
		return err
	}

	clip := audio.AudioFrame{Samples: samples, SampleRate: sampleRate}
	if vad.Energy(clip) <= vad.DefaultSilenceThreshold {
		empty := ""
		return writeFrame(ctx, conn, statusFrame{Status: protocol.PhaseNoSpeech, Text: &empty})
	}

	// No recognizer behind this server; the "transcript" just describes
	// the audio that arrived.
	transcript := fmt.Sprintf("I heard %.1f seconds of audio.", clip.Duration().Seconds())
	if err := writeFrame(ctx, conn, statusFrame{Status: protocol.PhaseThinking, Text: &transcript}); err != nil {
		return err
	}

	if err := writeFrame(ctx, conn, statusFrame{Status: protocol.PhaseSpeaking, Response: s.reply}); err != nil {
		return err
	}

	reply, err := replyTone(sampleRate)
	if err != nil {
		s.log.Error("synthesizing reply tone", "error", err)
		return writeFrame(ctx, conn, errorFrame{Error: "Text-to-speech failed: " + err.Error()})
	}
	if err := conn.Write(ctx, websocket.MessageBinary, reply); err != nil {
		return err
	}
	s.metrics.RecordWSMessage(ctx, "out", "audio")

	conv.exchanges++
	s.log.Info("exchange served",
		"session_id", conv.sessionID,
		"audio", clip.Duration().Round(time.Millisecond),
		"exchange", conv.exchanges,
	)
	return nil
}

// replyTone synthesizes the spoken reply as a sine tone in the caller's
// sample rate.
func replyTone(sampleRate int) ([]byte, error) {
	n := int(float64(sampleRate) * toneDuration.Seconds())
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = float32(toneAmplitude * math.Sin(2*math.Pi*toneFrequency*t))
	}
	u := audio.Utterance{{Samples: samples, SampleRate: sampleRate}}
	return audio.EncodeWAV(u, sampleRate)
}
