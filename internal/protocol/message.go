// Package protocol implements the client side of the WhisperBrain backend's
// WebSocket voice protocol.
//
// The client uploads one binary WAV frame per utterance. The server answers
// with JSON text frames describing the pipeline phase (transcription, model,
// synthesis) and finally a binary frame carrying the spoken reply. Every
// inbound frame is decoded exactly once, here, into one of the tagged
// [Message] variants; the layers above only ever see typed events.
package protocol

import "encoding/json"

// Status phases emitted by the backend during a normal exchange. The strings
// are part of the wire contract and are matched verbatim.
const (
	PhaseConnected    = "Connected"
	PhaseTranscribing = "Converting speech to text..."
	PhaseThinking     = "Processing with AI..."
	PhaseSpeaking     = "Generating speech..."
	PhaseNoSpeech     = "No speech detected"
)

// wireMessage is the JSON shape of every server text frame. All fields are
// optional and unknown extra fields are tolerated.
type wireMessage struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Text      string `json:"text"`
	Response  string `json:"response"`
	Error     string `json:"error"`
}

// Message is one decoded inbound frame. The implementations form the closed
// set of shapes the backend emits: [Identity], [Status], [BackendError],
// [AudioReply] and [Unrecognized].
type Message interface {
	isMessage()
}

// Identity carries the backend-assigned session and user IDs, sent alongside
// the connection acknowledgement.
type Identity struct {
	SessionID string
	UserID    string
}

// Status reports a pipeline phase change. Text carries the recognised
// transcript once transcription finished; Response carries the assistant
// reply text once the model answered.
type Status struct {
	Phase    string
	Text     string
	Response string
}

// BackendError is an error the backend reported inside a live session. The
// connection stays up; only the exchange it belongs to is failed.
type BackendError struct {
	Message string
}

// Error implements the error interface so a BackendError can travel through
// error-typed plumbing unchanged.
func (e BackendError) Error() string {
	return "backend: " + e.Message
}

// AudioReply is a binary frame carrying the spoken reply. The payload is an
// opaque playable container, handed to the playback sink untouched.
type AudioReply struct {
	Payload []byte
}

// Unrecognized is a text frame that carried none of the known fields or did
// not parse as JSON. It is logged at debug level and dropped, never
// forwarded.
type Unrecognized struct {
	Raw []byte
}

func (Identity) isMessage()     {}
func (Status) isMessage()       {}
func (BackendError) isMessage() {}
func (AudioReply) isMessage()   {}
func (Unrecognized) isMessage() {}

// ParseText decodes one server text frame into its tagged variants. Most
// frames yield exactly one message; the connection acknowledgement carries
// both the session identity and a status, yielding two (identity first). A
// frame that matches nothing yields a single [Unrecognized].
func ParseText(data []byte) []Message {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return []Message{Unrecognized{Raw: data}}
	}

	var msgs []Message
	if w.SessionID != "" || w.UserID != "" {
		msgs = append(msgs, Identity{SessionID: w.SessionID, UserID: w.UserID})
	}
	if w.Status != "" {
		msgs = append(msgs, Status{Phase: w.Status, Text: w.Text, Response: w.Response})
	}
	if w.Error != "" {
		msgs = append(msgs, BackendError{Message: w.Error})
	}
	if len(msgs) == 0 {
		msgs = append(msgs, Unrecognized{Raw: data})
	}
	return msgs
}
