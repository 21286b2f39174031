package session

// Role identifies which party produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one utterance or reply in the conversation history.
type ConversationTurn struct {
	Role    Role
	Content string
}

// Transcript is the ordered conversation history of one session. Turns are
// appended strictly in (user, assistant) pairs, so the history never holds
// an orphaned entry; the coordinator keeps a lone transcription aside until
// the matching reply text arrives.
//
// Not safe for concurrent use. The coordinator owns the transcript and
// serializes all access on its run loop.
type Transcript struct {
	turns []ConversationTurn
}

// AppendExchange adds one completed (user, assistant) pair.
func (t *Transcript) AppendExchange(user, assistant string) {
	t.turns = append(t.turns,
		ConversationTurn{Role: RoleUser, Content: user},
		ConversationTurn{Role: RoleAssistant, Content: assistant},
	)
}

// Turns returns a copy of the history in append order.
func (t *Transcript) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns. Always even.
func (t *Transcript) Len() int { return len(t.turns) }

// Clear empties the history. Called on explicit user request and after a
// reconnect, when the backend no longer remembers the conversation.
func (t *Transcript) Clear() { t.turns = t.turns[:0] }
