package bus

// Message is one inbound chat event, adapted from the transport's native
// shape at the boundary. Only the fields the pipeline consumes are carried.
type Message struct {
	// ID is the transport's stable message identifier, empty when the
	// transport could not surface one.
	ID string
	// ChatID is the resolved conversation identifier, empty when
	// resolution failed (consumers fall back to From).
	ChatID string
	From   string
	To     string
	// FromMe marks events authored by the relay's own account.
	FromMe bool
	Body   string
}

// ResolveChatID returns the conversation the event belongs to, falling back
// to the sender when chat resolution failed at the transport boundary.
func (m Message) ResolveChatID() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	return m.From
}

// ReplyTarget resolves where a reaction to this event should be sent: the
// chat itself, or the counterpart of a self-authored direct message.
func (m Message) ReplyTarget() string {
	if chatID := m.ResolveChatID(); chatID != "" {
		return chatID
	}
	if m.FromMe {
		return m.To
	}
	return m.From
}
