package channel

import (
	"context"

	"lingorelay/pkg/bus"
)

// SentMessage is the transport's acknowledgment of an outbound send. The id
// feeds the echo guard so the relay recognizes its own message when the
// transport echoes it back.
type SentMessage struct {
	ID string
}

// Sender delivers one outbound message into a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) (SentMessage, error)
}

// Adapter bridges one external chat transport (for example Telegram) into
// the relay. Run blocks until ctx is canceled, publishing inbound events
// onto the bus; a returned adapter must be restartable after Run exits.
type Adapter interface {
	Name() string
	Sender
	Run(ctx context.Context, mb *bus.MessageBus) error
}
