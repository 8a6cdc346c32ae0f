// Package bus decouples the chat transport from the translation pipeline:
// the transport publishes inbound events, the processor consumes them one at
// a time.
package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

type MessageBus struct {
	inbound   chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan Message, defaultBufferSize),
		done:    make(chan struct{}),
	}
}

// PublishInbound offers a message to the pipeline. It reports false when the
// bus is closed or ctx is done before the message could be buffered.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg Message) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

// ConsumeInbound blocks for the next message. It reports false when the bus
// is closed or ctx is done.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Message, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return Message{}, false
	case <-mb.done:
		return Message{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
	})
}
