package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"lingorelay/pkg/bus"
	"lingorelay/pkg/channel"
	"lingorelay/pkg/config"
	"lingorelay/pkg/echo"
	"lingorelay/pkg/queue"
)

const previewLimit = 40

// Translator is the slice of the translation engine the processor needs.
type Translator interface {
	Translate(ctx context.Context, text string, pair config.Pair) (string, error)
}

// Processor drives one inbound event through the relay pipeline: dedup, echo
// suppression, command handling, and finally a queued translate-and-send.
type Processor struct {
	runtime    *Runtime
	guard      *echo.Guard
	queue      *queue.Queue
	translator Translator
	sender     channel.Sender
	dispatcher *Dispatcher
	log        *slog.Logger
}

func NewProcessor(
	runtime *Runtime,
	guard *echo.Guard,
	q *queue.Queue,
	translator Translator,
	sender channel.Sender,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{
		runtime:    runtime,
		guard:      guard,
		queue:      q,
		translator: translator,
		sender:     sender,
		log:        log.With("component", "bot.processor"),
	}
	p.dispatcher = NewDispatcher(runtime, p.sendMarked, log)
	return p
}

// Process classifies one inbound message and, when it is human text in the
// watched chat, enqueues its translation. Everything before the enqueue runs
// inline on the caller's goroutine; the translate-and-send runs on the queue
// lane.
func (p *Processor) Process(ctx context.Context, msg bus.Message) {
	if p.guard.MarkAndCheckProcessed(msg.ID) {
		return
	}

	cfg := p.runtime.Config()
	if msg.ResolveChatID() != cfg.TargetChatID {
		return
	}

	if IsMarked(msg.Body) {
		return
	}

	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return
	}

	if p.guard.IsLikelyEcho(msg.ID, msg.FromMe, body) {
		p.log.Debug("Suppressed echo of own output", "message_id", msg.ID)
		return
	}

	if msg.FromMe && !cfg.IncludeFromMe {
		return
	}

	replyChatID := msg.ReplyTarget()

	if p.dispatcher.Handle(ctx, msg, body, replyChatID) {
		return
	}

	pair := p.runtime.DetectPair(body)

	handle, err := p.queue.Enqueue(ctx, func(ctx context.Context) error {
		return p.translateAndSend(ctx, pair, body, replyChatID)
	})
	if err != nil {
		// Load shedding: at capacity the message is dropped, not queued.
		p.log.Warn("Dropped message, translate queue full",
			"message_id", msg.ID,
			"depth", p.queue.Depth(),
			"error", err,
		)
		return
	}

	go func() {
		<-handle.Done()
		if err := handle.Err(); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error("Translation task failed",
				"message_id", msg.ID,
				"pair", pair.Key,
				"error", err,
			)
		}
	}()
}

// translateAndSend is the queued half of the pipeline. The pending-body mark
// covers the window between the send call and the arrival of its echo event.
func (p *Processor) translateAndSend(ctx context.Context, pair config.Pair, body, replyChatID string) error {
	translated, err := p.translator.Translate(ctx, body, pair)
	if err != nil {
		return err
	}

	if strings.TrimSpace(translated) == "" || strings.TrimSpace(translated) == strings.TrimSpace(body) {
		p.log.Debug("Skipped no-op translation", "pair", pair.Key)
		return nil
	}

	outbound := Marker + translated
	p.guard.MarkPendingBody(outbound)
	defer p.guard.ClearPendingBody(outbound)

	sent, err := p.sender.SendMessage(ctx, replyChatID, outbound)
	if err != nil {
		return err
	}
	p.guard.RememberSent(sent.ID, outbound)

	p.log.Info("Relayed translation",
		"pair", pair.Key,
		"chat_id", replyChatID,
		"preview", preview(translated),
	)
	return nil
}

// sendMarked is the reply function shared with the command dispatcher. Every
// outbound message carries the marker so its echo is recognized on the way
// back in.
func (p *Processor) sendMarked(ctx context.Context, chatID, text string) error {
	outbound := Marker + text
	sent, err := p.sender.SendMessage(ctx, chatID, outbound)
	if err != nil {
		return err
	}
	p.guard.RememberSent(sent.ID, outbound)
	return nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "…"
}
