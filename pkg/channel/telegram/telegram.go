// Package telegram adapts Telegram updates into relay inbound events.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"lingorelay/pkg/bus"
	"lingorelay/pkg/channel"
	"lingorelay/pkg/config"
)

const channelName = "telegram"

// Adapter bridges Telegram long polling into the relay bus.
type Adapter struct {
	token string
	log   *slog.Logger

	mu     sync.RWMutex
	bot    *telego.Bot
	selfID int64
}

// NewAdapter validates Telegram configuration and constructs an adapter.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		token: token,
		log:   log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts long polling and publishes every text message onto the bus.
// It blocks until ctx is canceled and may be called again afterwards.
func (a *Adapter) Run(ctx context.Context, mb *bus.MessageBus) error {
	bot, err := telego.NewBot(a.token)
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	self, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.mu.Lock()
	a.bot = bot
	a.selfID = self.ID
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.bot = nil
		a.mu.Unlock()
	}()

	a.log.Info("Telegram channel started", "bot_id", self.ID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			message := update.Message
			if message == nil || message.Text == "" {
				continue
			}

			inbound := a.adapt(message)
			if !mb.PublishInbound(ctx, inbound) {
				a.log.Debug("Dropped inbound message, bus unavailable", "chat_id", inbound.ChatID)
			}
		}
	}
}

// adapt converts a Telegram message into the transport-neutral event shape.
func (a *Adapter) adapt(message *telego.Message) bus.Message {
	chatID := strconv.FormatInt(message.Chat.ID, 10)

	var senderID string
	fromMe := false
	if message.From != nil {
		senderID = strconv.FormatInt(message.From.ID, 10)
		a.mu.RLock()
		fromMe = message.From.ID == a.selfID
		a.mu.RUnlock()
	}

	return bus.Message{
		ID:     messageID(message.Chat.ID, message.MessageID),
		ChatID: chatID,
		From:   senderID,
		To:     chatID,
		FromMe: fromMe,
		Body:   message.Text,
	}
}

// SendMessage delivers text into a chat and surfaces the sent message id for
// echo tracking. It fails while the adapter is not running.
func (a *Adapter) SendMessage(ctx context.Context, chatID, text string) (channel.SentMessage, error) {
	a.mu.RLock()
	bot := a.bot
	a.mu.RUnlock()
	if bot == nil {
		return channel.SentMessage{}, errors.New("telegram channel is not running")
	}

	numericChatID, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return channel.SentMessage{}, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	sent, err := bot.SendMessage(ctx, tu.Message(tu.ID(numericChatID), text))
	if err != nil {
		return channel.SentMessage{}, fmt.Errorf("send telegram message: %w", err)
	}

	return channel.SentMessage{ID: messageID(numericChatID, sent.MessageID)}, nil
}

// messageID builds a transport-wide unique id; Telegram message ids are only
// unique per chat.
func messageID(chatID int64, msgID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(msgID)
}
