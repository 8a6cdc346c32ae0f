package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"lingorelay/pkg/bus"
)

var modeSwitchPattern = regexp.MustCompile(`^(?i)/mode\s+([a-zA-Z-]+:[a-zA-Z-]+)$`)

// ReplyFunc sends one command reply into a chat.
type ReplyFunc func(ctx context.Context, chatID, text string) error

// Dispatcher handles operator slash-commands. Every recognized command sends
// exactly one reply; input without the command prefix passes through to
// translation.
type Dispatcher struct {
	runtime *Runtime
	reply   ReplyFunc
	log     *slog.Logger
}

func NewDispatcher(runtime *Runtime, reply ReplyFunc, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		runtime: runtime,
		reply:   reply,
		log:     log.With("component", "bot.commands"),
	}
}

// Handle interprets body as a command. It reports false only for input that
// does not start with the command prefix; unknown prefixed input replies
// with a hint and still counts as handled.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.Message, body, replyChatID string) bool {
	raw := strings.TrimSpace(body)
	if !strings.HasPrefix(raw, "/") {
		return false
	}

	switch strings.ToLower(raw) {
	case "/help":
		d.send(ctx, replyChatID, d.helpText())
		return true
	case "/gid":
		d.send(ctx, replyChatID, "chatId: "+msg.ResolveChatID())
		return true
	case "/status":
		cfg := d.runtime.Config()
		d.send(ctx, replyChatID, fmt.Sprintf(
			"Current mode: %s\nChat: %s\nConfigured pairs: %d",
			d.runtime.CurrentPair().Key, cfg.TargetChatID, len(cfg.Pairs),
		))
		return true
	case "/mode":
		lines := []string{"Available translation modes:"}
		for _, pair := range d.runtime.Config().Pairs {
			lines = append(lines, "- "+pair.Key)
		}
		lines = append(lines, "", "Current mode: "+d.runtime.CurrentPair().Key)
		d.send(ctx, replyChatID, strings.Join(lines, "\n"))
		return true
	}

	if match := modeSwitchPattern.FindStringSubmatch(raw); match != nil {
		key := strings.ToLower(match[1])
		pair, ok := d.runtime.Config().PairByKey(key)
		if !ok {
			d.send(ctx, replyChatID, "Invalid mode: "+key+"\nUse /mode to list available modes.")
			return true
		}
		d.runtime.SetCurrentPair(pair)
		d.send(ctx, replyChatID, "Translation mode switched to "+pair.Key)
		return true
	}

	d.send(ctx, replyChatID, "Unsupported command, use /help.")
	return true
}

func (d *Dispatcher) helpText() string {
	lines := []string{
		"Available commands:",
		"/help show this help",
		"/gid show the current chat id",
		"/status show the current translation mode",
		"/mode list available modes",
		"/mode <source:target> switch translation mode (e.g. /mode zh-tw:vi)",
		"",
		"Available modes:",
	}
	for _, pair := range d.runtime.Config().Pairs {
		lines = append(lines, "- "+pair.Key)
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) send(ctx context.Context, chatID, text string) {
	if err := d.reply(ctx, chatID, text); err != nil {
		d.log.Error("Failed to send command reply", "chat_id", chatID, "error", err)
	}
}
