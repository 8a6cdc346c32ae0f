package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"lingorelay/pkg/bus"
	"lingorelay/pkg/channel"
	"lingorelay/pkg/config"
	"lingorelay/pkg/echo"
	"lingorelay/pkg/queue"
)

type sendRecorder struct {
	mu      sync.Mutex
	chatIDs []string
	texts   []string
	nextID  int
	err     error
}

func (s *sendRecorder) SendMessage(_ context.Context, chatID, text string) (channel.SentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return channel.SentMessage{}, s.err
	}
	s.chatIDs = append(s.chatIDs, chatID)
	s.texts = append(s.texts, text)
	s.nextID++
	return channel.SentMessage{ID: sentID(s.nextID)}, nil
}

func sentID(n int) string {
	return "sent-" + strconv.Itoa(n)
}

func (s *sendRecorder) sent() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chatIDs...), append([]string(nil), s.texts...)
}

type translatorFunc func(ctx context.Context, text string, pair config.Pair) (string, error)

func (f translatorFunc) Translate(ctx context.Context, text string, pair config.Pair) (string, error) {
	return f(ctx, text, pair)
}

func countingTranslator(result string) (*int32Counter, Translator) {
	c := &int32Counter{}
	return c, translatorFunc(func(_ context.Context, _ string, _ config.Pair) (string, error) {
		c.inc()
		return result, nil
	})
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newTestProcessor(t *testing.T, translator Translator, sender *sendRecorder) (*Processor, *queue.Queue) {
	t.Helper()
	runtime := NewRuntime(testConfig("zh-tw:vi,vi:zh-tw", "zh-tw:vi"))
	q := queue.New(10)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProcessor(runtime, echo.NewGuard(0), q, translator, sender, log), q
}

func drain(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestProcessTranslatesAndMarksOutbound(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("Xin chào")
	p, q := newTestProcessor(t, translator, sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "你好"})
	drain(t, q)

	chatIDs, texts := sender.sent()
	if len(texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(texts))
	}
	if chatIDs[0] != "G1" {
		t.Fatalf("sent to %q", chatIDs[0])
	}
	if texts[0] != Marker+"Xin chào" {
		t.Fatalf("outbound = %q, want marker prefix", texts[0])
	}
	if calls.value() != 1 {
		t.Fatalf("translator called %d times", calls.value())
	}
}

func TestProcessSuppressesEchoOfOwnSend(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("Xin chào")
	p, q := newTestProcessor(t, translator, sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "你好"})
	drain(t, q)

	// The transport redelivers the relay's own message under the sent id,
	// with the marker stripped.
	p.Process(context.Background(), bus.Message{ID: sentID(1), ChatID: "G1", FromMe: true, Body: "Xin chào"})
	drain(t, q)

	if calls.value() != 1 {
		t.Fatalf("echo was translated, %d calls", calls.value())
	}
	if _, texts := sender.sent(); len(texts) != 1 {
		t.Fatalf("echo produced a send, %d total", len(texts))
	}
}

func TestProcessDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("Xin chào")
	p, q := newTestProcessor(t, translator, sender)

	msg := bus.Message{ID: "m1", ChatID: "G1", Body: "你好"}
	p.Process(context.Background(), msg)
	p.Process(context.Background(), msg)
	drain(t, q)

	if calls.value() != 1 {
		t.Fatalf("redelivered id translated %d times", calls.value())
	}
}

func TestProcessIgnoresMarkedInbound(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("x")
	p, q := newTestProcessor(t, translator, sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: Marker + "already ours"})
	drain(t, q)

	if calls.value() != 0 {
		t.Fatal("marked message must never reach the translator")
	}
}

func TestProcessIgnoresOtherChats(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("x")
	p, q := newTestProcessor(t, translator, sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G2", Body: "你好"})
	p.Process(context.Background(), bus.Message{ID: "m2", ChatID: "G1", Body: "   "})
	drain(t, q)

	if calls.value() != 0 {
		t.Fatal("foreign chats and blank bodies must be ignored")
	}
}

func TestProcessHonorsIncludeFromMe(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("x")
	runtime := NewRuntime(testConfig("zh-tw:vi,vi:zh-tw", "zh-tw:vi"))
	cfg := runtime.Config()
	cfg.IncludeFromMe = false
	q := queue.New(10)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewProcessor(runtime, echo.NewGuard(0), q, translator, sender, log)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", FromMe: true, Body: "你好"})
	drain(t, q)

	if calls.value() != 0 {
		t.Fatal("self-authored message must be skipped when excluded")
	}
}

func TestProcessSkipsNoOpTranslation(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	p, q := newTestProcessor(t, translatorFunc(func(_ context.Context, text string, _ config.Pair) (string, error) {
		return "  " + text + " ", nil
	}), sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "already vietnamese"})
	drain(t, q)

	if _, texts := sender.sent(); len(texts) != 0 {
		t.Fatalf("no-op translation was sent: %q", texts)
	}
	// No echo state may leak from a skipped send.
	if p.guard.IsLikelyEcho("other", true, "already vietnamese") {
		t.Fatal("skipped send must not register echo state")
	}
}

func TestProcessSendsCaseDifferingTranslation(t *testing.T) {
	t.Parallel()

	// Only exact trimmed equality is a no-op; a translation that differs in
	// casing or internal spacing is a real result and must be relayed.
	sender := &sendRecorder{}
	p, q := newTestProcessor(t, translatorFunc(func(_ context.Context, _ string, _ config.Pair) (string, error) {
		return "HELLO WORLD", nil
	}), sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "hello world"})
	drain(t, q)

	_, texts := sender.sent()
	if len(texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(texts))
	}
	if texts[0] != Marker+"HELLO WORLD" {
		t.Fatalf("outbound = %q", texts[0])
	}
}

func TestProcessDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	gate := make(chan struct{})
	var calls int32Counter
	translator := translatorFunc(func(ctx context.Context, _ string, _ config.Pair) (string, error) {
		calls.inc()
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "Xin chào", nil
	})

	runtime := NewRuntime(testConfig("zh-tw:vi,vi:zh-tw", "zh-tw:vi"))
	q := queue.New(1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewProcessor(runtime, echo.NewGuard(0), q, translator, sender, log)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "第一句"})
	p.Process(context.Background(), bus.Message{ID: "m2", ChatID: "G1", Body: "第二句"})
	close(gate)
	drain(t, q)

	if calls.value() != 1 {
		t.Fatalf("translator called %d times, want 1 (overflow dropped)", calls.value())
	}
	if _, texts := sender.sent(); len(texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(texts))
	}
}

func TestProcessHandlesCommandsInline(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	calls, translator := countingTranslator("x")
	p, q := newTestProcessor(t, translator, sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "/gid"})
	drain(t, q)

	if calls.value() != 0 {
		t.Fatal("commands must not be translated")
	}
	_, texts := sender.sent()
	if len(texts) != 1 {
		t.Fatalf("command produced %d replies", len(texts))
	}
	if texts[0] != Marker+"chatId: G1" {
		t.Fatalf("command reply = %q, want marker prefix", texts[0])
	}
}

func TestProcessReportsTranslationFailureWithoutSending(t *testing.T) {
	t.Parallel()

	sender := &sendRecorder{}
	boom := errors.New("backend down")
	p, q := newTestProcessor(t, translatorFunc(func(_ context.Context, _ string, _ config.Pair) (string, error) {
		return "", boom
	}), sender)

	p.Process(context.Background(), bus.Message{ID: "m1", ChatID: "G1", Body: "你好"})
	drain(t, q)

	if _, texts := sender.sent(); len(texts) != 0 {
		t.Fatalf("failed translation was sent: %q", texts)
	}
}
