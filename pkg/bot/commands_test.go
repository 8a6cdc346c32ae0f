package bot

import (
	"context"
	"strings"
	"testing"

	"lingorelay/pkg/bus"
)

type replyRecorder struct {
	chatIDs []string
	texts   []string
	err     error
}

func (r *replyRecorder) reply(_ context.Context, chatID, text string) error {
	r.chatIDs = append(r.chatIDs, chatID)
	r.texts = append(r.texts, text)
	return r.err
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *Runtime, *replyRecorder) {
	t.Helper()
	runtime := NewRuntime(testConfig("zh-tw:vi,vi:zh-tw", "zh-tw:vi"))
	rec := &replyRecorder{}
	return NewDispatcher(runtime, rec.reply, nil), runtime, rec
}

func TestHandleIgnoresPlainText(t *testing.T) {
	t.Parallel()

	d, _, rec := newTestDispatcher(t)
	msg := bus.Message{ChatID: "G1"}

	if d.Handle(context.Background(), msg, "hello there", "G1") {
		t.Fatal("plain text must not be handled")
	}
	if len(rec.texts) != 0 {
		t.Fatalf("plain text produced %d replies", len(rec.texts))
	}
}

func TestHandleHelp(t *testing.T) {
	t.Parallel()

	d, _, rec := newTestDispatcher(t)

	if !d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/help", "G1") {
		t.Fatal("/help must be handled")
	}
	if len(rec.texts) != 1 || !strings.Contains(rec.texts[0], "/mode") {
		t.Fatalf("help reply = %q", rec.texts)
	}
	if rec.chatIDs[0] != "G1" {
		t.Fatalf("reply chat = %q", rec.chatIDs[0])
	}
}

func TestHandleGid(t *testing.T) {
	t.Parallel()

	d, _, rec := newTestDispatcher(t)

	if !d.Handle(context.Background(), bus.Message{ChatID: "G42"}, "/gid", "G42") {
		t.Fatal("/gid must be handled")
	}
	if rec.texts[0] != "chatId: G42" {
		t.Fatalf("gid reply = %q", rec.texts[0])
	}
}

func TestHandleStatusReportsActivePair(t *testing.T) {
	t.Parallel()

	d, runtime, rec := newTestDispatcher(t)
	pair, _ := runtime.Config().PairByKey("vi:zh-tw")
	runtime.SetCurrentPair(pair)

	d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/status", "G1")

	if !strings.Contains(rec.texts[0], "vi:zh-tw") {
		t.Fatalf("status reply = %q", rec.texts[0])
	}
}

func TestHandleModeListsPairs(t *testing.T) {
	t.Parallel()

	d, _, rec := newTestDispatcher(t)

	d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/mode", "G1")

	reply := rec.texts[0]
	if !strings.Contains(reply, "- zh-tw:vi") || !strings.Contains(reply, "- vi:zh-tw") {
		t.Fatalf("mode list = %q", reply)
	}
	if !strings.Contains(reply, "Current mode: zh-tw:vi") {
		t.Fatalf("mode list missing current pair: %q", reply)
	}
}

func TestHandleModeSwitch(t *testing.T) {
	t.Parallel()

	d, runtime, rec := newTestDispatcher(t)

	d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/mode vi:zh-tw", "G1")

	if runtime.CurrentPair().Key != "vi:zh-tw" {
		t.Fatalf("active pair = %q after switch", runtime.CurrentPair().Key)
	}
	if !strings.Contains(rec.texts[0], "vi:zh-tw") {
		t.Fatalf("switch reply = %q", rec.texts[0])
	}
}

func TestHandleModeSwitchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	d, runtime, _ := newTestDispatcher(t)

	d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/MODE VI:ZH-TW", "G1")

	if runtime.CurrentPair().Key != "vi:zh-tw" {
		t.Fatalf("active pair = %q after uppercase switch", runtime.CurrentPair().Key)
	}
}

func TestHandleModeSwitchRejectsUnknownPair(t *testing.T) {
	t.Parallel()

	d, runtime, rec := newTestDispatcher(t)

	if !d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/mode en:fr", "G1") {
		t.Fatal("invalid mode must still be handled")
	}
	if runtime.CurrentPair().Key != "zh-tw:vi" {
		t.Fatal("invalid switch must not change the active pair")
	}
	if !strings.Contains(rec.texts[0], "Invalid mode") {
		t.Fatalf("invalid-mode reply = %q", rec.texts[0])
	}
}

func TestHandleUnknownCommandHints(t *testing.T) {
	t.Parallel()

	d, _, rec := newTestDispatcher(t)

	if !d.Handle(context.Background(), bus.Message{ChatID: "G1"}, "/frobnicate", "G1") {
		t.Fatal("unknown command must be handled")
	}
	if !strings.Contains(rec.texts[0], "/help") {
		t.Fatalf("unknown-command reply = %q", rec.texts[0])
	}
}
