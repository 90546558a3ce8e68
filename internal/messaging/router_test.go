package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/knowledge"
	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/util"
)

type sentReply struct {
	To   string
	Body string
}

// fakeService is an in-process Service for router tests.
type fakeService struct {
	name  string
	inbox *inbox

	mu      sync.Mutex
	sent    []sentReply
	started bool
	stopped bool
	sendErr error
}

func newFakeService(name string) *fakeService {
	return &fakeService{name: name, inbox: newInbox()}
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (f *fakeService) SendMessage(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentReply{To: to, Body: body})
	return nil
}

func (f *fakeService) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeService) Stop() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.inbox.close()
	return nil
}

func (f *fakeService) Messages() <-chan models.Message { return f.inbox.ch }

func (f *fakeService) replies() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.sent...)
}

func (f *fakeService) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type panicResponder struct{}

func (panicResponder) Chat(ctx context.Context, channel, text string) (chatbot.Reply, error) {
	panic("responder exploded")
}

func newTestBot() *chatbot.Bot {
	lookup := knowledge.LookupFunc(func(ctx context.Context, query string) (string, error) {
		if query == "capital of France" {
			return "Paris is the capital of France.", nil
		}
		return "", knowledge.NewLookupError(knowledge.KindNotFound, "test", query, knowledge.ErrNoAnswer)
	})
	return chatbot.New(
		chatbot.WithLookup(lookup),
		chatbot.WithRandomSource(util.NewSeededRandomSource(1)),
	)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChatRouter_ProcessMessage(t *testing.T) {
	bot := newTestBot()
	router := NewChatRouter(bot)
	svc := newFakeService("fake")

	err := router.ProcessMessage(context.Background(), svc, models.Message{From: "+1 555 123 4567", Body: "capital of France"})
	if err != nil {
		t.Fatalf("ProcessMessage returned error: %v", err)
	}
	got := svc.replies()
	if len(got) != 1 || got[0].To != "15551234567" || got[0].Body != "Paris is the capital of France." {
		t.Errorf("unexpected replies: %+v", got)
	}

	entries := bot.Transcript().Entries()
	if len(entries) != 1 || entries[0].Channel != "fake" || entries[0].Intent != models.IntentQuery {
		t.Errorf("unexpected transcript: %+v", entries)
	}
}

func TestChatRouter_ProcessMessageEmptyIgnored(t *testing.T) {
	bot := newTestBot()
	router := NewChatRouter(bot)
	svc := newFakeService("fake")

	if err := router.ProcessMessage(context.Background(), svc, models.Message{From: "15551234567", Body: "   "}); err != nil {
		t.Fatalf("expected nil error for empty message, got %v", err)
	}
	if len(svc.replies()) != 0 {
		t.Error("expected no reply for empty message")
	}
	if bot.Transcript().Len() != 0 {
		t.Error("expected no transcript entry for empty message")
	}
}

func TestChatRouter_ProcessMessageErrors(t *testing.T) {
	router := NewChatRouter(newTestBot())

	svc := newFakeService("fake")
	if err := router.ProcessMessage(context.Background(), svc, models.Message{From: "x", Body: "hello"}); err == nil {
		t.Error("expected error for invalid sender")
	}

	svc.sendErr = errors.New("network down")
	if err := router.ProcessMessage(context.Background(), svc, models.Message{From: "15551234567", Body: "hello"}); err == nil {
		t.Error("expected error when send fails")
	}

	panicky := NewChatRouter(panicResponder{})
	if err := panicky.ProcessMessage(context.Background(), svc, models.Message{From: "15551234567", Body: "hello"}); err == nil {
		t.Error("expected error from recovered panic")
	}
}

func TestChatRouter_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := newFakeService("a")
	b := newFakeService("b")
	router := NewChatRouter(newTestBot(), a, nil, b)
	if len(router.Services()) != 2 {
		t.Fatalf("expected nil service dropped, got %d services", len(router.Services()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- router.Run(ctx) }()

	a.inbox.push(models.Message{Channel: "a", From: "15551234567", Body: "hello"})
	b.inbox.push(models.Message{Channel: "b", From: "15557654321", Body: "what is dark matter"})

	waitFor(t, func() bool { return len(a.replies()) == 1 && len(b.replies()) == 1 })
	if got := b.replies()[0].Body; got != chatbot.LookupFallback {
		t.Errorf("expected lookup fallback on b, got %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !a.wasStopped() || !b.wasStopped() {
		t.Error("expected both services stopped")
	}
}

func TestChatRouter_RunReturnsWhenChannelsClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newFakeService("a")
	svc.inbox.close()
	router := NewChatRouter(newTestBot(), svc)
	if err := router.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !svc.wasStopped() {
		t.Error("expected service stopped")
	}
}
