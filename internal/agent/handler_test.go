package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"checkinbot/internal/bus"
	"checkinbot/internal/domain"
	"checkinbot/internal/memory"
	"checkinbot/internal/metrics"
	"checkinbot/internal/provider"
)

const (
	testChat = "chan-1"
	botID    = "bot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockChannel records sends and optionally resolves/fails.
type mockChannel struct {
	mu         sync.Mutex
	sent       []string
	typing     int
	sendErr    error
	resolveErr error
}

func (c *mockChannel) Name() string   { return "mock" }
func (c *mockChannel) SelfID() string { return botID }
func (c *mockChannel) Start(ctx context.Context, _ domain.MessageBus) error {
	<-ctx.Done()
	return nil
}

func (c *mockChannel) Send(_ context.Context, _ string, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, content)
	return nil
}

func (c *mockChannel) Typing(context.Context, string) error {
	c.mu.Lock()
	c.typing++
	c.mu.Unlock()
	return nil
}

func (c *mockChannel) Resolve(context.Context, string) error { return c.resolveErr }

func (c *mockChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// mockGenerator replies with a fixed text or error and records requests.
type mockGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	reqs  []domain.GenerateRequest
}

func (g *mockGenerator) Name() string { return "mock" }

func (g *mockGenerator) Generate(_ context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	time.Sleep(g.delay)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return nil, g.err
	}
	return &domain.GenerateResponse{Text: g.reply}, nil
}

func (g *mockGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reqs)
}

func newTestHandler(ch *mockChannel, gen *mockGenerator, mem *memory.PerUser) *Handler {
	return NewHandler(HandlerConfig{
		Channel:   ch,
		ChatID:    testChat,
		Memory:    mem,
		Generator: gen,
		Logger:    testLogger(),
	})
}

func newMemory() *memory.PerUser {
	return memory.NewPerUser(memory.PerUserConfig{Logger: testLogger()})
}

func inbound(sender, chat, content string) domain.InboundMessage {
	return domain.InboundMessage{
		Platform:  "mock",
		ChatID:    chat,
		MessageID: sender + "-" + content,
		SenderID:  sender,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestHandle_Replies(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{reply: "  Nice work!  "}
	mem := newMemory()
	h := newTestHandler(ch, gen, mem)

	if got := h.Handle(context.Background(), inbound("u1", testChat, "I slept well")); got != Replied {
		t.Fatalf("expected Replied, got %s", got)
	}
	sent := ch.messages()
	if len(sent) != 1 || sent[0] != "Nice work!" {
		t.Fatalf("unexpected sends: %q", sent)
	}
	if ch.typing != 1 {
		t.Fatalf("expected one typing indicator, got %d", ch.typing)
	}

	conv := mem.GetOrCreate("u1")
	if len(conv) != 3 {
		t.Fatalf("expected system+user+assistant, got %d: %+v", len(conv), conv)
	}
	if conv[1] != domain.User("I slept well") || conv[2] != domain.Assistant("Nice work!") {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	req := gen.reqs[0]
	if len(req.Utterances) != 2 || req.Utterances[0].Role != domain.RoleSystem {
		t.Fatalf("generator should see system+user, got %+v", req.Utterances)
	}
}

func TestHandle_IgnoresSelfAndOtherChannels(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{reply: "hi"}
	mem := newMemory()
	h := newTestHandler(ch, gen, mem)

	cases := []domain.InboundMessage{
		inbound(botID, testChat, "🌞 Good morning!"),
		inbound("u1", "other-chan", "hello?"),
		inbound("u1", testChat, "   "),
	}
	for _, msg := range cases {
		if got := h.Handle(context.Background(), msg); got != Ignored {
			t.Fatalf("expected Ignored for %+v, got %s", msg, got)
		}
	}
	if len(ch.messages()) != 0 {
		t.Fatalf("expected no sends, got %q", ch.messages())
	}
	if gen.calls() != 0 {
		t.Fatalf("expected no generation calls, got %d", gen.calls())
	}
	if mem.Len() != 0 {
		t.Fatalf("expected memory untouched, got %d conversations", mem.Len())
	}
}

func TestHandle_FailureSendsFallback(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{err: errors.New("503 unavailable")}
	mem := newMemory()
	h := newTestHandler(ch, gen, mem)

	if got := h.Handle(context.Background(), inbound("u1", testChat, "help")); got != Failed {
		t.Fatalf("expected Failed, got %s", got)
	}
	sent := ch.messages()
	if len(sent) != 1 || sent[0] != FallbackMessage {
		t.Fatalf("expected exactly the fallback, got %q", sent)
	}
	if gen.calls() != 1 {
		t.Fatalf("expected exactly one generation call, got %d", gen.calls())
	}
	for _, u := range mem.GetOrCreate("u1") {
		if u.Role == domain.RoleAssistant {
			t.Fatalf("no assistant entry expected after failure: %+v", u)
		}
	}
}

// brokenMemory cannot build a conversation context.
type brokenMemory struct{}

func (brokenMemory) Begin(context.Context, domain.InboundMessage) ([]domain.Utterance, error) {
	return nil, errors.New("history unavailable")
}

func (brokenMemory) Commit(context.Context, domain.InboundMessage, domain.Utterance) error {
	return nil
}

func TestHandle_MemoryErrorIsNotAGenerationFailure(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{reply: "unused"}
	h := NewHandler(HandlerConfig{
		Channel:   ch,
		ChatID:    testChat,
		Memory:    brokenMemory{},
		Generator: gen,
		Logger:    testLogger(),
	})

	memBefore := metrics.MemoryErrors.Value()
	genBefore := metrics.GenerationFailures(string(provider.FailureUnknown)).Value()

	if got := h.Handle(context.Background(), inbound("u1", testChat, "hi")); got != Failed {
		t.Fatalf("expected Failed, got %s", got)
	}
	if sent := ch.messages(); len(sent) != 1 || sent[0] != FallbackMessage {
		t.Fatalf("expected the fallback, got %q", sent)
	}
	if gen.calls() != 0 {
		t.Fatalf("expected no generation call, got %d", gen.calls())
	}
	if d := metrics.MemoryErrors.Value() - memBefore; d != 1 {
		t.Fatalf("expected memory error counted once, got %d", d)
	}
	if d := metrics.GenerationFailures(string(provider.FailureUnknown)).Value() - genBefore; d != 0 {
		t.Fatalf("generation failures should not move, got %d", d)
	}
}

func TestHandle_EmptyReplyIsSilent(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{reply: "\n  "}
	mem := newMemory()
	h := newTestHandler(ch, gen, mem)

	if got := h.Handle(context.Background(), inbound("u1", testChat, "ok")); got != Silent {
		t.Fatalf("expected Silent, got %s", got)
	}
	if len(ch.messages()) != 0 {
		t.Fatalf("expected no sends, got %q", ch.messages())
	}
	conv := mem.GetOrCreate("u1")
	if len(conv) != 3 || conv[2] != domain.Assistant("") {
		t.Fatalf("expected empty assistant turn committed, got %+v", conv)
	}
}

func TestHandle_SeparateUsersSeparateHistory(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{reply: "ok"}
	mem := newMemory()
	h := newTestHandler(ch, gen, mem)

	h.Handle(context.Background(), inbound("u1", testChat, "a"))
	h.Handle(context.Background(), inbound("u2", testChat, "b"))
	h.Handle(context.Background(), inbound("u1", testChat, "c"))

	if n := len(mem.GetOrCreate("u1")); n != 5 {
		t.Fatalf("u1: expected 5 utterances, got %d", n)
	}
	if n := len(mem.GetOrCreate("u2")); n != 3 {
		t.Fatalf("u2: expected 3 utterances, got %d", n)
	}
	last := gen.reqs[2].Utterances
	if len(last) != 4 || last[3] != domain.User("c") {
		t.Fatalf("third call should carry u1's history, got %+v", last)
	}
}

func TestRun_DispatchesFromBus(t *testing.T) {
	ch := &mockChannel{}
	gen := &mockGenerator{reply: "pong"}
	b := bus.New(10, testLogger())
	h := NewHandler(HandlerConfig{
		Channel:     ch,
		ChatID:      testChat,
		Memory:      newMemory(),
		Generator:   gen,
		Bus:         b,
		Concurrency: 2,
		Logger:      testLogger(),
	})

	done := make(chan struct{})
	go func() {
		h.Run(context.Background())
		close(done)
	}()

	for _, u := range []string{"u1", "u2", "u3"} {
		b.Publish(inbound(u, testChat, "ping"))
	}
	b.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not stop after bus close")
	}
	if n := len(ch.messages()); n != 3 {
		t.Fatalf("expected 3 replies, got %d", n)
	}
}

func TestRun_KeepsArrivalOrderPerSender(t *testing.T) {
	for round := 0; round < 20; round++ {
		ch := &mockChannel{}
		gen := &mockGenerator{reply: "ok", delay: time.Millisecond}
		mem := newMemory()
		b := bus.New(20, testLogger())
		h := NewHandler(HandlerConfig{
			Channel:     ch,
			ChatID:      testChat,
			Memory:      mem,
			Generator:   gen,
			Bus:         b,
			Concurrency: 8,
			Logger:      testLogger(),
		})

		var want []string
		for i := 0; i < 8; i++ {
			content := fmt.Sprintf("msg %d", i)
			want = append(want, content)
			b.Publish(inbound("u1", testChat, content))
			b.Publish(inbound("u2", testChat, content))
		}
		b.Close()
		h.Run(context.Background())

		for _, sender := range []string{"u1", "u2"} {
			var got []string
			for _, u := range mem.GetOrCreate(sender) {
				if u.Role == domain.RoleUser {
					got = append(got, u.Content)
				}
			}
			if strings.Join(got, "|") != strings.Join(want, "|") {
				t.Fatalf("round %d, %s: user turns out of arrival order: %q", round, sender, got)
			}
		}
		if h.turns.size() != 0 {
			t.Fatalf("round %d: expected no pending turns, %d left", round, h.turns.size())
		}
	}
}

func TestTurnQueue_RunsInReservationOrder(t *testing.T) {
	q := turnQueue{tails: make(map[string]*turn)}

	var mu sync.Mutex
	var order []int
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wait, release := q.Reserve("u1")
		wg.Add(1)
		// Later turns start first to show the reservation decides the order.
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(20-i) * 100 * time.Microsecond)
			wait()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			order = append(order, i)
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			active--
			mu.Unlock()
			release()
		}(i)
	}

	// Other keys are independent.
	wait, release := q.Reserve("u2")
	wait()
	release()

	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected one turn at a time, saw %d", maxActive)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("turns ran out of order: %v", order)
		}
	}
	if q.size() != 0 {
		t.Fatalf("expected finished keys to be dropped, %d left", q.size())
	}
}

func TestOutcome_String(t *testing.T) {
	for o, want := range map[Outcome]string{Ignored: "ignored", Replied: "replied", Silent: "silent", Failed: "failed"} {
		if o.String() != want {
			t.Errorf("%d: got %q, want %q", int(o), o.String(), want)
		}
	}
}
