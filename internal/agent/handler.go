// Package agent reacts to inbound chat messages and runs the daily check-in.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
	"checkinbot/internal/provider"
)

// FallbackMessage is sent instead of a reply when the generation call fails.
const FallbackMessage = "⚠️ Sorry, I hit an error with the AI service."

const defaultConcurrency = 5

// Outcome is what Handle did with one inbound message.
type Outcome int

const (
	// Ignored: self-authored, another channel, or empty. Nothing was called or sent.
	Ignored Outcome = iota
	// Replied: the reply was committed to memory and handed to the channel.
	Replied
	// Silent: the service answered with empty text; committed, nothing sent.
	Silent
	// Failed: the fallback notice was sent (or attempted); nothing committed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Replied:
		return "replied"
	case Silent:
		return "silent"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Handler answers messages in the target channel using the generation service.
type Handler struct {
	channel     domain.Channel
	chatID      string
	memory      domain.ConversationMemory
	generator   domain.Generator
	model       string
	bus         domain.MessageBus
	limiter     *RateLimiter
	concurrency int
	logger      *slog.Logger

	turns turnQueue
}

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Channel     domain.Channel
	ChatID      string // the only chat the bot answers in
	Memory      domain.ConversationMemory
	Generator   domain.Generator
	Model       string // optional model override
	Bus         domain.MessageBus
	Limiter     *RateLimiter // optional
	Concurrency int          // max messages handled at once (default 5)
	Logger      *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		channel:     cfg.Channel,
		chatID:      cfg.ChatID,
		memory:      cfg.Memory,
		generator:   cfg.Generator,
		model:       cfg.Model,
		bus:         cfg.Bus,
		limiter:     cfg.Limiter,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		turns:       turnQueue{tails: make(map[string]*turn)},
	}
}

// Run consumes the bus and handles each message in its own goroutine,
// bounded by the configured concurrency. It returns when ctx is cancelled or
// the bus is closed, after in-flight messages finish.
func (h *Handler) Run(ctx context.Context) {
	h.logger.Info("message handler started", "concurrency", h.concurrency, "chat_id", h.chatID)

	sem := make(chan struct{}, h.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	inbound := h.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("message handler stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				h.logger.Info("inbound channel closed, message handler stopping")
				return
			}
			// The sender's turn is taken here, in bus order, so its messages
			// are handled one after another in the order they arrived.
			wait, release := h.turns.Reserve(msg.SenderID)
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				go func() {
					wait()
					release()
				}()
				return
			}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				defer release()
				defer func() {
					if r := recover(); r != nil {
						h.logger.Error("panic while handling message",
							"message_id", m.MessageID,
							"panic", r,
							"stack", string(debug.Stack()),
						)
					}
				}()
				wait()
				h.handle(ctx, m)
			}(msg)
		}
	}
}

// Handle reacts to one inbound message. Calls for the same sender are
// serialized in call order.
func (h *Handler) Handle(ctx context.Context, msg domain.InboundMessage) Outcome {
	wait, release := h.turns.Reserve(msg.SenderID)
	defer release()
	wait()
	return h.handle(ctx, msg)
}

func (h *Handler) handle(ctx context.Context, msg domain.InboundMessage) Outcome {
	metrics.MessagesTotal.Inc()

	if msg.SenderID == h.channel.SelfID() {
		metrics.MessagesIgnored.Inc()
		return Ignored
	}
	if msg.ChatID != h.chatID {
		metrics.MessagesIgnored.Inc()
		return Ignored
	}
	if strings.TrimSpace(msg.Content) == "" {
		metrics.MessagesIgnored.Inc()
		return Ignored
	}

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	logger := h.logger.With("sender", msg.SenderID, "message_id", msg.MessageID)
	logger.Info("handling message", "content_len", len(msg.Content))

	utterances, err := h.memory.Begin(ctx, msg)
	if err != nil {
		logger.Error("conversation context failed", "err", err)
		metrics.MemoryErrors.Inc()
		h.sendFallback(ctx, logger)
		return Failed
	}

	if typer, ok := h.channel.(domain.Typer); ok {
		if err := typer.Typing(ctx, h.chatID); err != nil {
			logger.Debug("typing indicator failed", "err", err)
		}
	}

	if err := h.limiter.Wait(ctx); err != nil {
		logger.Warn("rate limiter wait aborted", "err", err)
		return Failed
	}

	start := time.Now()
	res := provider.Call(ctx, h.generator, domain.GenerateRequest{
		Utterances: utterances,
		Model:      h.model,
	})
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())

	if !res.OK() {
		logger.Error("generation failed",
			"provider", h.generator.Name(),
			"kind", res.Failure.Kind,
			"detail", res.Failure.Detail,
			"latency_ms", res.LatencyMs,
		)
		metrics.GenerationFailures(string(res.Failure.Kind)).Inc()
		h.sendFallback(ctx, logger)
		return Failed
	}

	if err := h.memory.Commit(ctx, msg, domain.Assistant(res.Text)); err != nil {
		logger.Warn("memory commit failed", "err", err)
	}

	if res.Text == "" {
		logger.Info("empty reply, nothing sent", "latency_ms", res.LatencyMs)
		return Silent
	}

	if err := h.channel.Send(ctx, h.chatID, res.Text); err != nil {
		logger.Error("reply send failed", "err", err)
		return Replied
	}
	metrics.RepliesSent.Inc()
	logger.Info("reply sent",
		"reply_len", len(res.Text),
		"tokens", res.Usage.TotalTokens,
		"latency_ms", res.LatencyMs,
	)
	return Replied
}

func (h *Handler) sendFallback(ctx context.Context, logger *slog.Logger) {
	if err := h.channel.Send(ctx, h.chatID, FallbackMessage); err != nil {
		logger.Error("fallback send failed", "err", err)
	}
}

// turnQueue orders work per key. Turns for one key run one at a time, in
// the order they were reserved.
type turnQueue struct {
	mu    sync.Mutex
	tails map[string]*turn
}

type turn struct {
	done chan struct{}
}

// Reserve takes the next turn for key. wait blocks until every earlier turn
// for key is released; release must be called exactly once.
func (q *turnQueue) Reserve(key string) (wait func(), release func()) {
	t := &turn{done: make(chan struct{})}
	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = t
	q.mu.Unlock()

	wait = func() {
		if prev != nil {
			<-prev.done
		}
	}
	release = func() {
		q.mu.Lock()
		if q.tails[key] == t {
			delete(q.tails, key)
		}
		q.mu.Unlock()
		close(t.done)
	}
	return wait, release
}

func (q *turnQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
