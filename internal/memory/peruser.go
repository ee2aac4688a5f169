package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"checkinbot/internal/domain"
)

type PerUserConfig struct {
	SystemPrompt string
	Location     *time.Location // calendar used for the daily reset
	Now          func() time.Time
	Logger       *slog.Logger
}

// PerUser keeps one conversation per user id and forgets all of them when
// the calendar date changes. The reset is lazy: it is checked on Begin.
type PerUser struct {
	mu            sync.Mutex
	conversations map[string][]domain.Utterance
	day           string

	systemPrompt string
	loc          *time.Location
	now          func() time.Time
	logger       *slog.Logger
}

func NewPerUser(cfg PerUserConfig) *PerUser {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &PerUser{
		conversations: make(map[string][]domain.Utterance),
		systemPrompt:  cfg.SystemPrompt,
		loc:           cfg.Location,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}
	p.day = p.dayOf(cfg.Now())
	return p
}

func (p *PerUser) dayOf(t time.Time) string {
	return t.In(p.loc).Format(time.DateOnly)
}

// ResetIfNewDay clears every conversation when now falls on a different
// calendar date than the last observed one. Reports whether it reset.
func (p *PerUser) ResetIfNewDay(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetIfNewDayLocked(now)
}

func (p *PerUser) resetIfNewDayLocked(now time.Time) bool {
	today := p.dayOf(now)
	if today == p.day {
		return false
	}
	dropped := len(p.conversations)
	p.conversations = make(map[string][]domain.Utterance)
	p.day = today
	p.logger.Info("daily conversation reset", "day", today, "dropped", dropped)
	return true
}

// GetOrCreate returns a copy of the user's conversation, seeding it with
// the system utterance on first use.
func (p *PerUser) GetOrCreate(key string) []domain.Utterance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.getOrCreateLocked(key))
}

func (p *PerUser) getOrCreateLocked(key string) []domain.Utterance {
	conv, ok := p.conversations[key]
	if !ok {
		conv = []domain.Utterance{domain.System(p.systemPrompt)}
		p.conversations[key] = conv
	}
	return conv
}

// Append adds u to the end of the user's conversation, creating it if needed.
func (p *PerUser) Append(key string, u domain.Utterance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversations[key] = append(p.getOrCreateLocked(key), u)
}

// Len returns the number of live conversations.
func (p *PerUser) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conversations)
}

// Begin resets on a new day, appends the inbound text as a user utterance
// and returns the whole conversation.
func (p *PerUser) Begin(ctx context.Context, msg domain.InboundMessage) ([]domain.Utterance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfNewDayLocked(p.now())
	conv := append(p.getOrCreateLocked(msg.SenderID), domain.User(msg.Content))
	p.conversations[msg.SenderID] = conv
	return clone(conv), nil
}

// Commit appends the reply. If the conversation was reset since Begin the
// reply belongs to the previous day and is dropped.
func (p *PerUser) Commit(ctx context.Context, msg domain.InboundMessage, reply domain.Utterance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.conversations[msg.SenderID]
	if !ok {
		p.logger.Debug("conversation reset before reply, dropping", "user", msg.SenderID)
		return nil
	}
	p.conversations[msg.SenderID] = append(conv, reply)
	return nil
}

func clone(in []domain.Utterance) []domain.Utterance {
	out := make([]domain.Utterance, len(in))
	copy(out, in)
	return out
}
