package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"checkinbot/internal/domain"
)

const (
	DefaultWindowSize = 10
	MaxWindowSize     = 100
)

var ErrNoHistory = errors.New("channel cannot read its message history")

type WindowConfig struct {
	History      domain.HistoryReader
	SelfID       func() string
	Limit        int
	SystemPrompt string
}

// Window rebuilds the context from the last messages of the channel log.
// Nothing is stored between calls.
type Window struct {
	history      domain.HistoryReader
	selfID       func() string
	limit        int
	systemPrompt string
}

func NewWindow(cfg WindowConfig) (*Window, error) {
	if cfg.History == nil {
		return nil, ErrNoHistory
	}
	if cfg.SelfID == nil {
		return nil, errors.New("window memory needs the bot identity")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultWindowSize
	}
	if cfg.Limit > MaxWindowSize {
		cfg.Limit = MaxWindowSize
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Window{
		history:      cfg.History,
		selfID:       cfg.SelfID,
		limit:        cfg.Limit,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// Window returns the last limit messages of the channel, oldest first,
// without the most recent one, which is the turn being answered.
func (w *Window) Window(ctx context.Context, chatID string, limit int) ([]domain.Utterance, error) {
	return w.window(ctx, chatID, limit, "")
}

// window drops everything up to and including anchorID in native
// (newest first) order, or just the newest message when anchorID is empty
// or not found.
func (w *Window) window(ctx context.Context, chatID string, limit int, anchorID string) ([]domain.Utterance, error) {
	msgs, err := w.history.History(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("read channel history: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	skip := 1
	if anchorID != "" {
		for i, m := range msgs {
			if m.ID == anchorID {
				skip = i + 1
				break
			}
		}
	}
	msgs = msgs[skip:]

	self := w.selfID()
	out := make([]domain.Utterance, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.AuthorID == self {
			out = append(out, domain.Assistant(m.Content))
		} else {
			out = append(out, domain.User(m.Content))
		}
	}
	return out, nil
}

// Begin returns the system utterance, the window and the new message.
func (w *Window) Begin(ctx context.Context, msg domain.InboundMessage) ([]domain.Utterance, error) {
	history, err := w.window(ctx, msg.ChatID, w.limit, msg.MessageID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Utterance, 0, len(history)+2)
	out = append(out, domain.System(w.systemPrompt))
	out = append(out, history...)
	out = append(out, domain.User(msg.Content))
	return out, nil
}

// Commit is a no-op: the reply becomes part of the channel log when sent.
func (w *Window) Commit(ctx context.Context, msg domain.InboundMessage, reply domain.Utterance) error {
	return nil
}
