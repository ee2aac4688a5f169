// Package memory assembles the conversation context sent to the generator.
//
// Two strategies are available: PerUser keeps a running conversation per
// user that is dropped when the calendar date changes, Window rebuilds the
// context from the channel's own recent log on every message.
package memory

import (
	"fmt"
	"log/slog"
	"time"

	"checkinbot/internal/domain"
)

const (
	StrategyPerUser = "per_user"
	StrategyWindow  = "window"
)

// DefaultSystemPrompt seeds every conversation.
const DefaultSystemPrompt = "You are a friendly daily check-in coach helping the user reflect and stay motivated."

// Config selects and configures a memory strategy.
type Config struct {
	Strategy     string
	SystemPrompt string
	WindowSize   int
	Location     *time.Location
	History      domain.HistoryReader // required for StrategyWindow
	SelfID       func() string        // bot identity, required for StrategyWindow
	Logger       *slog.Logger
}

// New builds the configured strategy.
func New(cfg Config) (domain.ConversationMemory, error) {
	switch cfg.Strategy {
	case "", StrategyPerUser:
		return NewPerUser(PerUserConfig{
			SystemPrompt: cfg.SystemPrompt,
			Location:     cfg.Location,
			Logger:       cfg.Logger,
		}), nil
	case StrategyWindow:
		return NewWindow(WindowConfig{
			History:      cfg.History,
			SelfID:       cfg.SelfID,
			Limit:        cfg.WindowSize,
			SystemPrompt: cfg.SystemPrompt,
		})
	default:
		return nil, fmt.Errorf("unknown memory strategy %q", cfg.Strategy)
	}
}
