package agent

import (
	"context"
	"fmt"
	"log/slog"

	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
	"checkinbot/internal/prompts"
	"checkinbot/internal/schedule"
)

// CheckInConfig configures the daily check-in job.
type CheckInConfig struct {
	Channel  domain.Channel
	ChatID   string
	Bank     *prompts.Bank
	Strategy prompts.Strategy
	Logger   *slog.Logger
}

// CheckIn returns the job that posts the daily check-in message. Errors are
// returned to the runner, which logs them and waits for the next day.
func CheckIn(cfg CheckInConfig) schedule.Job {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if resolver, ok := cfg.Channel.(domain.Resolver); ok {
			if err := resolver.Resolve(ctx, cfg.ChatID); err != nil {
				metrics.CheckInErrors.Inc()
				return fmt.Errorf("daily check-in: %w", err)
			}
		}

		text := cfg.Bank.DailyMessage(cfg.Strategy)
		if err := cfg.Channel.Send(ctx, cfg.ChatID, text); err != nil {
			metrics.CheckInErrors.Inc()
			return fmt.Errorf("daily check-in send: %w", err)
		}
		metrics.CheckInsSent.Inc()
		cfg.Logger.Info("daily check-in sent",
			"chat_id", cfg.ChatID,
			"strategy", cfg.Strategy,
			"len", len(text),
		)
		return nil
	}
}
