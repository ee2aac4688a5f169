package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"checkinbot/internal/agent"
	"checkinbot/internal/bus"
	"checkinbot/internal/channel"
	"checkinbot/internal/config"
	"checkinbot/internal/domain"
	"checkinbot/internal/memory"
	"checkinbot/internal/metrics"
	"checkinbot/internal/prompts"
	"checkinbot/internal/provider"
	"checkinbot/internal/schedule"

	"github.com/spf13/cobra"
)

// rateLimitBurst is how many generation calls may go out back to back before
// the per-minute rate applies.
const rateLimitBurst = 3

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat platform and start the bot",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath(), true)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var closer io.Closer
	logger, closer = newLogger(cfg.General)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(100, logger)

	ch, err := buildChannel(cfg)
	if err != nil {
		return err
	}

	gen, err := provider.New(ctx, cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	mem, err := buildMemory(cfg, ch)
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	bank, err := buildBank(cfg.Prompts)
	if err != nil {
		return fmt.Errorf("prompts: %w", err)
	}

	handler := agent.NewHandler(agent.HandlerConfig{
		Channel:     ch,
		ChatID:      cfg.Channel.ID,
		Memory:      mem,
		Generator:   gen,
		Bus:         messageBus,
		Limiter:     agent.NewRateLimiter(rateLimitBurst, float64(cfg.Provider.RateLimitPerMinute)),
		Concurrency: cfg.General.MaxConcurrentMessages,
		Logger:      logger,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.Run(ctx)
	}()

	if cfg.Schedule.Enabled {
		sched, err := schedule.Parse(cfg.Schedule.Hour, cfg.Schedule.Minute, cfg.Schedule.Timezone, cfg.Schedule.Cron)
		if err != nil {
			return err
		}
		runner := schedule.NewRunner(schedule.RunnerConfig{
			Name:     "daily-checkin",
			Schedule: sched,
			Job: agent.CheckIn(agent.CheckInConfig{
				Channel:  ch,
				ChatID:   cfg.Channel.ID,
				Bank:     bank,
				Strategy: prompts.Strategy(cfg.Schedule.Strategy),
				Logger:   logger,
			}),
			Logger: logger,
		})
		logger.Info("daily check-in scheduled", "schedule", scheduleLabel(cfg.Schedule), "next", runner.NextRun())
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx)
		}()
	} else {
		logger.Info("daily check-in disabled")
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Endpoint, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	chErr := make(chan error, 1)
	go func() {
		chErr <- ch.Start(ctx, messageBus)
	}()

	logger.Info("checkinbot started. Press Ctrl+C to stop.",
		"platform", ch.Name(),
		"channel_id", cfg.Channel.ID,
		"provider", gen.Name(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-chErr:
		if err != nil {
			logger.Error("channel stopped", "platform", ch.Name(), "err", err)
			runErr = fmt.Errorf("%s channel: %w", ch.Name(), err)
		}
	}
	stop()

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		messageBus.Close()
		wg.Wait()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		runErr = errors.Join(runErr, errors.New("shutdown timed out"))
	}
	return runErr
}

func buildChannel(cfg *config.Config) (domain.Channel, error) {
	switch cfg.Channel.Platform {
	case "discord":
		return channel.NewDiscord(channel.DiscordConfig{Token: cfg.Discord.Token, Logger: logger}), nil
	case "telegram":
		return channel.NewTelegram(channel.TelegramConfig{Token: cfg.Telegram.Token, Logger: logger}), nil
	case "slack":
		return channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Channel.Platform)
	}
}

func buildMemory(cfg *config.Config, ch domain.Channel) (domain.ConversationMemory, error) {
	loc, err := schedule.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	history, _ := ch.(domain.HistoryReader)
	systemPrompt := cfg.Memory.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = memory.DefaultSystemPrompt
	}
	return memory.New(memory.Config{
		Strategy:     cfg.Memory.Strategy,
		SystemPrompt: systemPrompt,
		WindowSize:   cfg.Memory.WindowSize,
		Location:     loc,
		History:      history,
		SelfID:       ch.SelfID,
		Logger:       logger.With("component", "memory"),
	})
}
