package domain

import (
	"context"
	"errors"
)

// Channel is a chat platform connection (Discord, Telegram, Slack).
type Channel interface {
	Name() string
	// SelfID returns the bot's own user id once Start has connected.
	SelfID() string
	Start(ctx context.Context, bus MessageBus) error
	Send(ctx context.Context, chatID string, content string) error
}

// Typer is implemented by channels that can show a typing indicator.
type Typer interface {
	Typing(ctx context.Context, chatID string) error
}

// HistoryReader is implemented by channels that can read back their own log.
// Messages are returned newest first, the platforms' native order.
type HistoryReader interface {
	History(ctx context.Context, chatID string, limit int) ([]ChannelMessage, error)
}

// ErrChannelNotFound is returned when the configured chat does not exist or
// the bot cannot see it.
var ErrChannelNotFound = errors.New("channel not found")

// Resolver is implemented by channels that can confirm a chat exists before
// anything is sent to it.
type Resolver interface {
	Resolve(ctx context.Context, chatID string) error
}
