package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"checkinbot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen     = 2000
	discordMaxHistoryLen = 100
)

// Discord implements domain.Channel for Discord.
type Discord struct {
	token  string
	logger *slog.Logger

	mu      sync.RWMutex
	session *discordgo.Session
	selfID  string
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token  string
	Logger *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:  cfg.Token,
		logger: cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) SelfID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selfID
}

// Start connects to Discord using a bot token, publishes every message it
// sees to bus and blocks until ctx is cancelled.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	session, err := newDiscordSession(d.token)
	if err != nil {
		return err
	}

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.mu.Lock()
		d.selfID = r.User.ID
		d.mu.Unlock()
		d.logger.Info("discord bot ready", "user", r.User.Username, "user_id", r.User.ID)
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
		)
		bus.Publish(domain.InboundMessage{
			Platform:   "discord",
			ChatID:     m.ChannelID,
			MessageID:  m.ID,
			SenderID:   m.Author.ID,
			SenderName: m.Author.Username,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
		})
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	d.mu.Lock()
	d.session = session
	if session.State != nil && session.State.User != nil {
		d.selfID = session.State.User.ID
	}
	d.mu.Unlock()

	d.logger.Info("discord bot connected")

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")

	d.mu.Lock()
	d.session = nil
	d.mu.Unlock()
	return session.Close()
}

func newDiscordSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Run handlers on the event loop so messages are published in the order
	// the gateway delivers them.
	session.SyncEvents = true
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return session, nil
}

func (d *Discord) current() (*discordgo.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, ErrNotConnected
	}
	return d.session, nil
}

// Send posts content to channelID, split into 2000-character messages.
func (d *Discord) Send(ctx context.Context, channelID string, content string) error {
	session, err := d.current()
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send to %s: %w", channelID, err)
		}
	}
	return nil
}

func (d *Discord) Typing(ctx context.Context, channelID string) error {
	session, err := d.current()
	if err != nil {
		return err
	}
	return session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// History returns up to limit recent messages of channelID, newest first.
func (d *Discord) History(ctx context.Context, channelID string, limit int) ([]domain.ChannelMessage, error) {
	session, err := d.current()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > discordMaxHistoryLen {
		limit = discordMaxHistoryLen
	}
	msgs, err := session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord history of %s: %w", channelID, err)
	}
	return discordHistory(msgs), nil
}

// Resolve checks that the bot can see channelID.
func (d *Discord) Resolve(ctx context.Context, channelID string) error {
	session, err := d.current()
	if err != nil {
		return err
	}
	if _, err := session.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) {
			if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
				return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
			}
			if restErr.Response != nil && (restErr.Response.StatusCode == http.StatusNotFound || restErr.Response.StatusCode == http.StatusForbidden) {
				return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
			}
		}
		return fmt.Errorf("discord channel lookup %s: %w", channelID, err)
	}
	return nil
}

func discordHistory(msgs []*discordgo.Message) []domain.ChannelMessage {
	out := make([]domain.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		var author string
		if m.Author != nil {
			author = m.Author.ID
		}
		out = append(out, domain.ChannelMessage{
			ID:        m.ID,
			AuthorID:  author,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out
}
