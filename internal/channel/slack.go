package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"checkinbot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	slackMaxMsgLen     = 4000
	slackMaxHistoryLen = 100
)

// Slack implements domain.Channel for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	logger   *slog.Logger

	mu     sync.RWMutex
	client *slack.Client
	botUID string
	botID  string // bot_id stamped on messages posted with the bot token
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botUID
}

// Start connects to Slack via Socket Mode and publishes message events
// until ctx is cancelled.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	api := slack.New(
		s.botToken,
		slack.OptionAppLevelToken(s.appToken),
	)

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.mu.Lock()
	s.client = api
	s.botUID = authResp.UserID
	s.botID = authResp.BotID
	s.mu.Unlock()
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)

	go func() {
		for evt := range socketClient.Events {
			if evt.Request != nil {
				// Unacknowledged events are redelivered.
				socketClient.Ack(*evt.Request)
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			event, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || event.Type != slackevents.CallbackEvent {
				continue
			}
			ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok {
				continue
			}
			if msg, ok := slackInbound(ev); ok {
				s.logger.Debug("slack message received",
					"user", msg.SenderID,
					"channel", msg.ChatID,
					"content_len", len(msg.Content),
				)
				bus.Publish(msg)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

// slackInbound converts a message event. Edits, joins and other subtypes
// are skipped.
func slackInbound(ev *slackevents.MessageEvent) (domain.InboundMessage, bool) {
	if ev.SubType != "" || ev.User == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Platform:  "slack",
		ChatID:    ev.Channel,
		MessageID: ev.TimeStamp,
		SenderID:  ev.User,
		Content:   ev.Text,
		Timestamp: slackTime(ev.TimeStamp),
	}, true
}

// slackTime parses a Slack "seconds.micros" timestamp.
func slackTime(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Now()
	}
	var us int64
	if frac != "" {
		us, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, us*int64(time.Microsecond))
}

func (s *Slack) current() (*slack.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *Slack) Send(ctx context.Context, channelID string, content string) error {
	client, err := s.current()
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(content, slackMaxMsgLen) {
		_, _, err := client.PostMessageContext(ctx,
			channelID,
			slack.MsgOptionText(chunk, false),
		)
		if err != nil {
			return fmt.Errorf("slack send to %s: %w", channelID, err)
		}
	}
	return nil
}

// History returns up to limit recent messages of channelID, newest first.
func (s *Slack) History(ctx context.Context, channelID string, limit int) ([]domain.ChannelMessage, error) {
	client, err := s.current()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > slackMaxHistoryLen {
		limit = slackMaxHistoryLen
	}
	resp, err := client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("slack history of %s: %w", channelID, err)
	}
	s.mu.RLock()
	selfID, selfBotID := s.botUID, s.botID
	s.mu.RUnlock()
	return slackHistory(resp.Messages, selfID, selfBotID), nil
}

// slackHistory maps conversations.history entries. Messages posted with our
// bot token carry selfBotID and may lack a user, so they are attributed to
// selfID. Other integrations keep their own bot id as author.
func slackHistory(msgs []slack.Message, selfID, selfBotID string) []domain.ChannelMessage {
	out := make([]domain.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		author := m.User
		switch {
		case selfBotID != "" && m.BotID == selfBotID:
			author = selfID
		case author == "" && m.BotID != "":
			author = m.BotID
		}
		out = append(out, domain.ChannelMessage{
			ID:        m.Timestamp,
			AuthorID:  author,
			Content:   m.Text,
			Timestamp: slackTime(m.Timestamp),
		})
	}
	return out
}

// Resolve checks that the bot can see channelID.
func (s *Slack) Resolve(ctx context.Context, channelID string) error {
	client, err := s.current()
	if err != nil {
		return err
	}
	if _, err := client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID}); err != nil {
		var slackErr slack.SlackErrorResponse
		if errors.As(err, &slackErr) && slackErr.Err == "channel_not_found" {
			return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
		}
		if err.Error() == "channel_not_found" {
			return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
		}
		return fmt.Errorf("slack channel lookup %s: %w", channelID, err)
	}
	return nil
}
