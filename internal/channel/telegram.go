package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"checkinbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// Telegram implements domain.Channel for a Telegram bot. Telegram bots cannot
// read chat history, so it offers no HistoryReader.
type Telegram struct {
	token  string
	logger *slog.Logger

	mu  sync.RWMutex
	bot *tgbotapi.BotAPI
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) SelfID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return ""
	}
	return strconv.FormatInt(t.bot.Self.ID, 10)
}

// Start connects to Telegram and long-polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			// StopReceivingUpdates panics if called twice; Start is its only caller.
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if msg, ok := telegramInbound(update); ok {
				t.logger.Debug("telegram message received",
					"user_id", msg.SenderID,
					"chat_id", msg.ChatID,
					"text_len", len(msg.Content),
				)
				bus.Publish(msg)
			}
		}
	}
}

// telegramInbound converts an update into an inbound message. Commands and
// non-message updates are skipped.
func telegramInbound(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	if m.IsCommand() {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Platform:   "telegram",
		ChatID:     strconv.FormatInt(m.Chat.ID, 10),
		MessageID:  strconv.Itoa(m.MessageID),
		SenderID:   strconv.FormatInt(m.From.ID, 10),
		SenderName: m.From.UserName,
		Content:    m.Text,
		Timestamp:  time.Unix(int64(m.Date), 0),
	}, true
}

func (t *Telegram) current() (*tgbotapi.BotAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return nil, ErrNotConnected
	}
	return t.bot, nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}

func (t *Telegram) Send(ctx context.Context, chatID string, content string) error {
	bot, err := t.current()
	if err != nil {
		return err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return fmt.Errorf("telegram send to %d: %w", id, err)
		}
	}
	return nil
}

func (t *Telegram) Typing(ctx context.Context, chatID string) error {
	bot, err := t.current()
	if err != nil {
		return err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return err
}

// Resolve checks that the bot is a member of chatID.
func (t *Telegram) Resolve(ctx context.Context, chatID string) error {
	bot, err := t.current()
	if err != nil {
		return err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if _, err := bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}}); err != nil {
		if strings.Contains(err.Error(), "chat not found") {
			return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, chatID)
		}
		return fmt.Errorf("telegram chat lookup %s: %w", chatID, err)
	}
	return nil
}
