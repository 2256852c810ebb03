package notifier

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type TelegramConfig struct {
	Token     string `mapstructure:"token"`
	ChatID    int64  `mapstructure:"chat_id"`
	ServerURL string `mapstructure:"server_url"`
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram posts alerts to a single chat.
type Telegram struct {
	sender messageSender
	chatID int64
}

// NewTelegram returns nil, nil when no token is configured.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, nil
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{sender: b, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, msg Message) error {
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   msg.Subject + "\n\n" + msg.Body,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
