// Package chat is the Telegram surface: user registration, magic-link
// issuance, key management, and notification delivery. Commands wrap the
// credential and user services; no domain logic lives here.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/runwhale/runwhale/pkg/credential"
	"github.com/runwhale/runwhale/pkg/user"
)

// Bot wraps the Telegram API. If no token is configured the bot is a noop:
// Enabled reports false and Send drops messages silently.
type Bot struct {
	api         *tgbotapi.BotAPI
	users       *user.Service
	credentials *credential.Service
	baseURL     string
	logger      *slog.Logger
}

// New creates a Bot. An empty token yields a disabled bot.
func New(token, baseURL string, users *user.Service, credentials *credential.Service, logger *slog.Logger) (*Bot, error) {
	b := &Bot{
		users:       users,
		credentials: credentials,
		baseURL:     baseURL,
		logger:      logger,
	}
	if token == "" {
		return b, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	api.Debug = false
	b.api = api
	return b, nil
}

// Enabled reports whether the bot has a live Telegram connection.
func (b *Bot) Enabled() bool {
	return b.api != nil
}

// Send delivers a plain-text message to a chat. Implements notifier.Sender.
func (b *Bot) Send(_ context.Context, chatID int64, text string) error {
	if !b.Enabled() {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

// Run long-polls Telegram for updates until ctx is cancelled. A disabled bot
// returns immediately.
func (b *Bot) Run(ctx context.Context) {
	if !b.Enabled() {
		b.logger.Info("chat surface disabled (TELEGRAM_BOT_TOKEN not set)")
		return
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("chat surface started", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("chat surface stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("sending command reply", "chat_id", chatID, "error", err)
	}
}
