package chat

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/runwhale/runwhale/pkg/credential"
)

const helpText = `Runwhale commands:
/start — register this chat
/login [scopes] — get a one-time login link (default: all non-admin scopes)
/keys — list your active API keys
/revoke <keyId> — revoke a key
/mute — disable notifications
/unmute — enable default notifications
/help — this message`

// defaultLoginScopes are granted when /login is called without arguments.
var defaultLoginScopes = []string{
	credential.ScopeEnvRead, credential.ScopeEnvWrite,
	credential.ScopeDeployRead, credential.ScopeDeployWrite,
	credential.ScopeLogsRead,
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "login":
		b.cmdLogin(ctx, msg)
	case "keys":
		b.cmdKeys(ctx, chatID)
	case "revoke":
		b.cmdRevoke(ctx, msg)
	case "mute":
		b.cmdSetNotifications(ctx, chatID, false)
	case "unmute":
		b.cmdSetNotifications(ctx, chatID, true)
	case "help":
		b.reply(chatID, helpText)
	default:
		b.reply(chatID, "Unknown command. Try /help.")
	}
}

// cmdStart registers the user row on first contact; idempotent after that.
func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	var handle *string
	if msg.From != nil && msg.From.UserName != "" {
		h := msg.From.UserName
		handle = &h
	}

	if _, err := b.users.Register(ctx, msg.Chat.ID, handle); err != nil {
		b.logger.Error("registering chat user", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg.Chat.ID, "Registration failed, please try again.")
		return
	}

	b.reply(msg.Chat.ID, "Welcome to Runwhale! Use /login to get an API key.\n"+helpText)
}

// cmdLogin issues a magic link and DMs the redemption URL. The link is valid
// for 15 minutes and redeemable exactly once.
func (b *Bot) cmdLogin(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	u, err := b.users.GetByChatID(ctx, chatID)
	if err != nil {
		b.reply(chatID, "You are not registered yet — send /start first.")
		return
	}

	scopes := defaultLoginScopes
	if args := strings.Fields(msg.CommandArguments()); len(args) > 0 {
		scopes = args
	}

	link, err := b.credentials.IssueMagicLink(ctx, u.ID, scopes)
	if err != nil {
		b.logger.Error("issuing magic link", "chat_id", chatID, "error", err)
		b.reply(chatID, "Could not issue a login link. Check the scopes and try again.")
		return
	}

	b.reply(chatID, fmt.Sprintf(
		"Your one-time login link (valid until %s):\n%s/auth/verify?token=%s\n\nOpening it returns your API key. The key is shown exactly once.",
		link.ExpiresAt.Format("15:04 MST"), b.baseURL, link.Token,
	))
}

// cmdKeys lists the user's active keys.
func (b *Bot) cmdKeys(ctx context.Context, chatID int64) {
	u, err := b.users.GetByChatID(ctx, chatID)
	if err != nil {
		b.reply(chatID, "You are not registered yet — send /start first.")
		return
	}

	keys, err := b.credentials.ListKeys(ctx, u.ID)
	if err != nil {
		b.logger.Error("listing keys", "chat_id", chatID, "error", err)
		b.reply(chatID, "Could not list your keys.")
		return
	}
	if len(keys) == 0 {
		b.reply(chatID, "You have no active API keys. Use /login to create one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your active API keys:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "• %s — scopes: %s", k.KeyID, strings.Join(k.Scopes, ", "))
		if k.LastUsedAt != nil {
			fmt.Fprintf(&sb, " (last used %s)", k.LastUsedAt.Format("2006-01-02 15:04"))
		}
		sb.WriteString("\n")
	}
	b.reply(chatID, sb.String())
}

// cmdRevoke invalidates one of the user's keys by its public key ID.
func (b *Bot) cmdRevoke(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	keyID := strings.TrimSpace(msg.CommandArguments())
	if keyID == "" {
		b.reply(chatID, "Usage: /revoke <keyId>")
		return
	}

	u, err := b.users.GetByChatID(ctx, chatID)
	if err != nil {
		b.reply(chatID, "You are not registered yet — send /start first.")
		return
	}

	if err := b.credentials.Revoke(ctx, u.ID, keyID); err != nil {
		b.reply(chatID, fmt.Sprintf("Could not revoke %s — check the key ID with /keys.", keyID))
		return
	}
	b.reply(chatID, fmt.Sprintf("Key %s revoked.", keyID))
}

// cmdSetNotifications turns every notification boolean off, or restores the
// defaults a newly registered user gets.
func (b *Bot) cmdSetNotifications(ctx context.Context, chatID int64, enabled bool) {
	u, err := b.users.GetByChatID(ctx, chatID)
	if err != nil {
		b.reply(chatID, "You are not registered yet — send /start first.")
		return
	}

	prefs := allPrefsOff()
	if enabled {
		prefs = defaultPrefsOn()
	}

	if err := b.users.SetPrefs(ctx, u.ID, prefs); err != nil {
		b.logger.Error("updating preferences", "chat_id", chatID, "error", err)
		b.reply(chatID, "Could not update your preferences.")
		return
	}

	if enabled {
		b.reply(chatID, "Notifications enabled.")
	} else {
		b.reply(chatID, "Notifications muted.")
	}
}
