package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// WebhookPath is where the web server mounts the inbound webhook endpoint.
const WebhookPath = "/api/telegram/webhook"

// RegisterWebhook points the bot's webhook at this service. Registering
// the same URL again is harmless, so startup always calls this. The caller
// logs a failure and carries on: a dead webhook registration must not take
// the rest of the application down with it.
func RegisterWebhook(sender Sender, webhookURL string, logger zerolog.Logger) error {
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}

	if _, err := sender.Request(wh); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	logger.Info().
		Str("url", webhookURL).
		Msg("Telegram webhook registered")

	return nil
}
