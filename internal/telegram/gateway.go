// Package telegram implements the out-of-band login handshake: outbound
// sends to the Telegram Bot API, inbound webhook update routing, and the
// handshake state transitions in between.
package telegram

import (
	"fmt"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the subset of tgbotapi.BotAPI the gateway uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway sends messages to the Telegram platform. Every send is
// best-effort: a failed delivery is logged and swallowed, never returned,
// because a failed notification must not roll back the state transition
// that already happened. The user re-triggers any prompt by repeating
// their last action.
type Gateway struct {
	sender Sender
	logger zerolog.Logger
}

// NewGateway creates a new outbound messaging gateway
func NewGateway(sender Sender, logger zerolog.Logger) *Gateway {
	return &Gateway{
		sender: sender,
		logger: logger.With().Str("component", "telegram-gateway").Logger(),
	}
}

// SendMessage sends a plain text message
func (g *Gateway) SendMessage(chatID int64, text string) {
	g.send(tgbotapi.NewMessage(chatID, text), "message")
}

// SendContactKeyboard sends a message with a one-tap reply keyboard that
// shares the user's own verified phone number. Free-text numbers are never
// accepted, so the keyboard is the only way forward.
func (g *Gateway) SendContactKeyboard(chatID int64, text, buttonLabel string) {
	msg := tgbotapi.NewMessage(chatID, text)

	button := tgbotapi.NewKeyboardButton(buttonLabel)
	button.RequestContact = true

	keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(button))
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	msg.ReplyMarkup = keyboard

	g.send(msg, "contact_keyboard")
}

// SendInlineKeyboard sends a message with inline buttons
func (g *Gateway) SendInlineKeyboard(chatID int64, text string, rows ...[]tgbotapi.InlineKeyboardButton) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	g.send(msg, "inline_keyboard")
}

// AnswerCallback acknowledges a callback query, stopping the loading
// indicator on the button the user pressed.
func (g *Gateway) AnswerCallback(callbackID string) {
	callback := tgbotapi.NewCallback(callbackID, "")
	if _, err := g.sender.Request(callback); err != nil {
		g.logger.Warn().
			Err(err).
			Msg("Failed to answer callback query")
	}
}

func (g *Gateway) send(c tgbotapi.Chattable, kind string) {
	if _, err := g.sender.Send(c); err != nil {
		g.logger.Warn().
			Err(err).
			Str("kind", kind).
			Msg("Failed to send Telegram message")
		return
	}

	g.logger.Debug().
		Str("kind", kind).
		Msg("Telegram message sent")
}

// DeepLink builds the t.me link that opens the bot conversation with the
// correlation token as the /start payload.
func DeepLink(botUsername, token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, url.QueryEscape(token))
}
