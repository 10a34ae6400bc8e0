package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const dispatchTimeout = 30 * time.Second

// Router classifies inbound webhook updates and dispatches them to the
// handshake handlers. The webhook HTTP layer acknowledges the platform
// before calling Dispatch on a detached goroutine, so nothing here may
// propagate back to the response: handler errors and panics are logged and
// dropped.
type Router struct {
	handshake *Handshake
	gateway   *Gateway
	logger    zerolog.Logger
}

// NewRouter creates a new inbound event router
func NewRouter(handshake *Handshake, gateway *Gateway, logger zerolog.Logger) *Router {
	return &Router{
		handshake: handshake,
		gateway:   gateway,
		logger:    logger.With().Str("component", "telegram-router").Logger(),
	}
}

// Dispatch routes a single update. Safe to call on a detached goroutine.
func (r *Router) Dispatch(update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Int("update_id", update.UpdateID).
				Msg("Panic while handling update")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := r.route(ctx, update); err != nil {
		r.logger.Error().
			Err(err).
			Int("update_id", update.UpdateID).
			Msg("Failed to handle update")
	}
}

func (r *Router) route(ctx context.Context, update tgbotapi.Update) error {
	// Button presses first: a callback update also carries a message
	if update.CallbackQuery != nil {
		return r.handshake.HandleCallback(ctx, update.CallbackQuery)
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	if msg.Contact != nil {
		return r.handshake.HandleContact(ctx, msg.Chat.ID, msg.From, msg.Contact)
	}

	if msg.IsCommand() && msg.Command() == loginCommand {
		token := strings.TrimSpace(msg.CommandArguments())
		if token != "" {
			return r.handshake.HandleLoginStart(ctx, msg.Chat.ID, token, msg.From)
		}
		r.gateway.SendMessage(msg.Chat.ID, msgWelcome)
		return nil
	}

	r.gateway.SendMessage(msg.Chat.ID, msgFallback)
	return nil
}
