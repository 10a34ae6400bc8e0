package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rentora/rentora/internal/session"
	"github.com/rs/zerolog"
)

// Handshake advances login sessions in response to inbound Telegram events.
// Every transition re-checks the current session status inside the store's
// conditional update, so replayed or concurrently delivered events resolve
// to exactly one outcome.
type Handshake struct {
	store       *session.Store
	gateway     *Gateway
	siteBaseURL string
	logger      zerolog.Logger
}

// NewHandshake creates the handshake handlers
func NewHandshake(store *session.Store, gateway *Gateway, siteBaseURL string, logger zerolog.Logger) *Handshake {
	return &Handshake{
		store:       store,
		gateway:     gateway,
		siteBaseURL: strings.TrimRight(siteBaseURL, "/"),
		logger:      logger.With().Str("component", "telegram-handshake").Logger(),
	}
}

// HandleLoginStart processes "/start <token>": the user followed the
// deep link from the website. The invalid and expired cases share one
// message so the reply never reveals whether a token ever existed.
func (h *Handshake) HandleLoginStart(ctx context.Context, chatID int64, token string, from *tgbotapi.User) error {
	log := h.logger.With().
		Str("token_prefix", session.TokenPrefix(token)).
		Int64("telegram_id", from.ID).
		Logger()

	sess, err := h.store.GetByToken(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		log.Info().Msg("Login start with unknown token")
		h.gateway.SendMessage(chatID, msgInvalidLink)
		return nil
	}
	if err != nil {
		return fmt.Errorf("login start lookup: %w", err)
	}

	if sess.Confirmed() {
		h.gateway.SendMessage(chatID, msgAlreadyConfirmed)
		return nil
	}

	if _, err := h.store.AttachIdentity(ctx, token, from.ID, from.FirstName, from.UserName); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Confirmed between the read and the guarded write
			h.gateway.SendMessage(chatID, msgAlreadyConfirmed)
			return nil
		}
		return fmt.Errorf("attach identity: %w", err)
	}

	log.Info().Msg("Identity attached to login session")
	h.gateway.SendContactKeyboard(chatID, msgSharePhone, btnSharePhone)
	return nil
}

// HandleContact processes a shared contact: records the phone number on
// the identity's active session and asks for policy consent.
func (h *Handshake) HandleContact(ctx context.Context, chatID int64, from *tgbotapi.User, contact *tgbotapi.Contact) error {
	// Telegram lets a user attach any address-book entry as a contact
	// message; only the sender's own contact carries a verified number.
	if contact.UserID != from.ID {
		h.logger.Info().
			Int64("telegram_id", from.ID).
			Int64("contact_user_id", contact.UserID).
			Msg("Rejecting contact that does not belong to the sender")
		h.gateway.SendContactKeyboard(chatID, msgSharePhone, btnSharePhone)
		return nil
	}

	phone := session.NormalizePhone(contact.PhoneNumber)
	if phone == "" {
		h.logger.Info().
			Int64("telegram_id", from.ID).
			Msg("Rejecting contact without a usable phone number")
		h.gateway.SendContactKeyboard(chatID, msgSharePhone, btnSharePhone)
		return nil
	}

	sess, err := h.store.LatestForIdentity(ctx, from.ID, session.StatusPending, session.StatusPhoneReceived)
	if errors.Is(err, session.ErrNotFound) {
		h.gateway.SendMessage(chatID, msgNoActiveSession)
		return nil
	}
	if err != nil {
		return fmt.Errorf("contact session lookup: %w", err)
	}

	if err := h.store.SetPhone(ctx, sess.ID, phone); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.gateway.SendMessage(chatID, msgNoActiveSession)
			return nil
		}
		return fmt.Errorf("set phone: %w", err)
	}

	h.logger.Info().
		Str("token_prefix", session.TokenPrefix(sess.Token)).
		Int64("telegram_id", from.ID).
		Msg("Phone received for login session")

	h.gateway.SendInlineKeyboard(chatID, msgConsentPrompt,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnAcceptPolicy, callbackAcceptPolicy),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, callbackCancelPolicy),
		),
	)
	return nil
}

// HandleCallback processes a button press. The callback itself is
// acknowledged exactly once, before any business outcome.
func (h *Handshake) HandleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	h.gateway.AnswerCallback(cb.ID)

	chatID := cb.From.ID
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}

	switch cb.Data {
	case callbackCancelPolicy:
		// A cancel abandons the attempt but mutates nothing: the user may
		// still continue by pressing accept, or restart from the site.
		h.gateway.SendMessage(chatID, msgCancelled)
		return nil

	case callbackAcceptPolicy:
		return h.confirm(ctx, chatID, cb.From.ID)

	default:
		// Unrecognized buttons are ignored for forward compatibility
		h.logger.Debug().
			Str("callback_data", cb.Data).
			Msg("Ignoring unknown callback")
		return nil
	}
}

func (h *Handshake) confirm(ctx context.Context, chatID, telegramID int64) error {
	sess, err := h.store.LatestForIdentity(ctx, telegramID, session.StatusPhoneReceived)
	if errors.Is(err, session.ErrNotFound) {
		h.sendConfirmFallback(ctx, chatID, telegramID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm session lookup: %w", err)
	}

	if err := h.store.Confirm(ctx, sess.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Lost the race to a duplicate accept
			h.sendConfirmFallback(ctx, chatID, telegramID)
			return nil
		}
		return fmt.Errorf("confirm session: %w", err)
	}

	h.logger.Info().
		Str("token_prefix", session.TokenPrefix(sess.Token)).
		Int64("telegram_id", telegramID).
		Msg("Login session confirmed")

	h.gateway.SendInlineKeyboard(chatID, msgConfirmed,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(btnReturnToSite, h.completionLink(sess.Token)),
		),
	)
	return nil
}

// sendConfirmFallback distinguishes a duplicate accept (the identity
// already has a confirmed session) from a genuinely expired attempt.
func (h *Handshake) sendConfirmFallback(ctx context.Context, chatID, telegramID int64) {
	if _, err := h.store.LatestForIdentity(ctx, telegramID, session.StatusConfirmed); err == nil {
		h.gateway.SendMessage(chatID, msgAlreadyConfirmed)
		return
	}
	h.gateway.SendMessage(chatID, msgSessionExpired)
}

func (h *Handshake) completionLink(token string) string {
	return fmt.Sprintf("%s/login/telegram/complete?token=%s", h.siteBaseURL, url.QueryEscape(token))
}
