package telegram

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rentora/rentora/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID = int64(500)

func acceptCallback(id string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      id,
		From:    userAlice(),
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    callbackAcceptPolicy,
	}
}

func shareContact(t *testing.T, h *Handshake, phone string) {
	t.Helper()
	err := h.HandleContact(context.Background(), chatID, userAlice(), &tgbotapi.Contact{
		PhoneNumber: phone,
		UserID:      userAlice().ID,
	})
	require.NoError(t, err)
}

func TestLoginStart_UnknownToken(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	existing, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, h.HandleLoginStart(ctx, chatID, "never-issued", userAlice()))

	assert.Equal(t, msgInvalidLink, sender.lastMessage(t).Text)

	// No session was created or mutated
	got, err := store.GetByToken(ctx, existing.Token)
	require.NoError(t, err)
	assert.Nil(t, got.TelegramID)
	assert.Equal(t, session.StatusPending, got.Status)
}

func TestLoginStart_AttachesIdentity(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, got.TelegramID)
	assert.Equal(t, int64(111), *got.TelegramID)
	assert.Equal(t, "Alice", got.FirstName)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, session.StatusPending, got.Status)

	// The prompt asks for a platform-verified contact share
	msg := sender.lastMessage(t)
	assert.Equal(t, msgSharePhone, msg.Text)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, keyboard.Keyboard[0][0].RequestContact)
}

func TestLoginStart_ReplayAfterConfirm(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))
	shareContact(t, h, "79990001111")
	require.NoError(t, h.HandleCallback(ctx, acceptCallback("cb-1")))

	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))

	assert.Equal(t, msgAlreadyConfirmed, sender.lastMessage(t).Text)

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, got.Status)
}

func TestContact_AdvancesToPhoneReceived(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))

	shareContact(t, h, "79990001111")

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "+79990001111", got.Phone)
	assert.Equal(t, session.StatusPhoneReceived, got.Status)

	// Consent prompt with accept and cancel buttons
	msg := sender.lastMessage(t)
	assert.Equal(t, msgConsentPrompt, msg.Text)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, callbackAcceptPolicy, *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, callbackCancelPolicy, *keyboard.InlineKeyboard[0][1].CallbackData)
}

func TestContact_NoActiveSession(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	// A session exists but was never linked to this identity
	untouched, err := store.Create(ctx)
	require.NoError(t, err)

	shareContact(t, h, "79990001111")

	assert.Equal(t, msgNoActiveSession, sender.lastMessage(t).Text)

	got, err := store.GetByToken(ctx, untouched.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.Status)
	assert.Empty(t, got.Phone)
}

func TestCallback_Accept(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))
	shareContact(t, h, "79990001111")

	require.NoError(t, h.HandleCallback(ctx, acceptCallback("cb-1")))

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, got.Status)
	assert.True(t, got.PolicyAccepted)

	// Callback acknowledged exactly once
	require.Len(t, sender.requests, 1)

	// Completion link embeds the session token
	msg := sender.lastMessage(t)
	assert.Equal(t, msgConfirmed, msg.Text)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	button := keyboard.InlineKeyboard[0][0]
	require.NotNil(t, button.URL)
	assert.Contains(t, *button.URL, sess.Token)
	assert.Contains(t, *button.URL, "https://rentora.example/login/telegram/complete")
}

func TestCallback_DuplicateAccept(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))
	shareContact(t, h, "79990001111")

	require.NoError(t, h.HandleCallback(ctx, acceptCallback("cb-1")))
	require.NoError(t, h.HandleCallback(ctx, acceptCallback("cb-2")))

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, got.Status)

	// Each delivery gets its own acknowledgement, but only one transition
	assert.Len(t, sender.requests, 2)
	assert.Equal(t, msgAlreadyConfirmed, sender.lastMessage(t).Text)
}

func TestCallback_Cancel(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))
	shareContact(t, h, "79990001111")

	cancel := acceptCallback("cb-1")
	cancel.Data = callbackCancelPolicy
	require.NoError(t, h.HandleCallback(ctx, cancel))

	assert.Equal(t, msgCancelled, sender.lastMessage(t).Text)

	// Cancel abandons but does not mutate: the user may still accept
	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPhoneReceived, got.Status)

	require.NoError(t, h.HandleCallback(ctx, acceptCallback("cb-2")))
	got, err = store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, got.Status)
}

func TestCallback_AcceptWithoutSession(t *testing.T) {
	h, _, sender := newTestHandshake(t)

	require.NoError(t, h.HandleCallback(context.Background(), acceptCallback("cb-1")))

	assert.Equal(t, msgSessionExpired, sender.lastMessage(t).Text)
}

func TestCallback_UnknownData(t *testing.T) {
	h, _, sender := newTestHandshake(t)

	cb := acceptCallback("cb-1")
	cb.Data = "something_new"
	require.NoError(t, h.HandleCallback(context.Background(), cb))

	// Acknowledged, otherwise ignored
	assert.Len(t, sender.requests, 1)
	assert.Empty(t, sender.sent)
}

func TestCallback_MostRecentSessionWins(t *testing.T) {
	h, store, _ := newTestHandshake(t)
	ctx := context.Background()

	older, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, older.Token, userAlice()))
	shareContact(t, h, "79990001111")

	newer, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, newer.Token, userAlice()))
	shareContact(t, h, "79990001111")

	require.NoError(t, h.HandleCallback(ctx, acceptCallback("cb-1")))

	gotNewer, err := store.GetByToken(ctx, newer.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, gotNewer.Status)

	gotOlder, err := store.GetByToken(ctx, older.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPhoneReceived, gotOlder.Status)
}

func TestContact_ForeignContactRejected(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))

	// An attached address-book contact carries someone else's user id
	err = h.HandleContact(ctx, chatID, userAlice(), &tgbotapi.Contact{
		PhoneNumber: "79995554433",
		UserID:      999,
	})
	require.NoError(t, err)

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.Status)
	assert.Empty(t, got.Phone)

	// Re-prompted for a platform-verified share
	msg := sender.lastMessage(t)
	assert.Equal(t, msgSharePhone, msg.Text)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, keyboard.Keyboard[0][0].RequestContact)

	// The user's own contact still completes the step
	shareContact(t, h, "79990001111")
	got, err = store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPhoneReceived, got.Status)
	assert.Equal(t, "+79990001111", got.Phone)
}

func TestContact_PhoneWithoutDigitsRejected(t *testing.T) {
	h, store, sender := newTestHandshake(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, h.HandleLoginStart(ctx, chatID, sess.Token, userAlice()))

	shareContact(t, h, "n/a")

	got, err := store.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPending, got.Status)
	assert.Empty(t, got.Phone)
	assert.Equal(t, msgSharePhone, sender.lastMessage(t).Text)
}
