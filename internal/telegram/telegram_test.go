package telegram

import (
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rentora/rentora/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeSender records outbound traffic instead of hitting the Telegram API.
type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) sentMessages(t *testing.T) []tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := make([]tgbotapi.MessageConfig, 0, len(f.sent))
	for _, c := range f.sent {
		msg, ok := c.(tgbotapi.MessageConfig)
		require.True(t, ok, "expected MessageConfig, got %T", c)
		msgs = append(msgs, msg)
	}
	return msgs
}

func (f *fakeSender) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.sentMessages(t)
	require.NotEmpty(t, msgs, "no messages sent")
	return msgs[len(msgs)-1]
}

var errSendFailed = errors.New("telegram unreachable")

func newTestStore(t *testing.T) *session.Store {
	store, err := session.NewStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestHandshake(t *testing.T) (*Handshake, *session.Store, *fakeSender) {
	store := newTestStore(t)
	sender := &fakeSender{}
	gateway := NewGateway(sender, zerolog.Nop())
	handshake := NewHandshake(store, gateway, "https://rentora.example/", zerolog.Nop())
	return handshake, store, sender
}

func userAlice() *tgbotapi.User {
	return &tgbotapi.User{ID: 111, FirstName: "Alice", UserName: "alice"}
}
