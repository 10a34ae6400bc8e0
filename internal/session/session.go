// Package session persists Telegram login sessions and owns every state
// transition of the login handshake: pending -> phone_received -> confirmed.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Status is the login session state
type Status string

const (
	// StatusPending is the initial state: the web client created the
	// session and the user has not yet opened the bot.
	StatusPending Status = "pending"

	// StatusPhoneReceived means the user shared their contact with the bot.
	StatusPhoneReceived Status = "phone_received"

	// StatusConfirmed is terminal: the user accepted the policy and the
	// web client may redeem the token.
	StatusConfirmed Status = "confirmed"
)

const tokenLength = 32

// ErrNotFound is returned when no session matches the lookup, or when a
// guarded transition finds the session no longer in the required state.
var ErrNotFound = errors.New("session not found")

// Session is a single login attempt, keyed by its one-time token.
type Session struct {
	ID             string
	Token          string
	TelegramID     *int64
	FirstName      string
	Username       string
	Phone          string
	PolicyAccepted bool
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Confirmed reports whether the session reached its terminal state.
func (s *Session) Confirmed() bool {
	return s.Status == StatusConfirmed
}

// NewToken generates a fresh correlation token. The token is the only
// secret binding the web login attempt to the Telegram conversation.
func NewToken() (string, error) {
	token, err := gonanoid.New(tokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return token, nil
}

// TokenPrefix returns a short, log-safe prefix of a token.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

// NormalizePhone strips formatting characters from a phone number and
// ensures a leading "+". Normalizing an already normalized number is a
// no-op.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return "+" + digits
}
