package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rentora/rentora/internal/session"
	"github.com/rentora/rentora/internal/telegram"
)

type errorResponse struct {
	Error string `json:"error"`
}

type loginInitResponse struct {
	Token   string `json:"token"`
	BotLink string `json:"bot_link"`
}

type loginStatusResponse struct {
	Status session.Status `json:"status"`
}

type completeRequest struct {
	Token string `json:"token"`
}

type completeResponse struct {
	TelegramID int64  `json:"telegram_id"`
	Phone      string `json:"phone"`
	FirstName  string `json:"first_name"`
	Username   string `json:"username"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"telegram_login": s.active(),
	})
}

// handleTelegramWebhook accepts one update per call and always answers
// {"ok":true} once dispatch has been initiated. The response models
// platform acknowledgement, not business success: Telegram retries on
// anything else, and retries of processed updates are already harmless.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.active() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "feature_disabled"})
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to decode webhook update")
	} else {
		go s.dispatcher.Dispatch(update)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLoginInit creates a fresh pending session and returns the deep
// link that opens the bot conversation with the token.
func (s *Server) handleLoginInit(w http.ResponseWriter, r *http.Request) {
	if !s.active() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "feature_disabled"})
		return
	}

	sess, err := s.store.Create(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create login session")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}

	writeJSON(w, http.StatusCreated, loginInitResponse{
		Token:   sess.Token,
		BotLink: telegram.DeepLink(s.options.BotUsername, sess.Token),
	})
}

// handleLoginStatus lets the web client poll for handshake progress.
func (s *Server) handleLoginStatus(w http.ResponseWriter, r *http.Request) {
	if !s.active() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "feature_disabled"})
		return
	}

	token := chi.URLParam(r, "token")

	sess, err := s.store.GetByToken(r.Context(), token)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "invalid_link"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to look up login session")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}

	writeJSON(w, http.StatusOK, loginStatusResponse{Status: sess.Status})
}

// handleLoginComplete is the completion bridge: it redeems a confirmed
// session's token. Credential issuance beyond the identity snapshot is the
// caller's concern.
func (s *Server) handleLoginComplete(w http.ResponseWriter, r *http.Request) {
	if !s.active() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "feature_disabled"})
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token_required"})
		return
	}

	sess, err := s.store.GetByToken(r.Context(), req.Token)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "invalid_link"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to look up login session")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}

	if !sess.Confirmed() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "login_not_completed"})
		return
	}

	s.logger.Info().
		Str("token_prefix", session.TokenPrefix(sess.Token)).
		Msg("Login session redeemed")

	resp := completeResponse{
		Phone:     sess.Phone,
		FirstName: sess.FirstName,
		Username:  sess.Username,
	}
	if sess.TelegramID != nil {
		resp.TelegramID = *sess.TelegramID
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
