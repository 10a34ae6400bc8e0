// Package web exposes the HTTP surface of the login handshake: the
// Telegram webhook endpoint, session initiation, status polling, and the
// completion bridge consumed by the web client.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rentora/rentora/internal/session"
	"github.com/rentora/rentora/internal/telegram"
	"github.com/rs/zerolog"
)

// Dispatcher routes inbound Telegram updates, detached from the webhook
// response path.
type Dispatcher interface {
	Dispatch(update tgbotapi.Update)
}

// Options configures the web server
type Options struct {
	Host string
	Port int

	// BotUsername builds the t.me deep link returned by session initiation.
	BotUsername string
}

// Server is the public HTTP server
type Server struct {
	options    Options
	store      *session.Store
	dispatcher Dispatcher
	logger     zerolog.Logger
	server     *http.Server
	startTime  time.Time
}

// NewServer creates a new web server. A nil dispatcher or nil store marks
// the Telegram login feature inactive: its routes answer 503 instead of
// crashing.
func NewServer(options Options, store *session.Store, dispatcher Dispatcher, logger zerolog.Logger) *Server {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}

	s := &Server{
		options:    options,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "web-server").Logger(),
		startTime:  time.Now(),
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", options.Host, options.Port),
		Handler: s.Handler(),
	}

	return s
}

// Handler builds the route tree
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Post(telegram.WebhookPath, s.handleTelegramWebhook)

	r.Route("/api/login/telegram", func(r chi.Router) {
		r.Post("/", s.handleLoginInit)
		r.Get("/{token}", s.handleLoginStatus)
		r.Post("/complete", s.handleLoginComplete)
	})

	return r
}

// Start starts the web server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Bool("telegram_login", s.active()).
		Msg("Starting web server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	return nil
}

// Stop gracefully stops the web server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown web server: %w", err)
	}

	s.logger.Info().Msg("Web server stopped")
	return nil
}

// active reports whether the Telegram login feature is wired up.
func (s *Server) active() bool {
	return s.store != nil && s.dispatcher != nil
}
