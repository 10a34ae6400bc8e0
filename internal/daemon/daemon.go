// Package daemon wires the login subsystem together and owns its
// lifecycle.
package daemon

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rentora/rentora/internal/config"
	"github.com/rentora/rentora/internal/logger"
	"github.com/rentora/rentora/internal/session"
	"github.com/rentora/rentora/internal/telegram"
	"github.com/rentora/rentora/internal/web"
)

// Daemon represents the Rentora daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store     *session.Store
	sweeper   *session.Sweeper
	webServer *web.Server

	// Telegram; nil when the feature is inactive
	botAPI *tgbotapi.BotAPI

	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// New creates a new daemon instance. A disabled or misconfigured Telegram
// feature degrades to an inactive login surface; it never fails
// construction.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	zl := log.GetZerolog()

	store, err := session.NewStore(cfg.Database.Path, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	d := &Daemon{
		config: cfg,
		logger: log,
		store:  store,
	}

	var dispatcher web.Dispatcher
	botUsername := cfg.Telegram.BotUsername

	if cfg.Telegram.Active() {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram bot authentication failed, login feature inactive")
		} else {
			log.Info().
				Str("username", api.Self.UserName).
				Int64("id", api.Self.ID).
				Msg("Telegram bot authenticated")

			if botUsername == "" {
				botUsername = api.Self.UserName
			}

			gateway := telegram.NewGateway(api, zl)
			handshake := telegram.NewHandshake(store, gateway, cfg.Telegram.SiteBaseURL, zl)
			dispatcher = telegram.NewRouter(handshake, gateway, zl)
			d.botAPI = api
		}
	} else {
		log.Info().Msg("Telegram login disabled")
	}

	var webStore *session.Store
	if dispatcher != nil {
		webStore = store
	}

	d.webServer = web.NewServer(web.Options{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		BotUsername: botUsername,
	}, webStore, dispatcher, zl)

	ttl := time.Duration(cfg.Telegram.SessionTTLMinutes) * time.Minute
	d.sweeper = session.NewSweeper(store, ttl, zl)

	return d, nil
}

// Start starts all daemon services
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	if err := d.sweeper.Start(); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.webServer.Start(); err != nil {
			d.logger.Error().Err(err).Msg("Web server exited with error")
		}
	}()

	d.registerWebhook()

	d.running = true
	d.logger.Info().Msg("Daemon started")
	return nil
}

// Stop stops all daemon services
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return fmt.Errorf("daemon is not running")
	}

	if err := d.sweeper.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop session sweeper")
	}

	if err := d.webServer.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop web server")
	}

	d.wg.Wait()

	if err := d.store.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close session store")
	}

	d.running = false
	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// registerWebhook points Telegram at this service's webhook endpoint.
// Best-effort: a failed registration is logged and the daemon keeps
// running, so the marketplace stays up even when Telegram is unreachable.
func (d *Daemon) registerWebhook() {
	if d.botAPI == nil || d.config.Telegram.PublicBaseURL == "" {
		return
	}

	url := strings.TrimRight(d.config.Telegram.PublicBaseURL, "/") + telegram.WebhookPath
	if err := telegram.RegisterWebhook(d.botAPI, url, d.logger.GetZerolog()); err != nil {
		d.logger.Warn().Err(err).Msg("Telegram webhook registration failed")
	}
}
