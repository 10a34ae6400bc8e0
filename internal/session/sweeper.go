package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultSessionTTL bounds how long an unconfirmed session may sit
	// without progress before it is swept.
	DefaultSessionTTL = 30 * time.Minute

	sweepSchedule = "@every 15m"
)

// Sweeper periodically removes stale unconfirmed sessions. Users whose
// session was swept simply restart the login from the site.
type Sweeper struct {
	store   *Store
	ttl     time.Duration
	cron    *cron.Cron
	logger  zerolog.Logger
	running bool
}

// NewSweeper creates a new session sweeper
func NewSweeper(store *Store, ttl time.Duration, logger zerolog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Sweeper{
		store:  store,
		ttl:    ttl,
		cron:   cron.New(),
		logger: logger.With().Str("component", "session-sweeper").Logger(),
	}
}

// Start starts the sweeper
func (sw *Sweeper) Start() error {
	if sw.running {
		return fmt.Errorf("sweeper is already running")
	}

	// A stopped cron keeps its entries, so build a fresh one per run
	sw.cron = cron.New()
	if _, err := sw.cron.AddFunc(sweepSchedule, sw.sweep); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	sw.cron.Start()
	sw.running = true

	// Run immediately on start
	go sw.sweep()

	sw.logger.Info().
		Dur("ttl", sw.ttl).
		Msg("Session sweeper started")

	return nil
}

// Stop stops the sweeper
func (sw *Sweeper) Stop() error {
	if !sw.running {
		return fmt.Errorf("sweeper is not running")
	}

	ctx := sw.cron.Stop()
	<-ctx.Done()
	sw.running = false

	sw.logger.Info().Msg("Session sweeper stopped")

	return nil
}

func (sw *Sweeper) sweep() {
	cutoff := time.Now().Add(-sw.ttl)

	deleted, err := sw.store.DeleteStaleBefore(context.Background(), cutoff)
	if err != nil {
		sw.logger.Error().Err(err).Msg("Failed to sweep stale sessions")
		return
	}

	if deleted > 0 {
		sw.logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Swept stale login sessions")
	}
}
