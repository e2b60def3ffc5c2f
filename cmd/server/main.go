package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/mentorgrid/live/internal/adapters/http"
	wssignal "github.com/mentorgrid/live/internal/adapters/signal"
	"github.com/mentorgrid/live/internal/app"
	"github.com/mentorgrid/live/internal/config"
	"github.com/mentorgrid/live/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	// Collaborators: in-memory stand-ins for the marketplace's session
	// and notification persistence.
	sessions := core.NewMemorySessionStore()
	notifications := core.NewMemoryNotificationStore()
	identity := core.TokenIdentity{}

	presence := app.NewPresenceRegistry(nil)
	rooms := app.NewRoomManager(presence)
	notify := app.NewNotificationDispatcher(presence, notifications, nil)
	admission := app.NewCallAdmissionController(rooms, notify, nil, nil)
	negotiator := app.NewRescheduleNegotiator(sessions, notify, nil, nil)
	coord := app.NewCoordinator(presence, rooms, admission, negotiator, notify, nil)

	ctl := wssignal.NewSignalWSController(coord, identity, cfg.ReadLimit, cfg.PingPeriod, cfg.JoinRateLimit, cfg.JoinRateWindow)
	r := router.SetupRouter(ctx, cfg, coord, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Reschedule expiry is externally driven; the sweep just feeds the
	// negotiator a timeout signal.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := negotiator.ExpireOverdue(ctx); n > 0 {
					log.Info().Int("expired", n).Msg("reschedule sweep")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("live coordination server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
