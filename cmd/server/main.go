package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/SONUshilla/VideoCallingBackend/internal/adapters/http"
	"github.com/SONUshilla/VideoCallingBackend/internal/adapters/pion"
	"github.com/SONUshilla/VideoCallingBackend/internal/adapters/ws"
	"github.com/SONUshilla/VideoCallingBackend/internal/app"
	"github.com/SONUshilla/VideoCallingBackend/internal/config"
	"github.com/SONUshilla/VideoCallingBackend/internal/metrics"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	engine := pion.NewEngine(pion.Config{
		AnnouncedIP: cfg.WebRTC.AnnouncedIP,
		MinPort:     cfg.WebRTC.MinPort,
		MaxPort:     cfg.WebRTC.MaxPort,
		ICEServers:  cfg.WebRTC.ICEServers,
	})
	reg := app.NewRegistry(engine, m, app.WithRoomGC(cfg.RoomGC))

	handshake := app.NewHandshake(reg, m)
	relay := app.NewRelay(reg, m)
	cleanup := app.NewCleanup(reg, m)

	ctrl := ws.NewController(handshake, relay, cleanup, ws.Limits{
		ReadLimit:     cfg.ReadLimit,
		PingPeriod:    cfg.PingPeriod,
		ChatPerMinute: cfg.ChatPerMinute,
	})

	r := router.SetupRouter(ctx, cfg, reg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("meeting server started")
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
