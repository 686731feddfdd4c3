package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/scarface-loin/Wavy/internal/config"
	"github.com/scarface-loin/Wavy/internal/handler"
	"github.com/scarface-loin/Wavy/internal/handler/relay"
	"github.com/scarface-loin/Wavy/internal/metrics"
	"github.com/scarface-loin/Wavy/internal/service/bus"
	"github.com/scarface-loin/Wavy/internal/service/room"
	"github.com/scarface-loin/Wavy/internal/service/roomcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config.load", "err", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("config.dotenv.skipped", "err", envErr)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server.exit", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var m *metrics.Metrics

	registry := room.NewRegistry(room.Options{
		HistoryLimit: cfg.Relay.HistoryLimit,
		Logger:       logger.With("component", "room"),
		OnDrop:       func() { m.FrameDropped() },
	})
	m = metrics.New(
		func() float64 { return float64(registry.Count()) },
		func() float64 {
			total := 0
			for s := range registry.All() {
				total += s.Participants
			}
			return float64(total)
		},
	)

	reaper := room.NewReaper(registry, cfg.Relay.ReapInterval, cfg.Relay.RoomRetention, logger)
	reaper.OnReap = m.RoomsReaped

	// Cross-instance fan-out is optional; a single instance needs no broker.
	var b bus.Bus
	switch {
	case cfg.Redis.Enabled():
		redisBus, err := bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:          cfg.Redis.Addr,
			DB:            cfg.Redis.DB,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
		}, logger)
		if err != nil {
			return err
		}
		defer redisBus.Close()
		b = redisBus
		logger.Info("bus.enabled", "kind", "redis", "addr", cfg.Redis.Addr, "origin", redisBus.Origin())
	case cfg.NATS.Enabled():
		natsBus, err := bus.NewNATSBus(bus.NATSConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject}, logger)
		if err != nil {
			return err
		}
		defer natsBus.Close()
		b = natsBus
		logger.Info("bus.enabled", "kind", "nats", "url", cfg.NATS.URL, "origin", natsBus.Origin())
	}

	relayServer := relay.New(registry, relay.Options{
		BacklogLimit:    cfg.Relay.BacklogLimit,
		SendBuffer:      cfg.Relay.SendBuffer,
		MaxMessageBytes: cfg.Relay.MaxMessageBytes,
		EchoSender:      cfg.Relay.EchoSender,
		MessageRate:     cfg.Relay.MessageRate,
		MessageBurst:    cfg.Relay.MessageBurst,
	}, b, m, logger)

	codes, err := roomcode.New(roomcode.DefaultLength)
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.Deps{
		Registry:      registry,
		Relay:         relayServer,
		Codes:         codes,
		Metrics:       m,
		CORSAllow:     cfg.Server.CORSAllow,
		StatsInterval: cfg.Relay.StatsInterval,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server.listen", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	if b != nil {
		g.Go(func() error {
			return b.Subscribe(gctx, relayServer.DeliverRemote)
		})
	}
	return g.Wait()
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
