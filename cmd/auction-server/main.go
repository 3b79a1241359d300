package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openbidder/live-auction/internal/clock"
	"github.com/openbidder/live-auction/internal/config"
	"github.com/openbidder/live-auction/internal/events"
	"github.com/openbidder/live-auction/internal/handlers"
	"github.com/openbidder/live-auction/internal/logging"
	"github.com/openbidder/live-auction/internal/service"
	"github.com/openbidder/live-auction/internal/store"
	"github.com/openbidder/live-auction/internal/sweeper"
	"github.com/openbidder/live-auction/internal/websocket"
)

func main() {
	log := logging.New("auction-server")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(log)
	// The gate keeps broadcast delivery consistent with store order even
	// when publish round-trips finish out of order.
	sink := events.NewOrderedSink(hub)

	var (
		st         store.Store
		pub        events.Publisher
		subscriber *events.RedisSubscriber
	)
	switch cfg.StoreBackend {
	case "memory":
		st = store.NewMemoryStore()
		pub = events.NewLocalBus(sink)
		log.Info("Using in-memory store")
	default:
		rs, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rs.Close()

		st = rs
		pub = events.NewRedisPublisher(rs.Client())
		subscriber = events.NewRedisSubscriber(ctx, rs.Client(), sink, log)
		defer subscriber.Close()
		log.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
	}

	clk := clock.System()
	bidding := service.NewBiddingService(st, clk, pub, log, cfg.StoreTimeout)
	wsHandler := websocket.NewHandler(ctx, hub, bidding, log)
	httpHandler := handlers.NewHandler(bidding, wsHandler, log)
	sweep := sweeper.New(st, clk, pub, cfg.SweepInterval, log)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     httpHandler.SetupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sweep.Run(gctx) })
	if subscriber != nil {
		g.Go(func() error { return subscriber.Listen(gctx) })
	}

	g.Go(func() error {
		log.WithField("addr", cfg.ServerAddr).Info("Auction server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Service error: %v", err)
	}
	log.Info("Server stopped gracefully")
}
