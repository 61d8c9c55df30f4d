package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidding-engine/internal/actor"
	bidding "bidding-engine/internal/biddingService"
	"bidding-engine/internal/broadcast"
	"bidding-engine/internal/clock"
	"bidding-engine/internal/config"
	"bidding-engine/internal/notify"
	"bidding-engine/internal/registry"
	"bidding-engine/internal/repository"
	"bidding-engine/internal/server"
	"bidding-engine/utils"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		utils.Error("server exited with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	clk := clock.Real{}
	broadcaster := broadcast.New(cfg.ReplayBufferSize, cfg.SubscriberQueueSize)
	defer broadcaster.Close()

	g, gctx := errgroup.WithContext(ctx)

	sinks := []actor.EventSink{broadcaster}
	if cfg.RedisAddr != "" {
		pub, err := notify.NewRedisPublisher(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer pub.Close()
		notifier := notify.NewRedisNotifier(pub, cfg.RedisChannelPrefix, 0)
		sinks = append(sinks, notifier)
		g.Go(func() error { return notifier.Run(gctx) })
		utils.Info("redis event notification enabled", map[string]any{"addr": cfg.RedisAddr})
	}

	reg := registry.New(store, clk, cfg.Rules(), cfg.Registry(), broadcaster, sinks...)
	defer reg.Stop()
	g.Go(func() error { return reg.Run(gctx) })

	biddingSvc := bidding.NewBiddingService(reg, store, broadcaster, clk)
	if cfg.SeedDemo {
		seedAuctions(ctx, biddingSvc, clk.Now())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.SetupRouter(biddingSvc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "store": cfg.StoreBackend})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Info("shutting down auction server", nil)
		// live streams end first so Shutdown is not held open by them
		broadcaster.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg config.Config) (repository.AuctionStore, func(), error) {
	if cfg.StoreBackend != config.BackendBadger {
		return repository.NewMemoryRepo(), func() {}, nil
	}
	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, nil, fmt.Errorf("open badger store %s: %w", cfg.BadgerPath, err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			utils.Error("closing badger store", map[string]any{"error": err.Error()})
		}
	}
	return repository.NewBadgerRepo(db), closeDB, nil
}

// seedAuctions creates sample auctions for local testing
func seedAuctions(ctx context.Context, svc *bidding.BiddingService, now time.Time) {
	demo := []bidding.AuctionInput{
		{ID: "item1", Title: "title1", ReservePrice: decimal.NewFromInt(100), EndsAt: now.Add(time.Hour)},
		{ID: "item2", Title: "title2", ReservePrice: decimal.NewFromInt(200), EndsAt: now.Add(2 * time.Hour)},
		{ID: "item3", Title: "title3", ReservePrice: decimal.NewFromInt(150), MinIncrement: decimal.NewFromInt(10), EndsAt: now.Add(30 * time.Minute)},
	}
	for _, in := range demo {
		if _, err := svc.CreateAuction(ctx, in); err != nil {
			utils.Warn("demo auction not created", map[string]any{"auction_id": in.ID, "error": err.Error()})
		}
	}
}
