package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/dutch-auction/internal/broadcast"
	"github.com/iliyamo/dutch-auction/internal/config"
	"github.com/iliyamo/dutch-auction/internal/cron"
	"github.com/iliyamo/dutch-auction/internal/database"
	"github.com/iliyamo/dutch-auction/internal/handler"
	"github.com/iliyamo/dutch-auction/internal/lifecycle"
	"github.com/iliyamo/dutch-auction/internal/logger"
	"github.com/iliyamo/dutch-auction/internal/presence"
	"github.com/iliyamo/dutch-auction/internal/purchase"
	"github.com/iliyamo/dutch-auction/internal/queue"
	"github.com/iliyamo/dutch-auction/internal/repository"
	"github.com/iliyamo/dutch-auction/internal/router"
	"github.com/iliyamo/dutch-auction/internal/service"
	"github.com/iliyamo/dutch-auction/internal/utils"
)

func main() {
	devToken := flag.String("dev-token", "", "print a token for `user_id:ROLE[:wallet]` and exit")
	migrateOnly := flag.Bool("migrate", false, "apply the schema and exit")
	flag.Parse()

	cfg := config.Load() // Load environment config

	if *devToken != "" {
		if err := printDevToken(cfg, *devToken); err != nil {
			log.Fatal(err)
		}
		return
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	store, db, err := openStore(cfg, zl, *migrateOnly)
	if err != nil {
		zl.Fatal("store init failed", zap.Error(err))
	}
	if *migrateOnly {
		zl.Info("schema applied")
		return
	}

	rdb, err := config.NewRedisClient()
	if err != nil {
		zl.Warn("redis unavailable; cache, rate limit and shared presence disabled", zap.Error(err))
		rdb = nil
	}

	var tracker presence.Tracker = presence.NewMemoryTracker()
	if strings.EqualFold(cfg.Auction.PresenceBackend, "redis") && rdb != nil {
		tracker = presence.NewRedisTracker(rdb, "presence")
	}

	var notifier service.Notifier = service.NewStoreNotifier(store, zl)
	if cfg.RabbitURL != "" {
		notifier = service.NewQueueNotifier(cfg.RabbitURL, notifier, zl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RabbitURL != "" {
		go func() {
			if err := queue.StartNotificationConsumer(ctx, cfg.RabbitURL, store, zl); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	lifecycleSvc := lifecycle.NewService(store, nil, zl)
	coord := purchase.NewCoordinator(store, cfg.Auction, nil, notifier, zl, purchase.Options{
		MediaRetention: cfg.Auction.MediaRetention,
	})
	channel := broadcast.NewChannel(store, tracker, zl, broadcast.Intervals{
		State:     cfg.Auction.TickInterval,
		Chat:      cfg.Auction.ChatTickInterval,
		Heartbeat: cfg.Auction.HeartbeatInterval,
		ChatBatch: cfg.Auction.ChatBatchSize,
	})

	jobs := cron.New(zl, ctx)
	if _, err := jobs.Add("auction-sweep", cfg.Auction.SweepSchedule, 10*time.Second, func(ctx context.Context) error {
		_, err := lifecycleSvc.Sweep(ctx)
		return err
	}); err != nil {
		zl.Fatal("invalid SWEEP_SCHEDULE", zap.Error(err))
	}
	if _, err := jobs.Add("presence-cleanup", cfg.Auction.PresenceCleanup, 10*time.Second, func(ctx context.Context) error {
		n, err := tracker.CleanupAllStale(ctx, cfg.Auction.PresenceStaleTimeout)
		if n > 0 {
			zl.Info("stale viewers removed", zap.Int("count", n))
		}
		return err
	}); err != nil {
		zl.Fatal("invalid PRESENCE_CLEANUP_SCHEDULE", zap.Error(err))
	}
	jobs.Start()

	checks := map[string]handler.Check{}
	if db != nil {
		checks["mysql"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	auctions := handler.NewAuctionHandler(store, tracker, zl)
	e := router.New(router.Deps{
		JWTSecret: cfg.JWTSecret,
		Users:     store,
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Logger:    zl,
		Health:    &handler.HealthHandler{Checks: checks},
		Auctions:  auctions,
		Streams:   handler.NewStreamHandler(auctions, channel, zl),
		Purchases: handler.NewPurchaseHandler(coord, zl),
		Merchant:  handler.NewMerchantHandler(lifecycleSvc, store, zl),
		Admin:     handler.NewAdminHandler(tracker, store, zl),
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	jobs.Stop()
	coord.Wait()
	closeAll(zl, db, rdb)
}

// openStore picks the persistence backend.  db is nil for the memory store.
func openStore(cfg config.Config, zl *zap.Logger, forceMigrate bool) (repository.Store, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		if forceMigrate {
			return nil, nil, errors.New("-migrate needs STORE_DRIVER=mysql")
		}
		zl.Warn("using the in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.DBMigrate || forceMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return repository.NewSQLStore(db), db, nil
}

// printDevToken signs a token for local testing.  spec is
// user_id:ROLE[:wallet].
func printDevToken(cfg config.Config, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("-dev-token: want user_id:ROLE[:wallet], got %q", spec)
	}
	var id uint64
	if _, err := fmt.Sscan(parts[0], &id); err != nil {
		return fmt.Errorf("-dev-token: bad user id %q", parts[0])
	}
	wallet := ""
	if len(parts) == 3 {
		wallet = parts[2]
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, id, strings.ToUpper(parts[1]), wallet, time.Duration(cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		return err
	}
	fmt.Println(tok.Token)
	return nil
}

func closeAll(zl *zap.Logger, db *sql.DB, rdb *redis.Client) {
	if db != nil {
		if err := db.Close(); err != nil {
			zl.Warn("close mysql", zap.Error(err))
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			zl.Warn("close redis", zap.Error(err))
		}
	}
}
