package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"ordercore/internal/auth"
	"ordercore/internal/config"
	"ordercore/internal/handler"
	"ordercore/internal/infra/cache"
	"ordercore/internal/infra/db"
	"ordercore/internal/infra/memory"
	"ordercore/internal/infra/messaging"
	infraRepo "ordercore/internal/infra/repository"
	"ordercore/internal/logging"
	repo "ordercore/internal/repository"
	"ordercore/internal/seed"
	"ordercore/internal/server"
	"ordercore/internal/usecase"
	"ordercore/internal/validator"
	"ordercore/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("configs")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)
	log.Info("starting", "env", cfg.App.Env, "driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//ストア
	var (
		txm     repo.TransactionManager
		catalog repo.CatalogRepository
		ping    handler.Pinger
	)
	switch cfg.Database.Driver {
	case "memory":
		store := memory.New(cfg.Database.LockTimeout)
		txm = store
		catalog = store.Catalog()
	default:
		gormDB, err := db.Connect(cfg.Database, logging.New("gorm"))
		if err != nil {
			return err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(gormDB); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		txm = infraRepo.NewTxManagerGorm(gormDB, cfg.Database.LockTimeout)
		catalog = infraRepo.NewCatalogGormRepository(gormDB)
		ping = sqlDB.PingContext
	}

	if cfg.Seed.Demo {
		if err := seed.Demo(ctx, catalog, logging.New("seed")); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	//集計キャッシュ（redis.addr が空なら無し）
	var stats usecase.StatsCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, stats cache disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			defer rdb.Close()
			stats = cache.NewRedisStatsCache(rdb, cfg.Redis.StatsTTL)
		}
	}

	//イベント送信先
	var pub messaging.Publisher
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		pub = messaging.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
	} else {
		pub = messaging.NewLogPublisher(logging.New("events"))
	}
	defer pub.Close()

	relay := worker.NewOutboxRelay(txm, pub, cfg.Outbox.Interval, cfg.Outbox.BatchSize, logging.New("outbox"))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()
	defer wg.Wait()

	//Usecase生成
	orderUC := usecase.NewOrderUsecase(txm, validator.NewOrderValidator(), stats, usecase.CheckoutOptions{
		MaxAttempts: cfg.Checkout.MaxAttempts,
		Location:    cfg.Checkout.Location(),
	})
	adminUC := usecase.NewAdminOrderUsecase(txm, stats, nil)

	//Handler生成
	tokens := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.AccessTTL)
	e := server.New(logging.New("http"), tokens, server.Handlers{
		Orders:      handler.NewOrderHandler(orderUC),
		AdminOrders: handler.NewAdminOrderHandler(adminUC),
		Health:      handler.NewHealthHandler(ping),
	})

	//Server起動
	err = server.Start(ctx, e, cfg.App.HTTPAddr, logging.New("http"))
	stop()
	return err
}
