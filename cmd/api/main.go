package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"storefront/internal/config"
	"storefront/internal/infra/db"
	"storefront/internal/infra/kafka"
	"storefront/internal/infra/redisx"
	"storefront/internal/logging"
	"storefront/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（本番は環境変数を直接渡す）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	infra := server.Infra{DB: gormDB, Logger: logger}
	g, gctx := errgroup.WithContext(ctx)

	//Redis（任意）
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		if err := redisx.Ping(ctx, rdb); err != nil {
			return err
		}
		infra.Idem = redisx.NewIdempotencyStore(rdb)
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	}

	//Kafka（任意）
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, 0, logger)
		infra.Events = kafka.NewOrderEventPublisher(producer)
		g.Go(func() error { return producer.Run(gctx) })
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaOrderTopic)
	}

	e := server.New(cfg, infra)

	g.Go(func() error {
		logger.Info("listening", "port", cfg.Port, "env", cfg.GoEnv)
		return server.Start(gctx, e, ":"+cfg.Port)
	})

	return g.Wait()
}
