package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/domadao/event-indexer/config"
	"github.com/domadao/event-indexer/database"
	"github.com/domadao/event-indexer/feed"
	"github.com/domadao/event-indexer/indexer"
	"github.com/domadao/event-indexer/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Println("Fatal error: ", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.BuildConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	config.GlobalConfigCallback.Call(cfg)
	defer logger.SyncFileLogger()

	logger.Info("Running with configuration: feed: %s, database: %s", cfg.Feed.BaseURL, cfg.DB.Database)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.ConnectAndInitialize(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("database connect and initialize error: %w", err)
	}

	client, err := feed.NewClient(&cfg.Feed)
	if err != nil {
		return fmt.Errorf("feed client error: %w", err)
	}

	store := database.NewDBStore(db)
	consumer := indexer.NewConsumer(client, store, cfg.Consumer)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return consumer.Run(egCtx)
	})
	if cfg.Monitor.Enabled {
		monitor := indexer.NewMonitor(cfg.Monitor, consumer.Metrics(), store)
		eg.Go(func() error {
			return monitor.Run(egCtx)
		})
	}

	return eg.Wait()
}
