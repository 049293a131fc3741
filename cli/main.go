package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/pagemap-facets/internal/config"
	"github.com/DeafMist/pagemap-facets/internal/logger"
	"github.com/DeafMist/pagemap-facets/internal/search"
	"github.com/DeafMist/pagemap-facets/internal/store"
	"github.com/DeafMist/pagemap-facets/internal/wiring"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("cli")
	cfg, err := config.LoadCLI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Error("load profile", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a := &app{
		profile:   profile,
		pageLimit: cfg.PageLimit,
		openStore: func(ctx context.Context) (store.Store, func() error, error) {
			return wiring.OpenStore(ctx, cfg.Common, log)
		},
		newRunner: func(ctx context.Context, st store.Store) (roundRunner, error) {
			return wiring.NewRunner(ctx, cfg.Search, profile, st, log)
		},
		newRetriever: func(ctx context.Context) (search.Retriever, error) {
			return wiring.NewRetriever(ctx, cfg.Search, log)
		},
		newPublisher: func() (publisher, error) {
			return &kafka.Writer{
				Addr:     kafka.TCP(cfg.KafkaBrokers...),
				Topic:    cfg.KafkaTopic,
				Balancer: &kafka.Hash{},
			}, nil
		},
	}

	root := newRootCmd(a)
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
