package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "", "path to a seed JSON file (defaults to the embedded demo catalog)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedFile string) error {
	data := db.DemoSeed
	if seedFile != "" {
		lg.Info("Reading seed file", zap.String("path", seedFile))

		var err error
		if data, err = os.ReadFile(seedFile); err != nil {
			return errors.Wrap(err, "read seed file")
		}
	}

	seed, err := postgres.ParseSeed(data)
	if err != nil {
		return errors.Wrap(err, "parse seed")
	}

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := postgres.ApplySeed(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "apply seed")
	}

	lg.Info("Upserted seed records",
		zap.Int("records", seed.Count()),
		zap.Int("variants", len(seed.Variants)),
		zap.Int("vouchers", len(seed.Vouchers)),
	)
	return nil
}
