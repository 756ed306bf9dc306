// Command seed-db loads products, clients and promotional tickets from a JSON
// file into the database.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/pos-engine/internal/repository"
)

func main() {
	var (
		databaseURL string
		seedPath    string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "file", "db/seed/seed.json", "path to the seed JSON file")
	flag.Parse()

	lg, err := zap.NewDevelopment()
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

	if err := run(ctx, lg, databaseURL, seedPath); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	seed, err := decodeSeed(data)
	if err != nil {
		return errors.Wrapf(err, "parse %s", seedPath)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog := repository.NewCatalog(pool)
	for i := range seed.Products {
		p := &seed.Products[i]
		if err := catalog.UpsertProduct(ctx, p); err != nil {
			return err
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.Stringer("price", p.Price))
	}
	for i := range seed.Clients {
		if err := catalog.UpsertClient(ctx, &seed.Clients[i]); err != nil {
			return err
		}
	}
	if len(seed.Tickets) > 0 {
		if err := catalog.UpsertTickets(ctx, seed.Tickets); err != nil {
			return err
		}
	}

	lg.Info("Seeded",
		zap.Int("products", len(seed.Products)),
		zap.Int("clients", len(seed.Clients)),
		zap.Int("tickets", len(seed.Tickets)),
	)
	return nil
}
