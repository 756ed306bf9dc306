// Command ticket-ingest imports promotional tickets from gzipped campaign
// exports. Each line is CODE;PERCENT;LIMIT;FROM;UNTIL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
)

type options struct {
	dataDir     string
	databaseURL string
	batchSize   int
	parsers     int
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing *.gz ticket exports")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.batchSize, "batch", 5000, "tickets per COPY or upsert batch")
	flag.IntVar(&opts.parsers, "parsers", 4, "files parsed concurrently")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Error("Ticket ingest failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
	lg.Info("Ticket ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list files")
	}
	if len(files) == 0 {
		lg.Info("No files to ingest", zap.String("dir", opts.dataDir))
		return nil
	}

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	catalog := repository.NewCatalog(pool)
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var existing int
	if err := catalog.TicketCodes(ctx, func(code string) {
		filter.AddString(code)
		existing++
	}); err != nil {
		return errors.Wrap(err, "load existing codes")
	}
	lg.Info("Loaded existing codes", zap.Int("count", existing), zap.Int("files", len(files)))

	r := newRouter(catalog, filter, opts.batchSize)
	skipped, err := ingest(ctx, lg, files, opts.parsers, r)
	if err != nil {
		return err
	}

	lg.Info("Tickets written",
		zap.Int64("copied", r.copied),
		zap.Int64("upserted", r.merged),
		zap.Int64("skipped", skipped),
	)
	return nil
}

// ingest parses files concurrently and feeds a single router, so database
// writes stay ordered. It returns the number of malformed lines skipped.
func ingest(ctx context.Context, lg *zap.Logger, files []string, parsers int, r *router) (int64, error) {
	var skipped atomic.Int64
	tickets := make(chan coupon.Ticket, 1024)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for t := range tickets {
			if err := r.add(ctx, t); err != nil {
				return err
			}
		}
		return r.flush(ctx)
	})

	parse := new(errgroup.Group)
	parse.SetLimit(max(parsers, 1))
	for _, path := range files {
		parse.Go(func() error {
			var count int
			err := streamGzFile(ctx, path, func(n int, line string) error {
				t, err := parseLine(line)
				if err != nil {
					skipped.Add(1)
					lg.Warn("Skipping line",
						zap.String("file", path),
						zap.Int("line", n),
						zap.Error(err),
					)
					return nil
				}
				select {
				case tickets <- t:
					count++
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "ingest %s", filepath.Base(path))
			}
			lg.Info("File parsed", zap.String("file", path), zap.Int("tickets", count))
			return nil
		})
	}
	g.Go(func() error {
		defer close(tickets)
		return parse.Wait()
	})

	if err := g.Wait(); err != nil {
		return skipped.Load(), err
	}
	return skipped.Load(), nil
}
