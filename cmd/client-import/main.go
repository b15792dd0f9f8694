package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/orders-dashboard/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 5_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz client files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL); err != nil {
		lg.Fatal("Client import failed", zap.Error(err))
	}
	lg.Info("Client import completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list data files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}
	sort.Strings(files)

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	clients := postgres.NewClientRepository(pool)
	dedup := newDeduper(bloomCapacity, bloomFPR, clients)

	var existing int
	if err := clients.Phones(ctx, func(phone string) {
		dedup.seed(phone)
		existing++
	}); err != nil {
		return errors.Wrap(err, "load existing phones")
	}
	lg.Info("Existing phones loaded", zap.Int("count", existing), zap.Int("files", len(files)))

	im := &importer{lg: lg, dedup: dedup, sink: clients, batchSize: batchSize}
	stats, err := im.run(ctx, files)
	if err != nil {
		return err
	}

	lg.Info("Import summary",
		zap.Int64("rows", stats.Rows),
		zap.Int64("invalid", stats.Invalid),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("imported", stats.Imported),
		zap.Int("bloom_false_positives", dedup.falsePositives),
	)
	return nil
}
