// Command catalog-import loads products and customers from JSON-lines files
// (optionally gzip compressed) into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/till/internal/storage/postgres"
)

func main() {
	var (
		productFiles  string
		customerFiles string
		databaseURL   string
		batchSize     int
	)
	flag.StringVar(&productFiles, "products", "", "comma separated product files (.jsonl or .jsonl.gz), later files win")
	flag.StringVar(&customerFiles, "customers", "", "comma separated customer files (.jsonl or .jsonl.gz)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch", 500, "rows per upsert batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, databaseURL, splitList(productFiles), splitList(customerFiles), batchSize)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, productFiles, customerFiles []string, batchSize int) error {
	if len(productFiles) == 0 && len(customerFiles) == 0 {
		return errors.New("nothing to import: pass --products and/or --customers")
	}
	for _, f := range append(productFiles, customerFiles...) {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	imp := newImporter(lg, batchSize)
	if len(productFiles) > 0 {
		stats, err := imp.importProducts(ctx, postgres.NewProductRepository(pool), productFiles)
		if err != nil {
			return errors.Wrap(err, "import products")
		}
		lg.Info("Products imported", stats.fields()...)
	}
	if len(customerFiles) > 0 {
		stats, err := imp.importCustomers(ctx, postgres.NewCustomerRepository(pool), customerFiles)
		if err != nil {
			return errors.Wrap(err, "import customers")
		}
		lg.Info("Customers imported", stats.fields()...)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
