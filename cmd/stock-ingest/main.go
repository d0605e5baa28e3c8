// Command stock-ingest applies bulk stock deliveries to the product catalog.
// Delivery files are gzip-compressed CSV lines of "productID,quantity". A
// bloom filter built from the catalog screens out unknown product IDs before
// any database round trip.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/retail-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

// fileResult holds per-product quantity deltas parsed from one delivery file.
type fileResult struct {
	deltas  map[string]int64
	skipped uint64
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one delivery file is required: stock-ingest [flags] file1.gz [file2.gz ...]")
		os.Exit(1)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("stock ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	filter, known, err := buildCatalogFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "build catalog filter")
	}

	slog.Info("catalog filter built", slog.Int("products", known))

	deltas, skipped, err := parseDeliveries(ctx, files, filter)
	if err != nil {
		return errors.Wrap(err, "parse deliveries")
	}

	slog.Info("deliveries parsed",
		slog.Int("products", len(deltas)),
		slog.Uint64("skipped_unknown", skipped),
	)

	if len(deltas) == 0 {
		slog.Info("no stock updates to apply")
		return nil
	}

	if err := applyDeltas(ctx, pool, deltas); err != nil {
		return errors.Wrap(err, "apply stock updates")
	}

	return nil
}

// buildCatalogFilter loads every product ID into a bloom filter used as a
// negative screen. A miss means the ID is definitely not in the catalog;
// false positives are caught later by the UPDATE row count.
func buildCatalogFilter(ctx context.Context, pool *pgxpool.Pool) (*bloom.BloomFilter, int, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM products`)
	if err != nil {
		return nil, 0, errors.Wrap(err, "query product ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, errors.Wrap(err, "scan product id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate product ids")
	}

	capacity := uint(len(ids))
	if capacity < 1024 {
		capacity = 1024
	}

	filter := bloom.NewWithEstimates(capacity, bloomFPR)
	for _, id := range ids {
		filter.AddString(id)
	}

	return filter, len(ids), nil
}

// parseDeliveries reads all delivery files concurrently and merges their
// per-product quantity deltas.
func parseDeliveries(ctx context.Context, files []string, filter *bloom.BloomFilter) (map[string]int64, uint64, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseDeliveryFile(ctx, i, f, filter, results))
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	merged := make(map[string]int64)
	var skipped uint64
	for _, r := range results {
		for id, qty := range r.deltas {
			merged[id] += qty
		}
		skipped += r.skipped
	}

	return merged, skipped, nil
}

func parseDeliveryFile(
	ctx context.Context,
	idx int,
	path string,
	filter *bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		deltas := make(map[string]int64)
		var skipped, count uint64

		if err := streamGzFile(ctx, path, func(line string) error {
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.Int("file", idx+1),
					slog.Uint64("lines", count),
				)
			}

			id, qtyStr, ok := strings.Cut(line, ",")
			if !ok {
				return errors.Errorf("malformed line %d: %q", count, line)
			}

			qty, err := strconv.ParseInt(strings.TrimSpace(qtyStr), 10, 64)
			if err != nil {
				return errors.Wrapf(err, "parse quantity on line %d", count)
			}
			if qty <= 0 {
				return errors.Errorf("non-positive quantity %d on line %d", qty, count)
			}

			if !filter.TestString(id) {
				skipped++
				return nil
			}

			deltas[id] += qty
			return nil
		}); err != nil {
			return errors.Wrapf(err, "parse file %s", path)
		}

		slog.Info("parse complete",
			slog.Int("file", idx+1),
			slog.Uint64("lines", count),
			slog.Int("products", len(deltas)),
			slog.Uint64("skipped", skipped),
		)

		results[idx] = fileResult{deltas: deltas, skipped: skipped}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// applyDeltas increments stock for each known product in a single
// transaction. Bloom filter false positives update zero rows and are logged.
func applyDeltas(ctx context.Context, pool *pgxpool.Pool, deltas map[string]int64) error {
	slog.Info("applying stock updates", slog.Int("products", len(deltas)))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var applied, unknown int
	for id, qty := range deltas {
		tag, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $2 WHERE id = $1`,
			id, qty,
		)
		if err != nil {
			return errors.Wrapf(err, "update stock for %s", id)
		}
		if tag.RowsAffected() == 0 {
			unknown++
			slog.Warn("product not in catalog, skipping", slog.String("id", id))
			continue
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	slog.Info("stock updates applied", slog.Int("applied", applied), slog.Int("unknown", unknown))
	return nil
}
