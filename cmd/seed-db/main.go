package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-checkout/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Discount *struct {
		Rate    decimal.Decimal `json:"rate"`
		EndDate string          `json:"endDate"`
	} `json:"discount,omitempty"`
}

type memberJSON struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		membersFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&membersFile, "members-file", "db/seed/members.json", "path to members JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, membersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, membersFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedMembers(ctx, pool, membersFile); err != nil {
		return errors.Wrap(err, "seed members")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsertProduct = `
		INSERT INTO products (id, name, price, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock
	`
	const upsertDiscount = `
		INSERT INTO discounts (product_id, rate, end_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE
		SET rate = EXCLUDED.rate, end_date = EXCLUDED.end_date
	`

	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProduct, p.ID, p.Name, p.Price, p.Stock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		if d := p.Discount; d != nil {
			endDate, err := time.Parse("2006-01-02", d.EndDate)
			if err != nil {
				return errors.Wrapf(err, "parse end date for product %s", p.ID)
			}
			if endDate.Before(today) {
				return errors.Errorf("discount for product %s expired on %s", p.ID, d.EndDate)
			}
			if _, err := pool.Exec(ctx, upsertDiscount, p.ID, d.Rate, endDate); err != nil {
				return errors.Wrapf(err, "upsert discount for product %s", p.ID)
			}
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedMembers(ctx context.Context, pool *pgxpool.Pool, membersFile string) error {
	slog.Info("reading members file", slog.String("path", membersFile))

	data, err := os.ReadFile(membersFile)
	if err != nil {
		return errors.Wrap(err, "read members file")
	}

	var members []memberJSON
	if err := json.Unmarshal(data, &members); err != nil {
		return errors.Wrap(err, "parse members JSON")
	}

	slog.Info("upserting members", slog.Int("count", len(members)))

	const upsertMember = `
		INSERT INTO members (id, name, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, balance = EXCLUDED.balance
	`

	for _, m := range members {
		if _, err := pool.Exec(ctx, upsertMember, m.ID, m.Name, m.Balance); err != nil {
			return errors.Wrapf(err, "upsert member %d", m.ID)
		}

		slog.Info("upserted member", slog.Int64("id", m.ID), slog.String("name", m.Name))
	}

	return nil
}
