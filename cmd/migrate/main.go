package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type migration struct {
	version string
	up      string
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	log.Println("migrations applied")
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			version VARCHAR(100) PRIMARY KEY,
			executed_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	lastVersion, err := lastMigration(ctx, conn)
	if err != nil {
		return fmt.Errorf("read last migration: %w", err)
	}

	for _, m := range migrations {
		if m.version <= lastVersion {
			continue
		}

		log.Printf("applying %s", m.version)

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin %s: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, m.up); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply %s: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO migrations (version, executed_at) VALUES ($1, $2)",
			m.version, time.Now().UTC()); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record %s: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit %s: %w", m.version, err)
		}
	}

	return nil
}

func lastMigration(ctx context.Context, conn *pgxpool.Conn) (string, error) {
	var version string
	err := conn.QueryRow(ctx,
		"SELECT version FROM migrations ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return version, nil
}

var migrations = []migration{
	{
		version: "001_catalog",
		up: `
			CREATE TABLE IF NOT EXISTS categories (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				deleted_at TIMESTAMPTZ
			);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_categories_name ON categories (lower(name));

			CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				price NUMERIC(12,2) NOT NULL DEFAULT 0,
				stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
				min_stock INTEGER NOT NULL DEFAULT 0,
				category_id TEXT,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				deleted_at TIMESTAMPTZ
			);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_products_name ON products (lower(name));
			CREATE INDEX IF NOT EXISTS idx_products_category_id ON products (category_id);
			CREATE INDEX IF NOT EXISTS idx_products_active ON products (active);
		`,
	},
	{
		version: "002_clients",
		up: `
			CREATE TABLE IF NOT EXISTS clients (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				legal_name TEXT NOT NULL DEFAULT '',
				kind TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				address TEXT NOT NULL DEFAULT '',
				tax_id TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				deleted_at TIMESTAMPTZ
			);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_clients_name ON clients (lower(name));
			CREATE INDEX IF NOT EXISTS idx_clients_kind ON clients (kind);
		`,
	},
	{
		version: "003_offers",
		up: `
			CREATE TABLE IF NOT EXISTS offers (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				scope TEXT NOT NULL,
				kind TEXT NOT NULL,
				value NUMERIC(12,2) NOT NULL DEFAULT 0,
				category_id TEXT,
				product_id TEXT,
				start_date TIMESTAMPTZ,
				end_date TIMESTAMPTZ,
				priority INTEGER NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				deleted_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_offers_active ON offers (active);
			CREATE INDEX IF NOT EXISTS idx_offers_dates ON offers (start_date, end_date);
		`,
	},
	{
		version: "004_documents",
		up: `
			CREATE TABLE IF NOT EXISTS purchases (
				id TEXT PRIMARY KEY,
				code TEXT NOT NULL,
				client_id TEXT NOT NULL,
				client_name TEXT NOT NULL,
				status TEXT NOT NULL,
				payment_method TEXT NOT NULL DEFAULT '',
				tax_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
				subtotal NUMERIC(12,2) NOT NULL DEFAULT 0,
				tax NUMERIC(12,2) NOT NULL DEFAULT 0,
				total NUMERIC(12,2) NOT NULL DEFAULT 0,
				attachment_url TEXT,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_purchases_code ON purchases (code);

			CREATE TABLE IF NOT EXISTS sales (
				id TEXT PRIMARY KEY,
				code TEXT NOT NULL,
				client_id TEXT NOT NULL,
				client_name TEXT NOT NULL,
				status TEXT NOT NULL,
				payment_method TEXT NOT NULL DEFAULT '',
				tax_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
				subtotal NUMERIC(12,2) NOT NULL DEFAULT 0,
				tax NUMERIC(12,2) NOT NULL DEFAULT 0,
				total NUMERIC(12,2) NOT NULL DEFAULT 0,
				attachment_url TEXT,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_sales_code ON sales (code);

			CREATE TABLE IF NOT EXISTS purchase_items (
				id BIGSERIAL PRIMARY KEY,
				document_id TEXT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
				product_id TEXT NOT NULL,
				product_name TEXT NOT NULL,
				quantity INTEGER NOT NULL,
				unit_price NUMERIC(12,2) NOT NULL,
				subtotal NUMERIC(12,2) NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_purchase_items_document_id ON purchase_items (document_id);

			CREATE TABLE IF NOT EXISTS sale_items (
				id BIGSERIAL PRIMARY KEY,
				document_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
				product_id TEXT NOT NULL,
				product_name TEXT NOT NULL,
				quantity INTEGER NOT NULL,
				unit_price NUMERIC(12,2) NOT NULL,
				subtotal NUMERIC(12,2) NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sale_items_document_id ON sale_items (document_id);
		`,
	},
	{
		version: "005_system_config_users",
		up: `
			CREATE TABLE IF NOT EXISTS system_config (
				id TEXT PRIMARY KEY,
				offers BOOLEAN NOT NULL DEFAULT false,
				orders BOOLEAN NOT NULL DEFAULT false,
				reporting BOOLEAN NOT NULL DEFAULT false,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE TABLE IF NOT EXISTS users (
				username TEXT PRIMARY KEY,
				password TEXT NOT NULL,
				role TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL
			);
		`,
	},
}
