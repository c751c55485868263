// Package sqlite persists fetched price samples so charts can be rebuilt
// when the upstream price API is unavailable, and records simulated trades.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"memetrader/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/prices.db"
}

// Store is a single-writer SQLite price history.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened database", "path", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_samples (
			pair  TEXT    NOT NULL,
			ts    INTEGER NOT NULL, -- epoch millis
			price REAL    NOT NULL,
			PRIMARY KEY (pair, ts)
		);
		CREATE TABLE IF NOT EXISTS trades (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			account TEXT    NOT NULL,
			pair    TEXT    NOT NULL,
			side    TEXT    NOT NULL,
			qty     REAL    NOT NULL,
			price   REAL    NOT NULL,
			ts      INTEGER NOT NULL -- epoch millis
		);
		CREATE INDEX IF NOT EXISTS idx_trades_account ON trades (account, ts, id);
	`)
	return err
}

// SavePrices upserts samples for a pair in a single transaction.
func (s *Store) SavePrices(ctx context.Context, pair string, samples []model.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_samples (pair, ts, price)
		VALUES (?, ?, ?)
		ON CONFLICT(pair, ts) DO UPDATE SET price = excluded.price
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.ExecContext(ctx, pair, smp.TS.UnixMilli(), smp.Price); err != nil {
			return fmt.Errorf("upsert %s@%d: %w", pair, smp.TS.UnixMilli(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.Debug("[sqlite] saved prices", "pair", pair, "count", len(samples), "took", time.Since(start))
	return nil
}

// Prune deletes samples older than cutoff. Returns the number removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_samples WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
