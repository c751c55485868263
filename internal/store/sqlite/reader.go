package sqlite

import (
	"context"
	"fmt"
	"time"

	"memetrader/internal/model"
)

// ReadPrices reads a pair's samples with ts >= from, ordered ascending so
// they can be fed to the indicator engine as-is.
func (s *Store) ReadPrices(ctx context.Context, pair string, from time.Time) ([]model.PriceSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price
		FROM price_samples
		WHERE pair = ? AND ts >= ?
		ORDER BY ts ASC
	`, pair, from.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query price_samples: %w", err)
	}
	defer rows.Close()

	var samples []model.PriceSample
	for rows.Next() {
		var tsMillis int64
		var smp model.PriceSample
		if err := rows.Scan(&tsMillis, &smp.Price); err != nil {
			return nil, fmt.Errorf("sqlite scan price_samples: %w", err)
		}
		smp.TS = time.UnixMilli(tsMillis).UTC()
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Pairs lists every pair with stored history.
func (s *Store) Pairs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT pair FROM price_samples ORDER BY pair`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlite scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
