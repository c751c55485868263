package sqlite

import (
	"context"
	"fmt"
	"time"

	"memetrader/internal/model"
)

// SaveTrade appends a trade and returns it with its row ID.
func (s *Store) SaveTrade(ctx context.Context, t model.Trade) (model.Trade, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (account, pair, side, qty, price, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.Account, t.Pair, string(t.Side), t.Qty, t.Price, t.TS.UnixMilli())
	if err != nil {
		return t, fmt.Errorf("insert trade: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return t, fmt.Errorf("trade id: %w", err)
	}
	t.TS = time.UnixMilli(t.TS.UnixMilli()).UTC()
	return t, nil
}

// Trades returns an account's trades ordered by time, then insertion.
func (s *Store) Trades(ctx context.Context, account string) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pair, side, qty, price, ts
		FROM trades
		WHERE account = ?
		ORDER BY ts ASC, id ASC
	`, account)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var (
			t        model.Trade
			side     string
			tsMillis int64
		)
		if err := rows.Scan(&t.ID, &t.Pair, &side, &t.Qty, &t.Price, &tsMillis); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.Account = account
		t.Side = model.TradeSide(side)
		t.TS = time.UnixMilli(tsMillis).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
