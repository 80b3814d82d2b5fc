package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists entries in a PostgreSQL table.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS settlements (
    id BIGSERIAL PRIMARY KEY,
    coin TEXT NOT NULL,
    kind TEXT NOT NULL,
    recipient TEXT NOT NULL DEFAULT '',
    fiat_amount TEXT NOT NULL DEFAULT '',
    coin_amount TEXT NOT NULL DEFAULT '',
    tx_hash TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_coin_idx ON settlements (coin, created_at DESC);
`

// NewPostgresLedger connects using the DSN and ensures the table exists.
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresLedger{pool: pool}, nil
}

func (p *PostgresLedger) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresLedger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresLedger) Append(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO settlements (coin, kind, recipient, fiat_amount, coin_amount, tx_hash, outcome, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, e.Coin, e.Kind, e.Recipient, e.FiatAmount, e.CoinAmount, e.TxHash, e.Outcome, e.Detail, e.CreatedAt)
	return err
}

func (p *PostgresLedger) ListByCoin(ctx context.Context, coin string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
SELECT coin, kind, recipient, fiat_amount, coin_amount, tx_hash, outcome, detail, created_at
FROM settlements
WHERE coin = $1
ORDER BY created_at DESC
LIMIT $2
`, coin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Coin, &e.Kind, &e.Recipient, &e.FiatAmount, &e.CoinAmount, &e.TxHash, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
