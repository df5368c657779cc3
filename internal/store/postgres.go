package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// Schema is the round archive table. Applied at startup; the insert-only
// shape matches the append-only contract.
const Schema = `
CREATE TABLE IF NOT EXISTS rounds (
    round_id        TEXT PRIMARY KEY,
    sequence        BIGINT NOT NULL,
    game_kind       TEXT NOT NULL,
    commitment_hash TEXT NOT NULL,
    secret          TEXT NOT NULL,
    outcome_index   INT NOT NULL DEFAULT 0,
    crash_point     DOUBLE PRECISION NOT NULL DEFAULT 0,
    bet_count       INT NOT NULL,
    participant_count INT NOT NULL,
    triggered_by    TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    settled_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rounds_sequence_idx ON rounds (game_kind, sequence);
`

// Postgres archives rounds in a Postgres table via a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool against databaseURL, verifies connectivity, and
// ensures the archive table exists.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Append inserts one completed round.
func (p *Postgres) Append(ctx context.Context, rec round.Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO rounds (
			round_id, sequence, game_kind, commitment_hash, secret,
			outcome_index, crash_point, bet_count, participant_count,
			triggered_by, started_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (round_id) DO NOTHING`,
		rec.RoundID, rec.Sequence, rec.Kind.String(), rec.CommitmentHash, rec.Secret,
		rec.Outcome.Index, rec.Outcome.CrashPoint, rec.Bets, rec.Participants,
		rec.TriggeredBy, rec.StartedAt, rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert round %s: %w", rec.RoundID, err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
