package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
)

// Postgres wraps access to a pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN not provided")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres")
	return &Postgres{Pool: pool}, nil
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

const (
	snapshotRowID = 1

	selectSnapshotSQL = `SELECT document FROM bot_snapshots WHERE id = $1`
	upsertSnapshotSQL = `INSERT INTO bot_snapshots (id, document, saved_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, saved_at = EXCLUDED.saved_at`
)

// PostgresStore keeps the document in a single jsonb row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a store on an existing pool.
func NewPostgresStore(pg *Postgres) *PostgresStore {
	return &PostgresStore{pool: pg.Pool}
}

func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, selectSnapshotSQL, snapshotRowID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.pool.Exec(ctx, upsertSnapshotSQL, snapshotRowID, string(data)); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
