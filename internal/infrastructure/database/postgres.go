package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"honeypot-lab/internal/config"
	"honeypot-lab/pkg/logger"
)

// schema creates the archive tables when they are missing
const schema = `
CREATE TABLE IF NOT EXISTS honeypot_sessions (
	session_id        TEXT PRIMARY KEY,
	scam_detected     BOOLEAN NOT NULL DEFAULT FALSE,
	scam_type         TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	turn_count        INTEGER NOT NULL DEFAULT 0,
	total_messages    INTEGER NOT NULL DEFAULT 0,
	duration_seconds  INTEGER NOT NULL DEFAULT 0,
	intelligence      JSONB NOT NULL DEFAULT '{}'::jsonb,
	signals           TEXT[] NOT NULL DEFAULT '{}',
	tactics           TEXT[] NOT NULL DEFAULT '{}',
	red_flags         TEXT[] NOT NULL DEFAULT '{}',
	notes             TEXT[] NOT NULL DEFAULT '{}',
	notified          BOOLEAN NOT NULL DEFAULT FALSE,
	first_message_at  TIMESTAMPTZ,
	last_message_at   TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	archived_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS honeypot_indicators (
	session_id  TEXT NOT NULL REFERENCES honeypot_sessions(session_id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	value       TEXT NOT NULL,
	PRIMARY KEY (session_id, kind, value)
);

CREATE INDEX IF NOT EXISTS idx_honeypot_indicators_value ON honeypot_indicators(value);
`

// PostgresDB wraps the pgx connection pool
type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgres creates a new PostgreSQL connection pool
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*PostgresDB, error) {
	log = log.WithComponent("postgres")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("dbname", cfg.DBName).Msg("connecting to PostgreSQL")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL successfully")

	return &PostgresDB{
		pool:   pool,
		logger: log,
	}, nil
}

// EnsureSchema creates the archive tables
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	db.logger.Debug().Msg("archive schema ready")
	return nil
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool
func (db *PostgresDB) Close() {
	db.logger.Info().Msg("closing PostgreSQL connection pool")
	db.pool.Close()
}

// Ping checks the database connection
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// WithTx executes a function within a transaction
func (db *PostgresDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DBTX abstracts the query methods shared by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)
