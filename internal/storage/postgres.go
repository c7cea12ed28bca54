package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/config"
)

// NewConnection opens and pings a postgres database
func NewConnection(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

type PostgresBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresBackend creates a snapshot store on the client_snapshots table
func NewPostgresBackend(db *sql.DB, logger *zap.Logger) *PostgresBackend {
	return &PostgresBackend{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the snapshot table if it does not exist
func (r *PostgresBackend) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS client_snapshots (
			key        TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		r.logger.Error("Failed to create client_snapshots table", zap.Error(err))
		return err
	}
	return nil
}

func (r *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT data
		FROM client_snapshots
		WHERE key = $1
	`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		r.logger.Error("Failed to get snapshot", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return data, nil
}

func (r *PostgresBackend) Put(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO client_snapshots (key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, key, data, time.Now())
	if err != nil {
		r.logger.Error("Failed to save snapshot", zap.String("key", key), zap.Error(err))
		return err
	}

	return nil
}

func (r *PostgresBackend) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM client_snapshots WHERE key = $1`

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		r.logger.Error("Failed to delete snapshot", zap.String("key", key), zap.Error(err))
		return err
	}

	return nil
}
