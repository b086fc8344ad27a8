// Package postgres provides a PostgreSQL-backed storage.Storage for managed
// kiosk fleets. Entries are namespaced so several devices can share a table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ebsalem/portal/config"
	"github.com/ebsalem/portal/storage"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB opens and verifies a connection pool
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{DB: db, logger: logger}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

const schema = `
	CREATE TABLE IF NOT EXISTS client_storage (
		namespace VARCHAR(255) NOT NULL,
		key VARCHAR(255) NOT NULL,
		value BYTEA NOT NULL,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_client_storage_expires_at ON client_storage(expires_at);
`

// InitSchema creates the client_storage table
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize storage schema: %w", err)
	}
	return nil
}

// Storage implements storage.Storage over the client_storage table
type Storage struct {
	db        *sql.DB
	namespace string
	closer    func() error
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a storage bound to namespace. The caller owns db.
func New(db *sql.DB, namespace string, logger *zap.Logger) *Storage {
	if namespace == "" {
		namespace = "default"
	}
	return &Storage{
		db:        db,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

// NewOwned is New for a pool the storage closes on Close
func NewOwned(db *DB, namespace string, logger *zap.Logger) *Storage {
	s := New(db.DB, namespace, logger)
	s.closer = db.Close
	return s
}

var _ storage.Storage = (*Storage)(nil)

// Get retrieves a value, lazily deleting it when expired
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value, expires_at
		FROM client_storage
		WHERE namespace = $1 AND key = $2
	`

	var (
		value     []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, s.namespace, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete expired key", zap.String("key", key), zap.Error(err))
		}
		return nil, storage.ErrNotFound
	}
	return value, nil
}

// Set upserts a value
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
		INSERT INTO client_storage (namespace, key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`

	now := s.now().UTC()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, query, s.namespace, key, value, expiresAt, now); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	s.logger.Debug("storage key set", zap.String("namespace", s.namespace), zap.String("key", key))
	return nil
}

// Delete removes keys in one statement
func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	query := `DELETE FROM client_storage WHERE namespace = $1 AND key = ANY($2)`
	if _, err := s.db.ExecContext(ctx, query, s.namespace, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close closes the pool when the storage owns it
func (s *Storage) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
