package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	db        *pgxpool.Pool
	keyPrefix string
}

func NewPostgresStore(db *pgxpool.Pool, keyPrefix string) Store {
	return &postgresStore{
		db:        db,
		keyPrefix: keyPrefix,
	}
}

// EnsureSchema creates the cache_slots table if it does not exist
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_slots (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache_slots table: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM cache_slots WHERE key = $1`, s.keyPrefix+key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get cache slot %s: %w", key, err)
	}

	return value, true, nil
}

func (s *postgresStore) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO cache_slots (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key)
	DO UPDATE SET value = $2, updated_at = now()`
	_, err := s.db.Exec(ctx, query, s.keyPrefix+key, value)
	if err != nil {
		return fmt.Errorf("failed to set cache slot %s: %w", key, err)
	}

	return nil
}
