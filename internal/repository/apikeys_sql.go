package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barrel-market-api/internal/model"
)

// ErrAPIKeyNotFound is returned when no active key matches.
var ErrAPIKeyNotFound = errors.New("api key not found")

// SQLAPIKeyRepository implements APIKeyRepository over the api_keys table.
// It is written for MySQL and uses only portable SQL.
//
//	CREATE TABLE api_keys (
//		id BIGINT AUTO_INCREMENT PRIMARY KEY,
//		api_key VARCHAR(128) NOT NULL UNIQUE,
//		label VARCHAR(255) NOT NULL DEFAULT '',
//		is_active TINYINT(1) NOT NULL DEFAULT 1,
//		created_at DATETIME NOT NULL
//	);
type SQLAPIKeyRepository struct {
	db *sql.DB
}

// NewSQLAPIKeyRepository creates a key repository on an open database.
func NewSQLAPIKeyRepository(db *sql.DB) *SQLAPIKeyRepository {
	return &SQLAPIKeyRepository{db: db}
}

// IsActive checks if key exists and is active.
func (r *SQLAPIKeyRepository) IsActive(ctx context.Context, key string) (bool, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE api_key = ? AND is_active = 1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to validate api key: %w", err)
	}
	return count > 0, nil
}

// Create stores a new active key.
func (r *SQLAPIKeyRepository) Create(ctx context.Context, key, label string) (*model.APIKey, error) {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (api_key, label, is_active, created_at) VALUES (?, ?, 1, ?)`,
		key, label, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read api key id: %w", err)
	}
	return &model.APIKey{ID: id, Key: key, Label: label, Active: true, CreatedAt: now}, nil
}

// Deactivate disables an active key.
func (r *SQLAPIKeyRepository) Deactivate(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = 0 WHERE api_key = ? AND is_active = 1`, key)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

var _ APIKeyRepository = (*SQLAPIKeyRepository)(nil)
