package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/dbx"
	"github.com/vkarpenko/filevault/internal/server/models"
)

// PostgresRepository implements the recipient key store over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or overwrites the wrapped key for (file, recipient).
func (r *PostgresRepository) Upsert(ctx context.Context, g *models.ShareGrant) error {
	query := `
		INSERT INTO share_grants (file_id, recipient_id, wrapped_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_id, recipient_id)
		DO UPDATE SET wrapped_key = EXCLUDED.wrapped_key, updated_at = now()
	`
	res, err := r.db.ExecContext(ctx, query, g.FileID, g.RecipientID, g.WrappedKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// Get returns the grant for (file, recipient), or common.ErrorNotFound.
// The (file_id, recipient_id) pair is uniquely indexed.
func (r *PostgresRepository) Get(ctx context.Context, fileID, recipientID string) (*models.ShareGrant, error) {
	query := `
		SELECT id, file_id, recipient_id, wrapped_key, created_at, updated_at
		FROM share_grants WHERE file_id = $1 AND recipient_id = $2
	`
	g := &models.ShareGrant{}
	err := r.db.QueryRowContext(ctx, query, fileID, recipientID).
		Scan(&g.ID, &g.FileID, &g.RecipientID, &g.WrappedKey, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

// ListForFile returns all grants of a file.
func (r *PostgresRepository) ListForFile(ctx context.Context, fileID string) ([]*models.ShareGrant, error) {
	query := `
		SELECT id, file_id, recipient_id, wrapped_key, created_at, updated_at
		FROM share_grants WHERE file_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareGrant
	for rows.Next() {
		g := &models.ShareGrant{}
		if err := rows.Scan(&g.ID, &g.FileID, &g.RecipientID, &g.WrappedKey, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
