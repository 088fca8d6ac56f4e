package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/dbx"
	"github.com/vkarpenko/filevault/internal/server/models"
)

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.EncryptedFile) (*models.EncryptedFile, error) {
	labels := f.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}

	query := `
		INSERT INTO files (original_name, locator, size, content_type, digest, wrapped_owner_key, owner_id, department, labels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		f.OriginalName, f.Locator, f.Size, f.ContentType, f.Digest, f.WrappedOwnerKey, f.OwnerID, f.Department, labelsJSON).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.EncryptedFile, error) {
	query := `
		SELECT id, original_name, locator, size, content_type, digest, wrapped_owner_key, owner_id, COALESCE(department, ''), labels, created_at
		FROM files WHERE id = $1
	`
	f := &models.EncryptedFile{}
	var labelsJSON []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.OriginalName, &f.Locator, &f.Size, &f.ContentType, &f.Digest,
		&f.WrappedOwnerKey, &f.OwnerID, &f.Department, &labelsJSON, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(labelsJSON, &f.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	return f, nil
}

// ListVisible returns file metadata matching the visibility predicate,
// newest first. Admin sees everything; otherwise a file is visible when the
// caller owns it, it belongs to the caller's department, or a share grant
// exists for the caller.
func (r *PostgresRepository) ListVisible(ctx context.Context, v Visibility) ([]*models.EncryptedFile, error) {
	query := `
		SELECT f.id, f.original_name, f.locator, f.size, f.content_type, f.digest, f.wrapped_owner_key, f.owner_id, COALESCE(f.department, ''), f.labels, f.created_at
		FROM files f
		WHERE ($1
			OR f.owner_id = $2
			OR ($3 <> '' AND f.department = $3)
			OR EXISTS (SELECT 1 FROM share_grants g WHERE g.file_id = f.id AND g.recipient_id = $2))
		AND ($4 = '' OR f.original_name ILIKE '%' || $4 || '%' OR f.labels::text ILIKE '%' || $4 || '%')
		ORDER BY f.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, v.All, v.PrincipalID, v.Department, v.Search)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.EncryptedFile
	for rows.Next() {
		f := &models.EncryptedFile{}
		var labelsJSON []byte
		if err := rows.Scan(&f.ID, &f.OriginalName, &f.Locator, &f.Size, &f.ContentType, &f.Digest,
			&f.WrappedOwnerKey, &f.OwnerID, &f.Department, &labelsJSON, &f.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(labelsJSON, &f.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the metadata record. Share grants cascade at the schema
// level; the ciphertext blob is the caller's responsibility.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
