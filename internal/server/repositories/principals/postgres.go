package principals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/dbx"
	"github.com/vkarpenko/filevault/internal/server/models"
)

// PostgresRepository implements the principal directory over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	query := `
		INSERT INTO principals (name, email, password_hash, role, department, public_key, private_key)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.Name, p.Email, p.PasswordHash, p.Role, p.Department, string(p.PublicKeyPEM), string(p.PrivateKeyPEM)).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	query := `
		SELECT id, name, email, password_hash, role, COALESCE(department, ''), public_key, private_key, created_at
		FROM principals WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `
		SELECT id, name, email, password_hash, role, COALESCE(department, ''), public_key, private_key, created_at
		FROM principals WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Principal, error) {
	p := &models.Principal{}
	var pub, priv string
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Role, &p.Department, &pub, &priv, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.PublicKeyPEM = []byte(pub)
	p.PrivateKeyPEM = []byte(priv)
	return p, nil
}

// PublicKeyOf returns the PEM public key of the principal, or
// common.ErrorNotFound when the principal is absent or holds no key.
func (r *PostgresRepository) PublicKeyOf(ctx context.Context, id string) ([]byte, error) {
	var pub string
	err := r.db.QueryRowContext(ctx, `SELECT public_key FROM principals WHERE id = $1`, id).Scan(&pub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if pub == "" {
		return nil, common.ErrorNotFound
	}
	return []byte(pub), nil
}

// PrivateKeyOf returns the PEM private key of the principal. Callers must
// hold a verified session for that principal; the key is used for a single
// wrap/unwrap and discarded.
func (r *PostgresRepository) PrivateKeyOf(ctx context.Context, id string) ([]byte, error) {
	var priv string
	err := r.db.QueryRowContext(ctx, `SELECT private_key FROM principals WHERE id = $1`, id).Scan(&priv)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if priv == "" {
		return nil, common.ErrorNotFound
	}
	return []byte(priv), nil
}

// SetKeyPair stores a keypair for a principal provisioned without one.
func (r *PostgresRepository) SetKeyPair(ctx context.Context, id string, publicPEM, privatePEM []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET public_key = $2, private_key = $3 WHERE id = $1`,
		id, string(publicPEM), string(privatePEM))
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

// ListAdmins returns all administrator principals.
func (r *PostgresRepository) ListAdmins(ctx context.Context) ([]*models.Principal, error) {
	query := `
		SELECT id, name, email, password_hash, role, COALESCE(department, ''), public_key, private_key, created_at
		FROM principals WHERE role = $1
	`
	rows, err := r.db.QueryContext(ctx, query, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Principal
	for rows.Next() {
		p := &models.Principal{}
		var pub, priv string
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Role, &p.Department, &pub, &priv, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.PublicKeyPEM = []byte(pub)
		p.PrivateKeyPEM = []byte(priv)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a principal. Their files and grants cascade at the schema
// level.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
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
