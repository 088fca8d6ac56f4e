package principals

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func principalColumns() []string {
	return []string{"id", "name", "email", "password_hash", "role", "department", "public_key", "private_key", "created_at"}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+principals\b.*RETURNING\s+id,\s*created_at\s*$`
	now := time.Now()

	mock.ExpectQuery(q).
		WithArgs("alice", "alice@example.com", []byte("hash"), "staff", "finance", "pub", "priv").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("p1", now))

	p, err := repo.Create(context.Background(), &models.Principal{
		Name:          "alice",
		Email:         "alice@example.com",
		PasswordHash:  []byte("hash"),
		Role:          "staff",
		Department:    "finance",
		PublicKeyPEM:  []byte("pub"),
		PrivateKeyPEM: []byte("priv"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "p1" {
		t.Errorf("id = %q, want p1", p.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DbError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+principals`).
		WillReturnError(errors.New("duplicate key"))

	_, err := repo.Create(context.Background(), &models.Principal{Name: "a", Email: "a@example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGetByEmail_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+principals\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(principalColumns()).
			AddRow("p1", "alice", "alice@example.com", []byte("hash"), "staff", "finance", "pub", "priv", now))

	p, err := repo.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != "staff" || p.Department != "finance" {
		t.Errorf("got %+v", p)
	}
	if string(p.PublicKeyPEM) != "pub" || string(p.PrivateKeyPEM) != "priv" {
		t.Error("key PEMs not mapped")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+principals\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("err = %v, want ErrorNotFound", err)
	}
}

func TestPublicKeyOf_EmptyKeyIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+public_key\s+FROM\s+principals`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"public_key"}).AddRow(""))

	_, err := repo.PublicKeyOf(context.Background(), "p1")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("err = %v, want ErrorNotFound", err)
	}
}

func TestPublicKeyOf_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+public_key\s+FROM\s+principals`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"public_key"}).AddRow("pem-bytes"))

	pem, err := repo.PublicKeyOf(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(pem) != "pem-bytes" {
		t.Errorf("pem = %q", pem)
	}
}

func TestSetKeyPair_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+principals\s+SET\s+public_key`).
		WithArgs("missing", "pub", "priv").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetKeyPair(context.Background(), "missing", []byte("pub"), []byte("priv"))
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("err = %v, want ErrorNotFound", err)
	}
}

func TestListAdmins_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+principals\s+WHERE\s+role\s*=\s*\$1`).
		WithArgs(models.RoleAdmin).
		WillReturnRows(sqlmock.NewRows(principalColumns()).
			AddRow("a1", "boris", "boris@example.com", []byte("h1"), "admin", "", "pub1", "priv1", now).
			AddRow("a2", "dina", "dina@example.com", []byte("h2"), "admin", "", "pub2", "priv2", now))

	admins, err := repo.ListAdmins(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("admins = %d, want 2", len(admins))
	}
	if admins[0].ID != "a1" || admins[1].ID != "a2" {
		t.Errorf("got %v %v", admins[0].ID, admins[1].ID)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+principals\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("err = %v, want ErrorNotFound", err)
	}
}
