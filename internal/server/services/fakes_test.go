package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/cryptox"
	"github.com/vkarpenko/filevault/internal/dbx"
	"github.com/vkarpenko/filevault/internal/logging"
	"github.com/vkarpenko/filevault/internal/server/audit"
	"github.com/vkarpenko/filevault/internal/server/models"
	"github.com/vkarpenko/filevault/internal/server/repositories/files"
	"github.com/vkarpenko/filevault/internal/server/repositories/grants"
	"github.com/vkarpenko/filevault/internal/server/repositories/principals"
	"github.com/vkarpenko/filevault/internal/server/repositories/repomanager"
)

// --- in-memory fakes shared by the service tests ---

type fakePrincipalsRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Principal
	seq  int

	createErr     error
	listAdminsErr error
}

func newFakePrincipalsRepo() *fakePrincipalsRepo {
	return &fakePrincipalsRepo{byID: make(map[string]*models.Principal)}
}

func (f *fakePrincipalsRepo) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p.ID = fmt.Sprintf("p-%d", f.seq)
	p.CreatedAt = time.Now()
	f.byID[p.ID] = p
	return p, nil
}

func (f *fakePrincipalsRepo) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (f *fakePrincipalsRepo) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakePrincipalsRepo) PublicKeyOf(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || len(p.PublicKeyPEM) == 0 {
		return nil, common.ErrorNotFound
	}
	return p.PublicKeyPEM, nil
}

func (f *fakePrincipalsRepo) PrivateKeyOf(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || len(p.PrivateKeyPEM) == 0 {
		return nil, common.ErrorNotFound
	}
	return p.PrivateKeyPEM, nil
}

func (f *fakePrincipalsRepo) SetKeyPair(ctx context.Context, id string, publicPEM, privatePEM []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.PublicKeyPEM = publicPEM
	p.PrivateKeyPEM = privatePEM
	return nil
}

func (f *fakePrincipalsRepo) ListAdmins(ctx context.Context) ([]*models.Principal, error) {
	if f.listAdminsErr != nil {
		return nil, f.listAdminsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Principal
	for _, p := range f.byID {
		if p.IsAdmin() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePrincipalsRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeGrantsRepo struct {
	mu   sync.Mutex
	byID map[string]*models.ShareGrant // keyed fileID+"/"+recipientID

	upsertErrFor map[string]error // recipientID -> injected error
}

func newFakeGrantsRepo() *fakeGrantsRepo {
	return &fakeGrantsRepo{byID: make(map[string]*models.ShareGrant)}
}

func (f *fakeGrantsRepo) Upsert(ctx context.Context, g *models.ShareGrant) error {
	if err := f.upsertErrFor[g.RecipientID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := g.FileID + "/" + g.RecipientID
	if prev, ok := f.byID[key]; ok {
		prev.WrappedKey = g.WrappedKey
		prev.UpdatedAt = time.Now()
		return nil
	}
	cp := *g
	cp.ID = key
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byID[key] = &cp
	return nil
}

func (f *fakeGrantsRepo) Get(ctx context.Context, fileID, recipientID string) (*models.ShareGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[fileID+"/"+recipientID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return g, nil
}

func (f *fakeGrantsRepo) ListForFile(ctx context.Context, fileID string) ([]*models.ShareGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ShareGrant
	for _, g := range f.byID {
		if g.FileID == fileID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrantsRepo) remove(fileID, recipientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, fileID+"/"+recipientID)
}

type fakeFilesRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.EncryptedFile
	seq    int
	grants *fakeGrantsRepo

	createErr error
}

func newFakeFilesRepo(g *fakeGrantsRepo) *fakeFilesRepo {
	return &fakeFilesRepo{byID: make(map[string]*models.EncryptedFile), grants: g}
}

func (f *fakeFilesRepo) Create(ctx context.Context, file *models.EncryptedFile) (*models.EncryptedFile, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	file.ID = fmt.Sprintf("f-%d", f.seq)
	file.CreatedAt = time.Now()
	f.byID[file.ID] = file
	return file, nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.EncryptedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return file, nil
}

func (f *fakeFilesRepo) ListVisible(ctx context.Context, v files.Visibility) ([]*models.EncryptedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.EncryptedFile
	for _, file := range f.byID {
		visible := v.All || file.OwnerID == v.PrincipalID ||
			(v.Department != "" && file.Department == v.Department)
		if !visible {
			if _, err := f.grants.Get(ctx, file.ID, v.PrincipalID); err == nil {
				visible = true
			}
		}
		if !visible {
			continue
		}
		if v.Search != "" && !matchesSearch(file, v.Search) {
			continue
		}
		out = append(out, file)
	}
	return out, nil
}

func matchesSearch(f *models.EncryptedFile, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(f.OriginalName), q) {
		return true
	}
	for _, l := range f.Labels {
		if strings.Contains(strings.ToLower(l), q) {
			return true
		}
	}
	return false
}

func (f *fakeFilesRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeRepoManager struct {
	principals *fakePrincipalsRepo
	files      *fakeFilesRepo
	grants     *fakeGrantsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	g := newFakeGrantsRepo()
	return &fakeRepoManager{
		principals: newFakePrincipalsRepo(),
		files:      newFakeFilesRepo(g),
		grants:     g,
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Principals(dbx.DBTX) principals.Repository    { return m.principals }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository              { return m.files }
func (m *fakeRepoManager) Grants(dbx.DBTX) grants.Repository            { return m.grants }

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

// recordingSink collects events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Record(ctx context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) last() (audit.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return audit.Event{}, false
	}
	return s.events[len(s.events)-1], true
}

func (s *recordingSink) has(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Action == action {
			return true
		}
	}
	return false
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestPrincipal builds a principal with a real keypair, stored in the repo.
func newTestPrincipal(t *testing.T, repo *fakePrincipalsRepo, name, role, department string) *models.Principal {
	t.Helper()
	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	p, err := repo.Create(context.Background(), &models.Principal{
		Name:          name,
		Email:         name + "@example.com",
		Role:          role,
		Department:    department,
		PublicKeyPEM:  kp.PublicPEM,
		PrivateKeyPEM: kp.PrivatePEM,
	})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	return p
}
