// Package services contains the server-side business logic: principal
// provisioning, the upload/download pipelines, and share coordination.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/cryptox"
	"github.com/vkarpenko/filevault/internal/server/audit"
	"github.com/vkarpenko/filevault/internal/server/auth"
	"github.com/vkarpenko/filevault/internal/server/config"
	"github.com/vkarpenko/filevault/internal/server/models"
	"github.com/vkarpenko/filevault/internal/server/repositories/repomanager"
)

// PrincipalService handles registration, login, session authentication and
// keypair provisioning.
type PrincipalService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	auditSink     audit.Sink
	jwtSecret     []byte
	tokenValidity time.Duration
}

// NewPrincipalService constructs a PrincipalService using repositories and
// server config.
func NewPrincipalService(db *sql.DB, m repomanager.RepositoryManager, sink audit.Sink, cfg *config.Config) *PrincipalService {
	return &PrincipalService{
		db:            db,
		repomanager:   m,
		auditSink:     sink,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.AccessTokenValidityDuration,
	}
}

// RegisterInput carries the fields of a new principal.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Role       string
	Department string
}

// Register creates a principal with a bcrypt-hashed password and a freshly
// generated RSA keypair. Keypair generation failure aborts the whole
// creation: a principal without a keypair cannot be a recipient.
func (s *PrincipalService) Register(ctx context.Context, in RegisterInput) (*models.Principal, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", in.Role)
	}
	if role == models.RoleStaff && in.Department == "" {
		return nil, fmt.Errorf("staff principal requires a department")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrProvisioning, err)
	}

	p := &models.Principal{
		Name:          in.Name,
		Email:         in.Email,
		PasswordHash:  hash,
		Role:          role,
		Department:    in.Department,
		PublicKeyPEM:  kp.PublicPEM,
		PrivateKeyPEM: kp.PrivatePEM,
	}

	p, err = s.repomanager.Principals(s.db).Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("error creating principal: %w", err)
	}

	s.auditSink.Record(ctx, audit.Event{
		Action:      audit.ActionRegister,
		PrincipalID: p.ID,
		Details:     map[string]any{"email": p.Email, "role": p.Role},
	})

	return p, nil
}

// Login verifies the password and mints a session token.
func (s *PrincipalService) Login(ctx context.Context, email, password string) (string, error) {
	p, err := s.repomanager.Principals(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}
	if err := bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(password)); err != nil {
		return "", common.ErrorUnauthorized
	}
	return auth.GenerateToken(p.ID, s.jwtSecret, s.tokenValidity)
}

// Authenticate turns a token into a Session for the pipelines.
func (s *PrincipalService) Authenticate(ctx context.Context, token string) (*Session, error) {
	id, err := auth.GetPrincipalIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	p, err := s.repomanager.Principals(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return &Session{Principal: p}, nil
}

// ProvisionKeypair issues a keypair for a principal created without one.
func (s *PrincipalService) ProvisionKeypair(ctx context.Context, principalID string) error {
	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrProvisioning, err)
	}
	if err := s.repomanager.Principals(s.db).SetKeyPair(ctx, principalID, kp.PublicPEM, kp.PrivatePEM); err != nil {
		return fmt.Errorf("store keypair: %w", err)
	}
	return nil
}

// Delete removes a principal. Only administrators may delete; the
// principal's files and grants cascade at the schema level.
func (s *PrincipalService) Delete(ctx context.Context, sess *Session, principalID string) error {
	if !sess.Principal.IsAdmin() {
		return common.ErrAccessDenied
	}
	return s.repomanager.Principals(s.db).Delete(ctx, principalID)
}
