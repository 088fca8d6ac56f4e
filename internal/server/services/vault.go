package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/cryptox"
	"github.com/vkarpenko/filevault/internal/logging"
	"github.com/vkarpenko/filevault/internal/server/access"
	"github.com/vkarpenko/filevault/internal/server/audit"
	"github.com/vkarpenko/filevault/internal/server/models"
	"github.com/vkarpenko/filevault/internal/server/repositories/files"
	"github.com/vkarpenko/filevault/internal/server/repositories/repomanager"
	"github.com/vkarpenko/filevault/internal/server/storage"
)

// defaultAllowedContentTypes mirrors the upload allowlist: documents,
// spreadsheets, plain text and common images.
var defaultAllowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/plain": {},
	"image/jpeg": {},
	"image/png":  {},
}

// VaultService orchestrates the upload, download, delete and listing
// pipelines over the envelope-encryption engine.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.Storage
	policy      *access.Policy
	coordinator *ShareCoordinator
	auditSink   audit.Sink
	log         logging.Logger
}

// NewVaultService constructs a VaultService.
func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, store storage.Storage,
	policy *access.Policy, coordinator *ShareCoordinator, sink audit.Sink, log logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		store:       store,
		policy:      policy,
		coordinator: coordinator,
		auditSink:   sink,
		log:         log.With("component", "vault"),
	}
}

// UploadInput carries upload metadata supplied by the caller.
type UploadInput struct {
	Name        string
	ContentType string
	Labels      []string
}

// newLocator builds a date-bucketed storage key for the ciphertext blob.
func newLocator() string {
	d := time.Now()
	return fmt.Sprintf("files/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// Upload runs the full encrypt-store-wrap sequence: generate a symmetric
// key, encrypt the payload, digest the plaintext, persist ciphertext and
// metadata with the owner's wrapped key, then best-effort share with every
// administrator. Any failure before commit rolls back externally visible
// effects in reverse order and returns ErrUpload; admin-share failures
// never fail the upload.
func (s *VaultService) Upload(ctx context.Context, sess *Session, plaintext []byte, in UploadInput) (*models.EncryptedFile, error) {
	owner := sess.Principal

	if _, ok := defaultAllowedContentTypes[in.ContentType]; !ok {
		return nil, fmt.Errorf("%w: %w: %q", common.ErrUpload, common.ErrContentTypeNotAllowed, in.ContentType)
	}

	file, err := s.upload(ctx, owner, plaintext, in)
	if err != nil {
		s.auditSink.Record(ctx, audit.Event{
			Action:      audit.ActionUploadFailed,
			PrincipalID: owner.ID,
			Details:     map[string]any{"name": in.Name, "error": err.Error()},
		})
		return nil, fmt.Errorf("%w: %w", common.ErrUpload, err)
	}

	s.auditSink.Record(ctx, audit.Event{
		Action:      audit.ActionUpload,
		PrincipalID: owner.ID,
		FileID:      file.ID,
		Details:     map[string]any{"name": file.OriginalName, "size": file.Size},
	})
	return file, nil
}

func (s *VaultService) upload(ctx context.Context, owner *models.Principal, plaintext []byte, in UploadInput) (*models.EncryptedFile, error) {
	key, err := cryptox.GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}

	blob, err := cryptox.EncryptPayload(plaintext, key)
	if err != nil {
		return nil, err
	}
	digest := cryptox.Digest(plaintext)

	locator := newLocator()
	if err := s.store.Put(ctx, locator, []byte(blob)); err != nil {
		return nil, fmt.Errorf("store ciphertext: %w", err)
	}

	pub, err := cryptox.ParsePublicKey(owner.PublicKeyPEM)
	if err != nil {
		s.rollbackBlob(ctx, locator)
		return nil, fmt.Errorf("owner public key: %w", err)
	}
	wrappedOwnerKey, err := cryptox.WrapKey(key, pub)
	if err != nil {
		s.rollbackBlob(ctx, locator)
		return nil, fmt.Errorf("wrap owner key: %w", err)
	}

	file := &models.EncryptedFile{
		OriginalName:    in.Name,
		Locator:         locator,
		Size:            int64(len(plaintext)),
		ContentType:     in.ContentType,
		Digest:          digest,
		WrappedOwnerKey: wrappedOwnerKey,
		OwnerID:         owner.ID,
		Department:      owner.Department,
		Labels:          in.Labels,
	}
	file, err = s.repomanager.Files(s.db).Create(ctx, file)
	if err != nil {
		s.rollbackBlob(ctx, locator)
		return nil, fmt.Errorf("create metadata: %w", err)
	}

	// Best-effort: failures here are logged by the coordinator and must not
	// fail the upload.
	s.coordinator.AutoShareWithAdmins(ctx, file, key)

	return file, nil
}

func (s *VaultService) rollbackBlob(ctx context.Context, locator string) {
	if err := s.store.Delete(ctx, locator); err != nil {
		s.log.Error(ctx, "rollback: deleting ciphertext failed", "locator", locator, "error", err.Error())
	}
}

// Download consults the policy, unwraps the resolved key, decrypts and
// verifies the digest before returning plaintext. Denial returns
// ErrAccessDenied; a digest mismatch returns ErrIntegrity and never leaks
// the decrypted bytes; every other failure is reported as the opaque
// ErrDecryptionFailed while the precise cause is logged server-side.
func (s *VaultService) Download(ctx context.Context, sess *Session, fileID string) ([]byte, *models.EncryptedFile, error) {
	caller := sess.Principal

	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	decision, err := s.policy.ResolveKey(ctx, caller, file)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve key: %w", err)
	}
	if !decision.Allowed() {
		s.auditSink.Record(ctx, audit.Event{
			Action:      audit.ActionDownloadDenied,
			PrincipalID: caller.ID,
			FileID:      file.ID,
			Details:     map[string]any{"reason": decision.Reason.Error()},
		})
		if errors.Is(decision.Reason, common.ErrAdminGrantMissing) {
			return nil, nil, fmt.Errorf("%w: %w", common.ErrAccessDenied, common.ErrAdminGrantMissing)
		}
		return nil, nil, common.ErrAccessDenied
	}

	plaintext, err := s.decrypt(ctx, caller, file, decision)
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			return nil, nil, err
		}
		// Cryptographic detail stays in the server log.
		s.log.Error(ctx, "download failed", "file_id", file.ID, "principal_id", caller.ID, "error", err.Error())
		return nil, nil, common.ErrDecryptionFailed
	}

	s.auditSink.Record(ctx, audit.Event{
		Action:      audit.ActionDownload,
		PrincipalID: caller.ID,
		FileID:      file.ID,
	})
	return plaintext, file, nil
}

func (s *VaultService) decrypt(ctx context.Context, caller *models.Principal, file *models.EncryptedFile, decision access.Decision) ([]byte, error) {
	priv, err := cryptox.ParsePrivateKey(caller.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, err := cryptox.UnwrapKey(decision.WrappedKeyFor(file), priv)
	if err != nil {
		return nil, err
	}

	blob, err := s.store.Get(ctx, file.Locator)
	if err != nil {
		return nil, fmt.Errorf("load ciphertext: %w", err)
	}

	plaintext, err := cryptox.DecryptPayload(string(blob), key)
	if err != nil {
		return nil, err
	}

	if !cryptox.VerifyDigest(plaintext, file.Digest) {
		s.auditSink.Record(ctx, audit.Event{
			Action:      audit.ActionIntegrityFailure,
			PrincipalID: caller.ID,
			FileID:      file.ID,
			Details:     map[string]any{"expected_digest": file.Digest},
		})
		return nil, common.ErrIntegrity
	}
	return plaintext, nil
}

// List returns the files visible to the caller. Visibility is deliberately
// coarser than decryptability: staff see their department's files whether or
// not they hold a grant.
func (s *VaultService) List(ctx context.Context, sess *Session, search string) ([]*models.EncryptedFile, error) {
	p := sess.Principal
	v := files.Visibility{
		PrincipalID: p.ID,
		All:         p.IsAdmin(),
		Search:      search,
	}
	if p.IsStaff() {
		v.Department = p.Department
	}
	return s.repomanager.Files(s.db).ListVisible(ctx, v)
}

// Delete removes a file: ciphertext blob first (missing locator tolerated),
// then the metadata record, cascading the grants. Only the owner or an
// administrator may delete.
func (s *VaultService) Delete(ctx context.Context, sess *Session, fileID string) error {
	caller := sess.Principal

	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() && file.OwnerID != caller.ID {
		return common.ErrAccessDenied
	}

	if err := s.store.Delete(ctx, file.Locator); err != nil {
		return fmt.Errorf("delete ciphertext: %w", err)
	}
	if err := s.repomanager.Files(s.db).Delete(ctx, file.ID); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}

	s.auditSink.Record(ctx, audit.Event{
		Action:      audit.ActionDelete,
		PrincipalID: caller.ID,
		FileID:      file.ID,
		Details:     map[string]any{"name": file.OriginalName},
	})
	return nil
}
