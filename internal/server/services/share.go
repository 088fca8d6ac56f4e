package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/cryptox"
	"github.com/vkarpenko/filevault/internal/logging"
	"github.com/vkarpenko/filevault/internal/server/access"
	"github.com/vkarpenko/filevault/internal/server/audit"
	"github.com/vkarpenko/filevault/internal/server/models"
	"github.com/vkarpenko/filevault/internal/server/repositories/repomanager"
)

// OutcomeStatus classifies the result of sharing with one target.
type OutcomeStatus string

const (
	// OutcomeShared means a grant was written for the target.
	OutcomeShared OutcomeStatus = "shared"
	// OutcomeSkipped means the target has no public key; recorded as a
	// no-op, not an error.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeFailed means wrapping or persisting the grant failed.
	OutcomeFailed OutcomeStatus = "failed"
)

// TargetOutcome is the per-target result of a share fan-out. One target's
// failure never aborts the remaining targets; the caller can observe and
// retry failed targets.
type TargetOutcome struct {
	PrincipalID string
	Status      OutcomeStatus
	Err         error
}

// ShareCoordinator adds recipients to an already-encrypted file by
// unwrapping its symmetric key and re-wrapping it per target.
type ShareCoordinator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	policy      *access.Policy
	auditSink   audit.Sink
	log         logging.Logger
}

// NewShareCoordinator constructs a ShareCoordinator.
func NewShareCoordinator(db *sql.DB, m repomanager.RepositoryManager, policy *access.Policy, sink audit.Sink, log logging.Logger) *ShareCoordinator {
	return &ShareCoordinator{
		db:          db,
		repomanager: m,
		policy:      policy,
		auditSink:   sink,
		log:         log.With("component", "share"),
	}
}

// ShareWith resolves the file's symmetric key through whichever wrapped key
// the acting principal is entitled to, then wraps it for every target.
// Policy denial fails the whole call with ErrUnauthorizedShare; per-target
// failures are collected, never escalated.
func (c *ShareCoordinator) ShareWith(ctx context.Context, sess *Session, fileID string, targetIDs []string) ([]TargetOutcome, error) {
	file, err := c.repomanager.Files(c.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	decision, err := c.policy.ResolveKey(ctx, sess.Principal, file)
	if err != nil {
		return nil, fmt.Errorf("resolve key: %w", err)
	}
	if !decision.Allowed() {
		return nil, common.ErrUnauthorizedShare
	}

	priv, err := cryptox.ParsePrivateKey(sess.Principal.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	symmetricKey, err := cryptox.UnwrapKey(decision.WrappedKeyFor(file), priv)
	if err != nil {
		return nil, fmt.Errorf("unwrap for share: %w", err)
	}

	outcomes := c.fanOut(ctx, file, symmetricKey, targetIDs)

	action := audit.ActionShare
	for _, o := range outcomes {
		if o.Status == OutcomeFailed {
			action = audit.ActionSharePartial
			break
		}
	}
	c.auditSink.Record(ctx, audit.Event{
		Action:      action,
		PrincipalID: sess.Principal.ID,
		FileID:      file.ID,
		Details:     map[string]any{"targets": len(targetIDs)},
	})

	return outcomes, nil
}

// AutoShareWithAdmins wraps the symmetric key for every administrator. It is
// called once, right after upload, before the key leaves memory. Strictly
// best-effort: a failure for one administrator neither fails the upload nor
// blocks the others.
func (c *ShareCoordinator) AutoShareWithAdmins(ctx context.Context, file *models.EncryptedFile, symmetricKey []byte) []TargetOutcome {
	admins, err := c.repomanager.Principals(c.db).ListAdmins(ctx)
	if err != nil {
		c.log.Warn(ctx, "listing admins for auto-share failed", "file_id", file.ID, "error", err.Error())
		return nil
	}

	targetIDs := make([]string, 0, len(admins))
	for _, a := range admins {
		targetIDs = append(targetIDs, a.ID)
	}

	outcomes := c.fanOut(ctx, file, symmetricKey, targetIDs)
	for _, o := range outcomes {
		if o.Status == OutcomeFailed {
			c.log.Warn(ctx, "auto-share with admin failed",
				"file_id", file.ID, "admin_id", o.PrincipalID, "error", o.Err.Error())
		}
	}
	return outcomes
}

// fanOut wraps the key for each target independently and upserts grants.
func (c *ShareCoordinator) fanOut(ctx context.Context, file *models.EncryptedFile, symmetricKey []byte, targetIDs []string) []TargetOutcome {
	principalRepo := c.repomanager.Principals(c.db)
	grantRepo := c.repomanager.Grants(c.db)

	outcomes := make([]TargetOutcome, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		pubPEM, err := principalRepo.PublicKeyOf(ctx, targetID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				outcomes = append(outcomes, TargetOutcome{PrincipalID: targetID, Status: OutcomeSkipped})
				continue
			}
			outcomes = append(outcomes, TargetOutcome{PrincipalID: targetID, Status: OutcomeFailed, Err: err})
			continue
		}

		pub, err := cryptox.ParsePublicKey(pubPEM)
		if err != nil {
			outcomes = append(outcomes, TargetOutcome{PrincipalID: targetID, Status: OutcomeFailed, Err: err})
			continue
		}

		wrapped, err := cryptox.WrapKey(symmetricKey, pub)
		if err != nil {
			outcomes = append(outcomes, TargetOutcome{PrincipalID: targetID, Status: OutcomeFailed, Err: err})
			continue
		}

		grant := &models.ShareGrant{FileID: file.ID, RecipientID: targetID, WrappedKey: wrapped}
		if err := grantRepo.Upsert(ctx, grant); err != nil {
			outcomes = append(outcomes, TargetOutcome{PrincipalID: targetID, Status: OutcomeFailed, Err: err})
			continue
		}

		outcomes = append(outcomes, TargetOutcome{PrincipalID: targetID, Status: OutcomeShared})
	}
	return outcomes
}
