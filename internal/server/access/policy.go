// Package access centralizes the read-access policy for encrypted files.
// The policy keeps two notions apart: visibility (may the principal see the
// file in a listing) and decryptability (does a wrapped key exist that the
// principal is entitled to unwrap). Visibility is coarser; it never implies
// a key.
package access

import (
	"context"
	"errors"

	"github.com/vkarpenko/filevault/internal/common"
	"github.com/vkarpenko/filevault/internal/server/models"
	"github.com/vkarpenko/filevault/internal/server/repositories/grants"
)

// Verdict tags the outcome of a key resolution.
type Verdict int

const (
	// VerdictDenied means no wrapped key may be used by the principal.
	VerdictDenied Verdict = iota
	// VerdictOwnerKey grants via the owner's wrapped key on the file record.
	VerdictOwnerKey
	// VerdictShareGrant grants via an explicit share-grant record.
	VerdictShareGrant
)

// Decision is the result of evaluating the policy for one (principal, file)
// pair. When the verdict is VerdictShareGrant, Grant carries the record to
// use. Reason is set only on denial.
type Decision struct {
	Verdict Verdict
	Grant   *models.ShareGrant
	Reason  error
}

// Allowed reports whether the decision resolves a usable wrapped key.
func (d Decision) Allowed() bool { return d.Verdict != VerdictDenied }

// WrappedKeyFor returns the wrapped-key blob the decision selected for the
// given file.
func (d Decision) WrappedKeyFor(f *models.EncryptedFile) string {
	switch d.Verdict {
	case VerdictOwnerKey:
		return f.WrappedOwnerKey
	case VerdictShareGrant:
		return d.Grant.WrappedKey
	default:
		return ""
	}
}

// Policy evaluates read access. It depends only on the recipient key store.
type Policy struct {
	grants grants.Repository
}

// NewPolicy constructs a Policy over the given key store.
func NewPolicy(g grants.Repository) *Policy {
	return &Policy{grants: g}
}

// ResolveKey decides whether the principal may decrypt the file and which
// wrapped-key record to use. Rules, first match wins:
//
//  1. Administrator: granted via the administrator's own grant. Admins are
//     auto-granted at upload time, so a missing grant here is a defect the
//     caller must surface (ErrAdminGrantMissing), not owner access.
//  2. Owner: granted via the owner's wrapped key on the file record.
//  3. Anyone else, staff department peers included, needs an explicit
//     grant. Department membership alone never produces a key.
func (p *Policy) ResolveKey(ctx context.Context, principal *models.Principal, file *models.EncryptedFile) (Decision, error) {
	if principal.IsAdmin() {
		g, err := p.grants.Get(ctx, file.ID, principal.ID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return Decision{Verdict: VerdictDenied, Reason: common.ErrAdminGrantMissing}, nil
			}
			return Decision{}, err
		}
		return Decision{Verdict: VerdictShareGrant, Grant: g}, nil
	}

	if file.OwnerID == principal.ID {
		return Decision{Verdict: VerdictOwnerKey}, nil
	}

	g, err := p.grants.Get(ctx, file.ID, principal.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Decision{Verdict: VerdictDenied, Reason: common.ErrAccessDenied}, nil
		}
		return Decision{}, err
	}
	return Decision{Verdict: VerdictShareGrant, Grant: g}, nil
}

// CanSee reports listing visibility: admins see everything, owners their own
// files, staff their department's files, and grantees the files shared with
// them. hasGrant is the caller-supplied grant existence check result.
func CanSee(principal *models.Principal, file *models.EncryptedFile, hasGrant bool) bool {
	if principal.IsAdmin() {
		return true
	}
	if file.OwnerID == principal.ID {
		return true
	}
	if principal.IsStaff() && principal.Department != "" && file.Department == principal.Department {
		return true
	}
	return hasGrant
}
