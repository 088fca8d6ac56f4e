// Package common defines shared constants and sentinel errors used across
// the vault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Keypair generation failed; principal creation must abort.
	ErrProvisioning = errors.New("keypair provisioning failed")

	// Upload pipeline failed before commit; rollback has been performed.
	ErrUpload = errors.New("upload failed")

	// Policy denied access to a file.
	ErrAccessDenied = errors.New("access denied")

	// An administrator is missing the grant that upload should have created.
	// Surfaced distinctly so the deferred-repair condition is observable.
	ErrAdminGrantMissing = errors.New("administrator grant missing")

	// Cryptographic operations rejected their input. These are logged with
	// full detail server-side and surfaced to callers as ErrDecryptionFailed.
	ErrUnwrap     = errors.New("key unwrap failed")
	ErrDecryption = errors.New("decryption failed")

	// Opaque caller-facing failure for any non-authorization download error.
	ErrDecryptionFailed = errors.New("unable to decrypt file")

	// Digest mismatch after decryption. Always audited, never returns
	// partial plaintext.
	ErrIntegrity = errors.New("integrity check failed")

	// The acting principal may not share the file.
	ErrUnauthorizedShare = errors.New("not authorized to share")

	// Upload rejected before any crypto work.
	ErrContentTypeNotAllowed = errors.New("content type not allowed")
)
