package models

import "time"

// EncryptedFile is the metadata record for one stored object. The bytes at
// Locator are always ciphertext produced by exactly one symmetric key; the
// digest is computed over the plaintext before encryption and must match
// whatever is later decrypted.
type EncryptedFile struct {
	ID string
	// OriginalName is the display name the file was uploaded under.
	OriginalName string
	// Locator is the opaque object-storage key of the ciphertext blob.
	Locator string
	Size        int64
	ContentType string
	// Digest is the hex-encoded SHA-256 of the plaintext.
	Digest string
	// WrappedOwnerKey is the symmetric key wrapped for the owner's public
	// key, base64-rendered.
	WrappedOwnerKey string
	OwnerID         string
	// Department is inherited from the owner at creation time and frozen
	// thereafter.
	Department string
	// Labels are free-text labels attached at upload.
	Labels []string

	CreatedAt time.Time
}
