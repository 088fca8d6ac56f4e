package models

import "time"

// ShareGrant holds one recipient's wrapped copy of a file's symmetric key.
// Unique per (file, recipient); re-granting overwrites the wrapped key.
// Grants are deleted with their file and never outlive it.
type ShareGrant struct {
	ID          string
	FileID      string
	RecipientID string
	// WrappedKey is the symmetric key wrapped for the recipient's public
	// key, base64-rendered.
	WrappedKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}
