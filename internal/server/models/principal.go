// Package models defines server-side data models persisted in the database.
package models

import "time"

// Principal roles, in order of privilege.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

// Principal is a user of the vault. Every principal owns exactly one RSA
// keypair, generated atomically at creation; a principal without a keypair
// cannot be a recipient of any wrapped key.
type Principal struct {
	ID       string
	Name     string
	Email    string
	// PasswordHash is a bcrypt hash of the login password.
	PasswordHash []byte
	// Role is one of RoleAdmin, RoleStaff, RoleUser.
	Role string
	// Department is empty for principals outside any department.
	Department string

	// PublicKeyPEM is freely readable (PKIX "PUBLIC KEY").
	PublicKeyPEM []byte
	// PrivateKeyPEM (PKCS#1 "RSA PRIVATE KEY") is handed out only to the
	// core acting on behalf of an authenticated session for this principal.
	PrivateKeyPEM []byte

	CreatedAt time.Time
}

// IsAdmin reports whether the principal has the administrator role.
func (p *Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsStaff reports whether the principal has the staff role.
func (p *Principal) IsStaff() bool { return p.Role == RoleStaff }

// ValidRole reports whether role is one of the known role labels.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff || role == RoleUser
}
