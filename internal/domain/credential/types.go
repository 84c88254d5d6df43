// Package credential manages client identities: password hashing, role
// assignment, and enable/disable state. Records are persisted through
// jsonstore as a single clients.json file.
package credential

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup by id or username matches nothing.
var ErrNotFound = errors.New("credential: not found")

// ErrAlreadyExists is returned by Create when the username is taken.
var ErrAlreadyExists = errors.New("credential: username already exists")

// ErrInvalidCredentials is returned by Authenticate on any mismatch: unknown
// username, wrong password, or a disabled account. The distinction is never
// surfaced to the caller, to avoid username enumeration.
var ErrInvalidCredentials = errors.New("credential: invalid username or password")

// Record is a registered client's stored identity.
type Record struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	PasswordHash string            `json:"password_hash"`
	Email        string            `json:"email,omitempty"`
	Roles        []string          `json:"roles"`
	Enabled      bool              `json:"enabled"`
	CreatedAt    time.Time         `json:"created_at"`
	LastLoginAt  *time.Time        `json:"last_login_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// HasRole reports whether r carries the given role tag.
func (r *Record) HasRole(role string) bool {
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// Public strips the password hash before the record leaves the registry
// boundary, so callers can't accidentally serialize it back to a client.
func (r *Record) Public() Record {
	cp := *r
	cp.PasswordHash = ""
	return cp
}
