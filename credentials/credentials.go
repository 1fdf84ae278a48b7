// Package credentials resolves and decrypts tenant directory-API secrets.
//
// Secrets are stored encrypted at rest on admin sessions. Resolution prefers
// the session the change was scheduled from; when that session has expired or
// carries no secret, the most recently updated session for the tenant is used
// instead. Decryption happens locally and the plaintext secret lives only in
// memory for the duration of one execution.
package credentials

import "time"

// Credentials is a decrypted directory-API secret bundle for one tenant.
type Credentials struct {
	AppID        string
	TenantID     string
	ClientSecret string
}

// Session is a stored admin session that may carry an encrypted credential.
type Session struct {
	ID              string
	TenantID        string
	AppID           string
	ClientSecretEnc string // hex-encoded AES-GCM ciphertext, empty if absent
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Valid reports whether the session has not expired at the given instant.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// HasSecret reports whether the session carries an encrypted credential.
func (s *Session) HasSecret() bool {
	return s.ClientSecretEnc != ""
}
