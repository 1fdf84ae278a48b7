package credentials

import (
	"time"

	"github.com/teranos/offramp/errors"
)

// ErrNotFound indicates no usable secret exists for the tenant/session pair.
// Execution of the record aborts before any directory action runs.
var ErrNotFound = errors.New("no directory credentials found")

// Resolver resolves a tenant's directory-API credentials.
//
// Resolution order:
//  1. the still-valid session the change was scheduled from, if it carries a secret
//  2. the most recently updated session for the tenant that carries a secret
type Resolver struct {
	store *SessionStore
	keys  KeyProvider
}

// NewResolver creates a resolver backed by the session store and the injected
// key provider.
func NewResolver(store *SessionStore, keys KeyProvider) *Resolver {
	return &Resolver{store: store, keys: keys}
}

// Resolve returns decrypted credentials for the tenant/session pair, or
// ErrNotFound when neither source yields a secret. Read-only: no session is
// mutated.
func (r *Resolver) Resolve(tenantID, sessionID string) (*Credentials, error) {
	now := time.Now().UTC()

	if sessionID != "" {
		session, err := r.store.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
		if session != nil && session.Valid(now) && session.HasSecret() {
			return r.decrypt(session)
		}
	}

	session, err := r.store.LatestForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.HasSecret() {
		return nil, errors.Wrapf(ErrNotFound, "tenant %s", tenantID)
	}

	return r.decrypt(session)
}

func (r *Resolver) decrypt(session *Session) (*Credentials, error) {
	secret, err := Decrypt(r.keys, session.ClientSecretEnc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt secret for session %s", session.ID)
	}

	return &Credentials{
		AppID:        session.AppID,
		TenantID:     session.TenantID,
		ClientSecret: secret,
	}, nil
}
