package credentials

import (
	"database/sql"
	"time"

	"github.com/teranos/offramp/errors"
)

// SessionStore handles persistence of admin sessions
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession inserts a new admin session
func (s *SessionStore) CreateSession(session *Session) error {
	query := `
		INSERT INTO admin_sessions (
			id, tenant_id, app_id, client_secret_enc,
			expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	var secretEnc interface{}
	if session.ClientSecretEnc != "" {
		secretEnc = session.ClientSecretEnc
	}

	_, err := s.db.Exec(query,
		session.ID,
		session.TenantID,
		session.AppID,
		secretEnc,
		session.ExpiresAt.Format(time.RFC3339),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)

	if err != nil {
		return errors.Wrap(err, "failed to create admin session")
	}

	return nil
}

// GetSession retrieves a session by ID. Returns nil when no session exists.
func (s *SessionStore) GetSession(id string) (*Session, error) {
	query := `
		SELECT id, tenant_id, app_id, client_secret_enc,
		       expires_at, created_at, updated_at
		FROM admin_sessions
		WHERE id = ?
	`

	session, err := s.scanSession(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get admin session %s", id)
	}

	return session, nil
}

// LatestForTenant returns the most recently updated session for the tenant
// that carries a credential. Returns nil when none exists.
func (s *SessionStore) LatestForTenant(tenantID string) (*Session, error) {
	query := `
		SELECT id, tenant_id, app_id, client_secret_enc,
		       expires_at, created_at, updated_at
		FROM admin_sessions
		WHERE tenant_id = ? AND client_secret_enc IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`

	session, err := s.scanSession(s.db.QueryRow(query, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get latest session for tenant %s", tenantID)
	}

	return session, nil
}

// TouchSession bumps updated_at, marking the session most-recently-used.
func (s *SessionStore) TouchSession(id string) error {
	query := `UPDATE admin_sessions SET updated_at = ? WHERE id = ?`

	result, err := s.db.Exec(query, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrap(err, "failed to touch admin session")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("admin session not found: %s", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SessionStore) scanSession(row rowScanner) (*Session, error) {
	var session Session
	var secretEnc sql.NullString
	var expiresAt, createdAt, updatedAt string

	err := row.Scan(
		&session.ID,
		&session.TenantID,
		&session.AppID,
		&secretEnc,
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if secretEnc.Valid {
		session.ClientSecretEnc = secretEnc.String
	}

	// Parse timestamps (return error if parsing fails - indicates data corruption or schema mismatch)
	session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse expires_at for session %s", session.ID)
	}
	session.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for session %s", session.ID)
	}
	session.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for session %s", session.ID)
	}

	return &session, nil
}
