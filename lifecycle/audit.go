package lifecycle

import (
	"database/sql"
	"time"

	"github.com/teranos/offramp/errors"
)

// AuditEntry is a human-readable compliance record. Append-only.
type AuditEntry struct {
	ID        int64
	Actor     string
	Event     string
	Detail    string
	RecordID  string
	CreatedAt time.Time
}

// Audit event names
const (
	EventExecutionCompleted = "lifecycle.execution.completed"
	EventExecutionFailed    = "lifecycle.execution.failed"
	EventRecordScheduled    = "lifecycle.record.scheduled"
	EventRecordReaped       = "lifecycle.record.reaped"
)

// AuditStore appends and reads audit log entries
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates a new audit store
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append writes one audit entry.
func (s *AuditStore) Append(actor, event, detail, recordID string) error {
	var recID interface{}
	if recordID != "" {
		recID = recordID
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_log (actor, event, detail, record_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, actor, event, detail, recID, time.Now().UTC().Format(time.RFC3339))

	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	return nil
}

// ListForRecord returns audit entries for a record, oldest first.
func (s *AuditStore) ListForRecord(recordID string) ([]*AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, actor, event, detail, record_id, created_at
		FROM audit_log
		WHERE record_id = ?
		ORDER BY id ASC
	`, recordID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list audit entries for record %s", recordID)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var recID sql.NullString
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Event, &entry.Detail, &recID, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		entry.RecordID = recID.String
		entry.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse created_at for audit entry %d", entry.ID)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
