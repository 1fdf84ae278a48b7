package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/offramp/errors"
)

// Store handles persistence of lifecycle records
type Store struct {
	db *sql.DB
}

// NewStore creates a new lifecycle record store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `
	id, tenant_id, session_id,
	user_object_id, user_principal_name, user_email, user_display_name,
	scheduled_at, timezone, status,
	disable_account, revoke_sessions, remove_from_groups,
	convert_mailbox, backup_data, retire_devices, forwarding_address,
	executed_at, executed_by, error,
	created_at, updated_at`

// CreateRecord inserts a new lifecycle record in status scheduled.
func (s *Store) CreateRecord(rec *Record) error {
	query := `
		INSERT INTO lifecycle_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if rec.Status == "" {
		rec.Status = StatusScheduled
	}

	var fwd interface{}
	if rec.Actions.ForwardingAddress != "" {
		fwd = rec.Actions.ForwardingAddress
	}

	_, err := s.db.Exec(query,
		rec.ID,
		rec.TenantID,
		rec.SessionID,
		nullable(rec.UserObjectID),
		nullable(rec.UserPrincipalName),
		nullable(rec.UserEmail),
		nullable(rec.UserDisplayName),
		rec.ScheduledAt.UTC().Format(time.RFC3339),
		rec.Timezone,
		rec.Status,
		boolToInt(rec.Actions.DisableAccount),
		boolToInt(rec.Actions.RevokeAccess),
		boolToInt(rec.Actions.RemoveFromGroups),
		boolToInt(rec.Actions.ConvertMailbox),
		boolToInt(rec.Actions.BackupData),
		boolToInt(rec.Actions.RetireDevices),
		fwd,
		nil, // executed_at
		nil, // executed_by
		nil, // error
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)

	if err != nil {
		return errors.Wrap(err, "failed to create lifecycle record")
	}

	return nil
}

// GetRecord retrieves a lifecycle record by ID
func (s *Store) GetRecord(id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM lifecycle_records WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("lifecycle record not found: %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get lifecycle record %s", id)
	}

	return rec, nil
}

// ListDueContext returns records due for execution: status scheduled with
// scheduled_at at or before now, oldest first, capped at limit.
func (s *Store) ListDueContext(ctx context.Context, now time.Time, limit int) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM lifecycle_records
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, StatusScheduled, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan due record")
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListRecords returns records newest first, capped at limit.
func (s *Store) ListRecords(limit int) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM lifecycle_records
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list lifecycle records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan lifecycle record")
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// NextScheduled returns the soonest scheduled record, or nil when none exist.
func (s *Store) NextScheduled() (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM lifecycle_records
		WHERE status = ?
		ORDER BY scheduled_at ASC
		LIMIT 1
	`

	rec, err := scanRecord(s.db.QueryRow(query, StatusScheduled))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get next scheduled record")
	}

	return rec, nil
}

// Claim transitions a record from scheduled to in-progress with a single
// conditional write. Returns false when the record was no longer in status
// scheduled, closing the window where two overlapping scans could both
// execute the same record.
func (s *Store) Claim(id string) (bool, error) {
	query := `
		UPDATE lifecycle_records
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query,
		StatusInProgress,
		time.Now().UTC().Format(time.RFC3339),
		id,
		StatusScheduled,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim record %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return rows == 1, nil
}

// Complete transitions an in-progress record to completed.
func (s *Store) Complete(id, executedBy string, executedAt time.Time) error {
	return s.finish(id, StatusCompleted, executedBy, executedAt, "")
}

// Fail transitions an in-progress record to failed, recording the error.
func (s *Store) Fail(id, executedBy string, executedAt time.Time, errMsg string) error {
	return s.finish(id, StatusFailed, executedBy, executedAt, errMsg)
}

// finish performs a terminal transition, guarded against anything but
// in-progress as the source state. Status never moves backward.
func (s *Store) finish(id, status, executedBy string, executedAt time.Time, errMsg string) error {
	query := `
		UPDATE lifecycle_records
		SET status = ?, executed_at = ?, executed_by = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}

	result, err := s.db.Exec(query,
		status,
		executedAt.UTC().Format(time.RFC3339),
		executedBy,
		errVal,
		time.Now().UTC().Format(time.RFC3339),
		id,
		StatusInProgress,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to mark record %s %s", id, status)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrConflict, "record %s is not in-progress", id)
	}

	return nil
}

// ReapStale fails records stuck in-progress since before the cutoff, e.g.
// after a crash mid-pipeline. Returns the number of records reaped.
func (s *Store) ReapStale(cutoff time.Time) (int, error) {
	query := `
		UPDATE lifecycle_records
		SET status = ?, error = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?
	`

	result, err := s.db.Exec(query,
		StatusFailed,
		"execution did not complete; reaped after exceeding the in-progress deadline",
		time.Now().UTC().Format(time.RFC3339),
		StatusInProgress,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to reap stale records")
	}

	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(reaped), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var objectID, principalName, email, displayName sql.NullString
	var fwd, executedAt, executedBy, errMsg sql.NullString
	var scheduledAt, createdAt, updatedAt string
	var disable, revoke, removeGroups, convertMailbox, backupData, retireDevices int

	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.SessionID,
		&objectID,
		&principalName,
		&email,
		&displayName,
		&scheduledAt,
		&rec.Timezone,
		&rec.Status,
		&disable,
		&revoke,
		&removeGroups,
		&convertMailbox,
		&backupData,
		&retireDevices,
		&fwd,
		&executedAt,
		&executedBy,
		&errMsg,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.UserObjectID = objectID.String
	rec.UserPrincipalName = principalName.String
	rec.UserEmail = email.String
	rec.UserDisplayName = displayName.String
	rec.Actions = ActionSet{
		DisableAccount:    disable == 1,
		RevokeAccess:      revoke == 1,
		RemoveFromGroups:  removeGroups == 1,
		ConvertMailbox:    convertMailbox == 1,
		BackupData:        backupData == 1,
		RetireDevices:     retireDevices == 1,
		ForwardingAddress: fwd.String,
	}
	rec.ExecutedBy = executedBy.String
	rec.Error = errMsg.String

	// Parse timestamps (return error if parsing fails - indicates data corruption or schema mismatch)
	rec.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse scheduled_at for record %s", rec.ID)
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for record %s", rec.ID)
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for record %s", rec.ID)
	}
	if executedAt.Valid {
		t, err := time.Parse(time.RFC3339, executedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse executed_at for record %s", rec.ID)
		}
		rec.ExecutedAt = &t
	}

	return &rec, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
