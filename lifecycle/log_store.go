package lifecycle

import (
	"database/sql"
	"time"

	"github.com/teranos/offramp/errors"
)

// LogStore handles persistence of execution logs and their action outcomes.
// Logs are append-only; there is no update path.
type LogStore struct {
	db *sql.DB
}

// NewLogStore creates a new execution log store
func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// CreateLog persists an execution log and its ordered outcomes in one
// transaction.
func (s *LogStore) CreateLog(log *ExecutionLog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin log transaction")
	}

	var errMsg interface{}
	if log.ErrorMessage != "" {
		errMsg = log.ErrorMessage
	}
	var recordID interface{}
	if log.RecordID != "" {
		recordID = log.RecordID
	}

	_, err = tx.Exec(`
		INSERT INTO execution_logs (
			id, record_id, started_at, completed_at,
			total_actions, successful_actions, failed_actions, skipped_actions,
			error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		log.ID,
		recordID,
		log.StartedAt.UTC().Format(time.RFC3339),
		log.CompletedAt.UTC().Format(time.RFC3339),
		log.TotalActions,
		log.SuccessfulActions,
		log.FailedActions,
		log.SkippedActions,
		errMsg,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to insert execution log")
	}

	for i, outcome := range log.Outcomes {
		var details interface{}
		if outcome.Details != "" {
			details = outcome.Details
		}

		_, err = tx.Exec(`
			INSERT INTO action_outcomes (
				log_id, position, action, status, message, details, occurred_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			log.ID,
			i,
			outcome.Action,
			outcome.Status,
			outcome.Message,
			details,
			outcome.OccurredAt,
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to insert outcome %d (%s)", i, outcome.Action)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit execution log")
	}

	return nil
}

// GetLog retrieves an execution log with its outcomes in insertion order.
func (s *LogStore) GetLog(id string) (*ExecutionLog, error) {
	query := `
		SELECT id, record_id, started_at, completed_at,
		       total_actions, successful_actions, failed_actions, skipped_actions,
		       error_message, created_at
		FROM execution_logs
		WHERE id = ?
	`

	log, err := s.scanLog(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("execution log not found: %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get execution log %s", id)
	}

	log.Outcomes, err = s.outcomesForLog(id)
	if err != nil {
		return nil, err
	}

	return log, nil
}

// ListLogsForRecord returns all execution logs for a record, newest first,
// each with its outcomes.
func (s *LogStore) ListLogsForRecord(recordID string) ([]*ExecutionLog, error) {
	query := `
		SELECT id, record_id, started_at, completed_at,
		       total_actions, successful_actions, failed_actions, skipped_actions,
		       error_message, created_at
		FROM execution_logs
		WHERE record_id = ?
		ORDER BY started_at DESC
	`

	rows, err := s.db.Query(query, recordID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list logs for record %s", recordID)
	}
	defer rows.Close()

	var logs []*ExecutionLog
	for rows.Next() {
		log, err := s.scanLog(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution log")
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, log := range logs {
		log.Outcomes, err = s.outcomesForLog(log.ID)
		if err != nil {
			return nil, err
		}
	}

	return logs, nil
}

// CountLogs returns the number of execution logs across all records.
func (s *LogStore) CountLogs() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM execution_logs").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count execution logs")
	}
	return count, nil
}

func (s *LogStore) outcomesForLog(logID string) ([]ActionOutcome, error) {
	query := `
		SELECT action, status, message, details, occurred_at
		FROM action_outcomes
		WHERE log_id = ?
		ORDER BY position ASC
	`

	rows, err := s.db.Query(query, logID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list outcomes for log %s", logID)
	}
	defer rows.Close()

	var outcomes []ActionOutcome
	for rows.Next() {
		var outcome ActionOutcome
		var details sql.NullString
		if err := rows.Scan(&outcome.Action, &outcome.Status, &outcome.Message, &details, &outcome.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan action outcome")
		}
		outcome.Details = details.String
		outcomes = append(outcomes, outcome)
	}

	return outcomes, rows.Err()
}

func (s *LogStore) scanLog(row rowScanner) (*ExecutionLog, error) {
	var log ExecutionLog
	var recordID, errMsg sql.NullString
	var startedAt, completedAt, createdAt string

	err := row.Scan(
		&log.ID,
		&recordID,
		&startedAt,
		&completedAt,
		&log.TotalActions,
		&log.SuccessfulActions,
		&log.FailedActions,
		&log.SkippedActions,
		&errMsg,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	log.RecordID = recordID.String
	log.ErrorMessage = errMsg.String

	log.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for log %s", log.ID)
	}
	log.CompletedAt, err = time.Parse(time.RFC3339, completedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse completed_at for log %s", log.ID)
	}
	log.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for log %s", log.ID)
	}

	return &log, nil
}
