package lifecycle

import "time"

// ActionOutcome is the result of attempting one configured action within an
// execution attempt. Exactly one is emitted per configured action, in the
// fixed execution order; no omissions.
type ActionOutcome struct {
	Action     string `json:"action"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	OccurredAt string `json:"occurred_at"` // RFC3339 timestamp
}

// Outcome status values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomeWarning = "warning"
)

// ExecutionLog is one immutable record per execution attempt, successful or
// not. Aggregate counts are tallied from the outcomes; warnings count toward
// the skipped bucket so success+failed+skipped always sums to total.
type ExecutionLog struct {
	ID       string
	RecordID string

	StartedAt   time.Time
	CompletedAt time.Time

	TotalActions      int
	SuccessfulActions int
	FailedActions     int
	SkippedActions    int

	// ErrorMessage carries a pre-action fatal error (credential or token
	// failure); empty when the action pipeline ran.
	ErrorMessage string

	Outcomes  []ActionOutcome
	CreatedAt time.Time
}

// BuildLog assembles an execution log from one attempt's outcomes, tallying
// the aggregate counts. fatalErr is the pre-action error, if any; a fatal
// attempt has zero outcomes.
func BuildLog(recordID string, startedAt, completedAt time.Time, outcomes []ActionOutcome, fatalErr error) *ExecutionLog {
	log := &ExecutionLog{
		ID:           NewLogID(),
		RecordID:     recordID,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		TotalActions: len(outcomes),
		Outcomes:     outcomes,
		CreatedAt:    time.Now().UTC(),
	}

	if fatalErr != nil {
		log.ErrorMessage = fatalErr.Error()
	}

	for _, outcome := range outcomes {
		switch outcome.Status {
		case OutcomeSuccess:
			log.SuccessfulActions++
		case OutcomeError:
			log.FailedActions++
		default:
			// skipped and warning both mean "not performed"
			log.SkippedActions++
		}
	}

	return log
}

// HasFailures reports whether any outcome has status error.
func (l *ExecutionLog) HasFailures() bool {
	return l.FailedActions > 0
}
