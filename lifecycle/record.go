// Package lifecycle implements the scheduled lifecycle execution engine:
// due-record scanning, the record status state machine, the ordered action
// pipeline with partial-failure aggregation, and mandatory execution logging.
package lifecycle

import (
	"time"

	"github.com/teranos/offramp/directory"
	"github.com/teranos/offramp/errors"
)

// Record is a scheduled change to a user's directory-account state.
// Created externally; mutated only by this engine once execution begins.
type Record struct {
	ID        string
	TenantID  string
	SessionID string

	// Target user identifiers. Any one may be the only identifier available.
	UserObjectID      string
	UserPrincipalName string
	UserEmail         string
	UserDisplayName   string

	// ScheduledAt is UTC, derived from a local date+time+IANA timezone.
	ScheduledAt time.Time
	Timezone    string

	Status  string
	Actions ActionSet

	// Execution bookkeeping, written by the engine on terminal transition.
	ExecutedAt *time.Time
	ExecutedBy string
	Error      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status values. Transitions only advance:
// scheduled -> in-progress -> {completed, failed}.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ActionSet is the configured action set on a record: boolean flags plus
// free-form parameters such as the mailbox forwarding address.
type ActionSet struct {
	DisableAccount    bool
	RevokeAccess      bool
	RemoveFromGroups  bool
	ConvertMailbox    bool
	BackupData        bool
	RetireDevices     bool
	ForwardingAddress string
}

// Target returns the directory user reference for this record.
func (r *Record) Target() directory.Target {
	return directory.Target{
		ObjectID:      r.UserObjectID,
		PrincipalName: r.UserPrincipalName,
		Email:         r.UserEmail,
		DisplayName:   r.UserDisplayName,
	}
}

// ResolveScheduledAt converts a local date ("2006-01-02"), clock time
// ("15:04"), and IANA timezone into the UTC instant the record executes at.
func ResolveScheduledAt(date, clock, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unknown timezone %q", timezone)
	}

	local, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date/time %q %q", date, clock)
	}

	return local.UTC(), nil
}
