package lifecycle

import (
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/offramp/errors"
	offtest "github.com/teranos/offramp/internal/testing"
)

func TestBuildLogTallies(t *testing.T) {
	startedAt := time.Now().UTC().Add(-2 * time.Second)
	completedAt := time.Now().UTC()

	outcomes := []ActionOutcome{
		successOutcome(ActionDisableAccount, "account disabled"),
		errorOutcome(ActionRevokeAccess, errors.New("boom")),
		warningOutcome(ActionConvertMailbox, "not performed"),
		skippedOutcome(ActionBackupData, "not supported"),
	}

	log := BuildLog("REC_tally", startedAt, completedAt, outcomes, nil)

	assert.Equal(t, 4, log.TotalActions)
	assert.Equal(t, 1, log.SuccessfulActions)
	assert.Equal(t, 1, log.FailedActions)
	// warnings and skips share the skipped bucket
	assert.Equal(t, 2, log.SkippedActions)
	assert.Equal(t, log.TotalActions, log.SuccessfulActions+log.FailedActions+log.SkippedActions)
	assert.True(t, log.HasFailures())
	assert.Empty(t, log.ErrorMessage)
}

func TestBuildLogFatal(t *testing.T) {
	now := time.Now().UTC()
	log := BuildLog("REC_fatal", now, now, nil, errors.New("no directory credentials found"))

	assert.Equal(t, 0, log.TotalActions)
	assert.Empty(t, log.Outcomes)
	assert.Equal(t, "no directory credentials found", log.ErrorMessage)
	assert.False(t, log.HasFailures())
}

func TestCreateAndGetLog(t *testing.T) {
	db := offtest.CreateTestDB(t)
	store := NewStore(db)
	logs := NewLogStore(db)

	rec := testRecord("REC_log", time.Now().UTC())
	require.NoError(t, store.CreateRecord(rec))

	startedAt := time.Now().UTC().Add(-1 * time.Second)
	completedAt := time.Now().UTC()
	outcomes := []ActionOutcome{
		successOutcome(ActionDisableAccount, "account disabled"),
		{
			Action:     ActionRevokeAccess,
			Status:     OutcomeError,
			Message:    "Insufficient privileges to complete the operation.",
			Details:    "status=403 code=Authorization_RequestDenied",
			OccurredAt: completedAt.Format(time.RFC3339),
		},
	}

	log := BuildLog(rec.ID, startedAt, completedAt, outcomes, nil)
	require.NoError(t, logs.CreateLog(log))

	retrieved, err := logs.GetLog(log.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, retrieved.RecordID)
	assert.Equal(t, 2, retrieved.TotalActions)
	assert.Equal(t, 1, retrieved.SuccessfulActions)
	assert.Equal(t, 1, retrieved.FailedActions)
	assert.Equal(t, 0, retrieved.SkippedActions)

	require.Len(t, retrieved.Outcomes, 2)
	assert.Equal(t, ActionDisableAccount, retrieved.Outcomes[0].Action)
	assert.Equal(t, OutcomeSuccess, retrieved.Outcomes[0].Status)
	assert.Equal(t, ActionRevokeAccess, retrieved.Outcomes[1].Action)
	assert.Equal(t, OutcomeError, retrieved.Outcomes[1].Status)
	assert.Equal(t, "status=403 code=Authorization_RequestDenied", retrieved.Outcomes[1].Details)
}

func TestGetLogNotFound(t *testing.T) {
	db := offtest.CreateTestDB(t)
	logs := NewLogStore(db)

	_, err := logs.GetLog("EXL_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListLogsForRecordNewestFirst(t *testing.T) {
	db := offtest.CreateTestDB(t)
	store := NewStore(db)
	logs := NewLogStore(db)

	rec := testRecord("REC_retry", time.Now().UTC())
	require.NoError(t, store.CreateRecord(rec))

	base := time.Now().UTC().Add(-1 * time.Hour)
	first := BuildLog(rec.ID, base, base.Add(1*time.Second), nil, errors.New("token acquisition failed"))
	second := BuildLog(rec.ID, base.Add(10*time.Minute), base.Add(10*time.Minute+time.Second),
		[]ActionOutcome{successOutcome(ActionDisableAccount, "account disabled")}, nil)

	require.NoError(t, logs.CreateLog(first))
	require.NoError(t, logs.CreateLog(second))

	listed, err := logs.ListLogsForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
	assert.Equal(t, first.ID, listed[1].ID)
	assert.Equal(t, "token acquisition failed", listed[1].ErrorMessage)
	require.Len(t, listed[0].Outcomes, 1)

	count, err := logs.CountLogs()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestOutcomeOrderSurvivesRoundTrip(t *testing.T) {
	db := offtest.CreateTestDB(t)
	store := NewStore(db)
	logs := NewLogStore(db)

	rec := testRecord("REC_order", time.Now().UTC())
	require.NoError(t, store.CreateRecord(rec))

	ordered := []ActionOutcome{
		successOutcome(ActionDisableAccount, "a"),
		successOutcome(ActionRevokeAccess, "b"),
		successOutcome(ActionRemoveFromGroups, "c"),
		warningOutcome(ActionConvertMailbox, "d"),
		skippedOutcome(ActionBackupData, "e"),
		warningOutcome(ActionRetireDevices, "f"),
	}

	now := time.Now().UTC()
	log := BuildLog(rec.ID, now, now, ordered, nil)
	require.NoError(t, logs.CreateLog(log))

	retrieved, err := logs.GetLog(log.ID)
	require.NoError(t, err)
	require.Len(t, retrieved.Outcomes, len(ordered))
	for i, outcome := range retrieved.Outcomes {
		assert.Equal(t, ordered[i].Action, outcome.Action, "position %d", i)
	}
}
