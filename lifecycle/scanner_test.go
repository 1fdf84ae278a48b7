package lifecycle

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/offramp/credentials"
	"github.com/teranos/offramp/directory"
	offtest "github.com/teranos/offramp/internal/testing"
)

type scannerFixture struct {
	store    *Store
	logs     *LogStore
	audit    *AuditStore
	sessions *credentials.SessionStore
	keys     *credentials.EnclaveKeyProvider
	scanner  *Scanner
	dir      *fakeDirectory

	rejectTokens atomic.Bool
	tokenCalls   atomic.Int64
}

func newScannerFixture(t *testing.T) *scannerFixture {
	t.Helper()

	db := offtest.CreateTestDB(t)
	fx := &scannerFixture{
		store:    NewStore(db),
		logs:     NewLogStore(db),
		audit:    NewAuditStore(db),
		sessions: credentials.NewSessionStore(db),
		dir:      newFakeDirectory(t),
	}

	keys, err := credentials.NewEnclaveKeyProvider(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	fx.keys = keys

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if fx.rejectTokens.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client","error_description":"AADSTS7000215: Invalid client secret provided."}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok-test","token_type":"Bearer","expires_in":3599}`))
	}))
	t.Cleanup(tokenSrv.Close)

	resolver := credentials.NewResolver(fx.sessions, keys)
	tokens := directory.NewTokenSource(tokenSrv.URL, "scope", tokenSrv.Client())
	executor := NewExecutor(fx.dir.client(), zap.NewNop().Sugar())

	fx.scanner = NewScanner(fx.store, fx.logs, fx.audit, resolver, tokens, executor,
		DefaultScannerConfig(), zap.NewNop().Sugar())

	return fx
}

func (fx *scannerFixture) storeCredential(t *testing.T, sessionID, tenantID string) {
	t.Helper()
	encrypted, err := credentials.Encrypt(fx.keys, "s3cret")
	require.NoError(t, err)
	require.NoError(t, fx.sessions.CreateSession(&credentials.Session{
		ID:              sessionID,
		TenantID:        tenantID,
		AppID:           "app-1",
		ClientSecretEnc: encrypted,
		ExpiresAt:       time.Now().UTC().Add(1 * time.Hour),
	}))
}

func TestRunOnceCompletesDueRecord(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")
	fx.dir.ok("PATCH /users/jdoe@example.com")
	fx.dir.ok("POST /users/jdoe@example.com/revokeSignInSessions")

	rec := testRecord("REC_due", time.Now().UTC().Add(-1*time.Minute))
	require.NoError(t, fx.store.CreateRecord(rec))

	processed, err := fx.scanner.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	retrieved, err := fx.store.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, retrieved.Status)
	assert.Equal(t, ExecutedBy, retrieved.ExecutedBy)
	require.NotNil(t, retrieved.ExecutedAt)
	assert.Empty(t, retrieved.Error)

	logs, err := fx.logs.ListLogsForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].TotalActions)
	assert.Equal(t, 2, logs[0].SuccessfulActions)
	assert.Equal(t, 0, logs[0].FailedActions)
	assert.Equal(t, 0, logs[0].SkippedActions)

	entries, err := fx.audit.ListForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, EventExecutionCompleted, entries[0].Event)
}

func TestRunOnceRecordsActionFailure(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")
	fx.dir.handle("PATCH /users/jdoe@example.com", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"Authorization_RequestDenied","message":"Insufficient privileges to complete the operation."}}`))
	})
	fx.dir.ok("POST /users/jdoe@example.com/revokeSignInSessions")

	rec := testRecord("REC_denied", time.Now().UTC().Add(-1*time.Minute))
	require.NoError(t, fx.store.CreateRecord(rec))

	processed, err := fx.scanner.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	retrieved, err := fx.store.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, retrieved.Status)
	assert.Equal(t, "Insufficient privileges to complete the operation.", retrieved.Error)

	// Revocation still ran despite the disable failing
	assert.Equal(t, 1, fx.dir.callCount("POST /users/jdoe@example.com/revokeSignInSessions"))

	logs, err := fx.logs.ListLogsForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].TotalActions)
	assert.Equal(t, 1, logs[0].SuccessfulActions)
	assert.Equal(t, 1, logs[0].FailedActions)
	require.Len(t, logs[0].Outcomes, 2)
	assert.Equal(t, ActionDisableAccount, logs[0].Outcomes[0].Action)
	assert.Equal(t, OutcomeError, logs[0].Outcomes[0].Status)

	entries, err := fx.audit.ListForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, EventExecutionFailed, entries[0].Event)
}

func TestRunOnceLeavesFutureRecords(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")

	rec := testRecord("REC_future", time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, fx.store.CreateRecord(rec))

	processed, err := fx.scanner.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	retrieved, err := fx.store.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, retrieved.Status)
	assert.Nil(t, retrieved.ExecutedAt)

	// No credential, token, or directory work happened
	assert.Equal(t, int64(0), fx.tokenCalls.Load())
	assert.Empty(t, fx.dir.calls)

	count, err := fx.logs.CountLogs()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRunOnceMissingCredentialsIsFatal(t *testing.T) {
	fx := newScannerFixture(t)
	// No session stored at all

	rec := testRecord("REC_nocreds", time.Now().UTC().Add(-1*time.Minute))
	require.NoError(t, fx.store.CreateRecord(rec))

	processed, err := fx.scanner.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	retrieved, err := fx.store.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, retrieved.Status)
	assert.Contains(t, retrieved.Error, "no directory credentials found")

	// The attempt is still logged, with zero outcomes and the fatal error
	logs, err := fx.logs.ListLogsForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 0, logs[0].TotalActions)
	assert.Empty(t, logs[0].Outcomes)
	assert.Contains(t, logs[0].ErrorMessage, "no directory credentials found")

	// Nothing reached the directory
	assert.Empty(t, fx.dir.calls)
}

func TestRunOnceTokenRejectionIsFatal(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")
	fx.rejectTokens.Store(true)

	rec := testRecord("REC_badsecret", time.Now().UTC().Add(-1*time.Minute))
	require.NoError(t, fx.store.CreateRecord(rec))

	_, err := fx.scanner.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	retrieved, err := fx.store.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, retrieved.Status)
	assert.Contains(t, retrieved.Error, "AADSTS7000215")

	logs, err := fx.logs.ListLogsForRecord(rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 0, logs[0].TotalActions)
	assert.Contains(t, logs[0].ErrorMessage, "invalid_client")

	assert.Empty(t, fx.dir.calls)
}

func TestRunOnceFallsBackToTenantCredential(t *testing.T) {
	fx := newScannerFixture(t)
	// The scheduling session is gone; only a tenant-wide credential exists
	fx.storeCredential(t, "SES_other", "tenant-1")
	fx.dir.ok("PATCH /users/jdoe@example.com")
	fx.dir.ok("POST /users/jdoe@example.com/revokeSignInSessions")

	rec := testRecord("REC_fallback", time.Now().UTC().Add(-1*time.Minute))
	rec.SessionID = "SES_vanished"
	require.NoError(t, fx.store.CreateRecord(rec))

	_, err := fx.scanner.RunOnce(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	retrieved, err := fx.store.GetRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, retrieved.Status)
	assert.Equal(t, int64(1), fx.tokenCalls.Load())
}

func TestRunOnceProcessesBatchSequentially(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")
	fx.dir.ok("PATCH /users/jdoe@example.com")
	fx.dir.ok("POST /users/jdoe@example.com/revokeSignInSessions")

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		rec := testRecord(NewRecordID(), now.Add(-time.Duration(i+1)*time.Minute))
		require.NoError(t, fx.store.CreateRecord(rec))
	}

	processed, err := fx.scanner.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	records, err := fx.store.ListRecords(10)
	require.NoError(t, err)
	for _, rec := range records {
		assert.Equal(t, StatusCompleted, rec.Status, "record %s", rec.ID)
	}

	count, err := fx.logs.CountLogs()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunOnceIsIdempotentAcrossScans(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")
	fx.dir.ok("PATCH /users/jdoe@example.com")
	fx.dir.ok("POST /users/jdoe@example.com/revokeSignInSessions")

	rec := testRecord("REC_once", time.Now().UTC().Add(-1*time.Minute))
	require.NoError(t, fx.store.CreateRecord(rec))

	now := time.Now().UTC()
	processed, err := fx.scanner.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// A second scan finds nothing: the record is terminal
	processed, err = fx.scanner.RunOnce(context.Background(), now.Add(1*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	count, err := fx.logs.CountLogs()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, fx.dir.callCount("PATCH /users/jdoe@example.com"))
}

func TestRunOnceOneBadRecordDoesNotAbortBatch(t *testing.T) {
	fx := newScannerFixture(t)
	fx.storeCredential(t, "SES_1", "tenant-1")
	fx.dir.ok("PATCH /users/jdoe@example.com")
	fx.dir.ok("POST /users/jdoe@example.com/revokeSignInSessions")

	now := time.Now().UTC()

	// First record's tenant has no credentials; second is fine
	bad := testRecord("REC_bad", now.Add(-2*time.Minute))
	bad.TenantID = "tenant-without-creds"
	bad.SessionID = ""
	require.NoError(t, fx.store.CreateRecord(bad))

	good := testRecord("REC_good", now.Add(-1*time.Minute))
	require.NoError(t, fx.store.CreateRecord(good))

	processed, err := fx.scanner.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	badAfter, err := fx.store.GetRecord(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, badAfter.Status)

	goodAfter, err := fx.store.GetRecord(good.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, goodAfter.Status)
}

func TestScannerStartStop(t *testing.T) {
	fx := newScannerFixture(t)

	fx.scanner.Start()
	fx.scanner.Stop()

	stats := fx.scanner.GetStats()
	assert.Equal(t, 5, stats["batch_size"])
	assert.Equal(t, 1*time.Minute, stats["interval"])
}
