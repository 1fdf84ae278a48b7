package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/offramp/credentials"
	"github.com/teranos/offramp/db"
	"github.com/teranos/offramp/directory"
	"github.com/teranos/offramp/errors"
)

// ExecutedBy is recorded on records the scanner drives to a terminal state.
const ExecutedBy = "scheduler"

// Scanner periodically executes due lifecycle records.
//
// Each tick it fetches the batch of due records (oldest first) and runs the
// full pipeline for each one strictly sequentially: claim, resolve
// credentials, acquire a token, execute the configured actions, write exactly
// one execution log, and drive the record to a terminal status. One record's
// fatal error never aborts the batch, and no attempt is left unlogged.
type Scanner struct {
	store    *Store
	logs     *LogStore
	audit    *AuditStore
	resolver *credentials.Resolver
	tokens   *directory.TokenSource
	executor *Executor

	interval   time.Duration
	batchSize  int
	staleAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// ScannerConfig contains configuration for the due-record scanner
type ScannerConfig struct {
	Interval   time.Duration // How often to check for due records (default: 1 minute)
	BatchSize  int           // Max records processed per scan (default: 5)
	StaleAfter time.Duration // In-progress reap threshold (default: 1 hour)
}

// DefaultScannerConfig returns sensible defaults
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Interval:   1 * time.Minute,
		BatchSize:  5,
		StaleAfter: 1 * time.Hour,
	}
}

// NewScanner creates a due-record scanner.
func NewScanner(store *Store, logs *LogStore, audit *AuditStore, resolver *credentials.Resolver, tokens *directory.TokenSource, executor *Executor, cfg ScannerConfig, logger *zap.SugaredLogger) *Scanner {
	return NewScannerWithContext(context.Background(), store, logs, audit, resolver, tokens, executor, cfg, logger)
}

// NewScannerWithContext creates a scanner with a parent context
func NewScannerWithContext(ctx context.Context, store *Store, logs *LogStore, audit *AuditStore, resolver *credentials.Resolver, tokens *directory.TokenSource, executor *Executor, cfg ScannerConfig, logger *zap.SugaredLogger) *Scanner {
	scannerCtx, cancel := context.WithCancel(ctx)

	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 1 * time.Hour
	}

	return &Scanner{
		store:      store,
		logs:       logs,
		audit:      audit,
		resolver:   resolver,
		tokens:     tokens,
		executor:   executor,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		staleAfter: cfg.StaleAfter,
		ctx:        scannerCtx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start begins the scanner loop
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Lifecycle scanner started", "interval", s.interval, "batch_size", s.batchSize)
}

// Stop gracefully stops the scanner
func (s *Scanner) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Lifecycle scanner stopped")
}

// run is the main scanner loop
func (s *Scanner) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tickTime := <-ticker.C:
			s.mu.Lock()
			s.lastTickAt = tickTime
			s.ticksSinceStart++
			s.mu.Unlock()

			s.logNextRecordInfo(tickTime)

			if _, err := s.RunOnce(s.ctx, tickTime.UTC()); err != nil {
				// The connection closing under us means shutdown, not a fault
				if db.IsDatabaseClosed(err) {
					return
				}
				// Don't spam logs - scan errors surface at warn level
				s.logger.Warnw("Scan error", "error", err, "tick", s.ticksSinceStart)
			}
		}
	}
}

// logNextRecordInfo logs time until the next scheduled record
func (s *Scanner) logNextRecordInfo(now time.Time) {
	next, err := s.store.NextScheduled()
	if err != nil {
		s.logger.Warnw("Failed to get next scheduled record", "error", err)
		return
	}

	if next == nil {
		s.logger.Debugw("No lifecycle changes scheduled")
		return
	}

	timeUntil := next.ScheduledAt.Sub(now)
	if timeUntil < 0 {
		timeUntil = 0
	}

	s.logger.Debugw("Next scheduled lifecycle change",
		"record_id", next.ID,
		"user", next.Target().Describe(),
		"in", timeUntil.Round(time.Second))
}

// RunOnce performs one scan: reaps stale in-progress records, then processes
// the due batch sequentially. Returns the number of records processed.
func (s *Scanner) RunOnce(ctx context.Context, now time.Time) (int, error) {
	if reaped, err := s.store.ReapStale(now.Add(-s.staleAfter)); err != nil {
		s.logger.Warnw("Failed to reap stale records", "error", err)
	} else if reaped > 0 {
		s.logger.Warnw("Reaped stale in-progress records", "count", reaped)
		if err := s.audit.Append(ExecutedBy, EventRecordReaped,
			fmt.Sprintf("reaped %d record(s) stuck in-progress past the deadline", reaped), ""); err != nil {
			s.logger.Warnw("Failed to write reap audit entry", "error", err)
		}
	}

	records, err := s.store.ListDueContext(ctx, now, s.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list due records")
	}

	if len(records) == 0 {
		return 0, nil
	}

	processed := 0
	for _, rec := range records {
		// Check for context cancellation before processing next record
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		if err := s.processRecord(ctx, rec); err != nil {
			s.logger.Errorw("Failed to process due record",
				"record_id", rec.ID,
				"error", err)
			// Continue with other records even if one fails
			continue
		}
		processed++
	}

	return processed, nil
}

// processRecord runs the full pipeline for one record. The execution log is
// written on every path: success, partial failure, and pre-action fatal error.
func (s *Scanner) processRecord(ctx context.Context, rec *Record) error {
	claimed, err := s.store.Claim(rec.ID)
	if err != nil {
		return errors.Wrap(err, "failed to claim record")
	}
	if !claimed {
		// Another scan already took this record out of scheduled
		s.logger.Debugw("Skipping record, claim lost", "record_id", rec.ID)
		return nil
	}

	startedAt := time.Now().UTC()
	s.logger.Infow("Executing lifecycle change",
		"record_id", rec.ID,
		"tenant_id", rec.TenantID,
		"user", rec.Target().Describe(),
		"scheduled_at", rec.ScheduledAt.Format(time.RFC3339))

	outcomes, hasFailures, fatalErr := s.execute(ctx, rec)
	completedAt := time.Now().UTC()

	log := BuildLog(rec.ID, startedAt, completedAt, outcomes, fatalErr)
	if err := s.logs.CreateLog(log); err != nil {
		// The attempt still reaches a terminal status; losing the log is
		// an error worth surfacing loudly, not a reason to stop.
		s.logger.Errorw("Failed to write execution log",
			"record_id", rec.ID,
			"log_id", log.ID,
			"error", err)
	}

	switch {
	case fatalErr != nil:
		if err := s.store.Fail(rec.ID, ExecutedBy, completedAt, fatalErr.Error()); err != nil {
			return errors.Wrap(err, "failed to mark record failed")
		}
		s.logger.Errorw("Lifecycle change FAILED before actions ran",
			"record_id", rec.ID,
			"log_id", log.ID,
			"error", fatalErr)
		s.appendAudit(EventExecutionFailed, rec,
			fmt.Sprintf("execution aborted before actions ran: %s", fatalErr.Error()))

	case hasFailures:
		errMsg := firstErrorMessage(outcomes)
		if err := s.store.Fail(rec.ID, ExecutedBy, completedAt, errMsg); err != nil {
			return errors.Wrap(err, "failed to mark record failed")
		}
		s.logger.Warnw("Lifecycle change completed with failures",
			"record_id", rec.ID,
			"log_id", log.ID,
			"succeeded", log.SuccessfulActions,
			"failed", log.FailedActions,
			"skipped", log.SkippedActions)
		s.appendAudit(EventExecutionFailed, rec,
			fmt.Sprintf("%d of %d actions failed for %s: %s",
				log.FailedActions, log.TotalActions, rec.Target().Describe(), errMsg))

	default:
		if err := s.store.Complete(rec.ID, ExecutedBy, completedAt); err != nil {
			return errors.Wrap(err, "failed to mark record completed")
		}
		s.logger.Infow("Lifecycle change OK",
			"record_id", rec.ID,
			"log_id", log.ID,
			"succeeded", log.SuccessfulActions,
			"skipped", log.SkippedActions,
			"duration_ms", completedAt.Sub(startedAt).Milliseconds())
		s.appendAudit(EventExecutionCompleted, rec,
			fmt.Sprintf("%d of %d actions succeeded for %s",
				log.SuccessfulActions, log.TotalActions, rec.Target().Describe()))
	}

	return nil
}

// execute resolves credentials, acquires a token, and runs the action
// pipeline. A credential or token failure is fatal: zero outcomes, the
// record fails with the error recorded.
func (s *Scanner) execute(ctx context.Context, rec *Record) (outcomes []ActionOutcome, hasFailures bool, fatalErr error) {
	creds, err := s.resolver.Resolve(rec.TenantID, rec.SessionID)
	if err != nil {
		return nil, false, errors.Wrap(err, "credential resolution failed")
	}

	token, err := s.tokens.Token(ctx, creds.AppID, creds.TenantID, creds.ClientSecret)
	if err != nil {
		return nil, false, err
	}

	outcomes, hasFailures = s.executor.Run(ctx, token, rec)
	return outcomes, hasFailures, nil
}

func (s *Scanner) appendAudit(event string, rec *Record, detail string) {
	if err := s.audit.Append(ExecutedBy, event, detail, rec.ID); err != nil {
		s.logger.Warnw("Failed to write audit entry",
			"record_id", rec.ID,
			"event", event,
			"error", err)
	}
}

// GetStats returns scanner statistics
func (s *Scanner) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      s.lastTickAt,
		"ticks_since_start": s.ticksSinceStart,
		"interval":          s.interval,
		"batch_size":        s.batchSize,
	}
}

func firstErrorMessage(outcomes []ActionOutcome) string {
	for _, outcome := range outcomes {
		if outcome.Status == OutcomeError {
			return outcome.Message
		}
	}
	return "one or more actions failed"
}
