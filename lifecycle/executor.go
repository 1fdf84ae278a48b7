package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/offramp/directory"
)

// Executor runs a record's configured actions against the directory API.
//
// Policy is fail-open: an error in one action yields an error outcome and
// does NOT prevent subsequent actions from attempting. Leaving later
// remediation steps undone because an earlier one failed is worse than
// partial completion.
type Executor struct {
	client *directory.Client
	logger *zap.SugaredLogger
}

// NewExecutor creates an action executor over the directory client.
func NewExecutor(client *directory.Client, logger *zap.SugaredLogger) *Executor {
	return &Executor{client: client, logger: logger}
}

// Run executes the record's enabled actions in the fixed order, returning the
// ordered outcomes and whether any of them failed. Every configured action
// produces exactly one outcome.
func (e *Executor) Run(ctx context.Context, token string, rec *Record) ([]ActionOutcome, bool) {
	env := &Env{
		Client: e.client,
		Token:  token,
		Target: rec.Target(),
	}

	actions := ActionsFor(rec)
	outcomes := make([]ActionOutcome, 0, len(actions))
	hasFailures := false

	for _, action := range actions {
		outcome := action.Execute(ctx, env)
		outcomes = append(outcomes, outcome)

		switch outcome.Status {
		case OutcomeError:
			hasFailures = true
			e.logger.Warnw("Action failed",
				"record_id", rec.ID,
				"action", outcome.Action,
				"message", outcome.Message,
				"details", outcome.Details)
		default:
			e.logger.Debugw("Action finished",
				"record_id", rec.ID,
				"action", outcome.Action,
				"status", outcome.Status)
		}
	}

	return outcomes, hasFailures
}
