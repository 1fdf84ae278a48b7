package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/teranos/offramp/directory"
)

// Action names, as stored on outcomes and shown in reports.
const (
	ActionDisableAccount   = "disableAccount"
	ActionRevokeAccess     = "revokeAccess"
	ActionRemoveFromGroups = "removeFromGroups"
	ActionConvertMailbox   = "convertMailbox"
	ActionBackupData       = "backupData"
	ActionRetireDevices    = "retireDevices"
)

// Env carries what an action needs to run: the directory client, a bearer
// token, and the target user.
type Env struct {
	Client *directory.Client
	Token  string
	Target directory.Target
}

// Action is one configured step of an execution attempt. Execute always
// returns exactly one outcome; failures are captured in the outcome, never
// propagated, so a failing action cannot abort the pipeline.
type Action interface {
	Name() string
	Execute(ctx context.Context, env *Env) ActionOutcome
}

// ActionsFor returns the record's enabled actions in the fixed execution
// order: disable account, revoke sessions, remove group memberships, then the
// stubbed mailbox/backup/device steps.
func ActionsFor(rec *Record) []Action {
	var actions []Action
	set := rec.Actions

	if set.DisableAccount {
		actions = append(actions, disableAccountAction{})
	}
	if set.RevokeAccess {
		actions = append(actions, revokeAccessAction{})
	}
	if set.RemoveFromGroups {
		actions = append(actions, removeFromGroupsAction{})
	}
	if set.ConvertMailbox {
		actions = append(actions, convertMailboxAction{forwardingAddress: set.ForwardingAddress})
	}
	if set.BackupData {
		actions = append(actions, backupDataAction{})
	}
	if set.RetireDevices {
		actions = append(actions, retireDevicesAction{})
	}

	return actions
}

func successOutcome(action, message string) ActionOutcome {
	return ActionOutcome{
		Action:     action,
		Status:     OutcomeSuccess,
		Message:    message,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func errorOutcome(action string, err error) ActionOutcome {
	outcome := ActionOutcome{
		Action:     action,
		Status:     OutcomeError,
		Message:    err.Error(),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if apiErr, ok := directory.IsAPIError(err); ok {
		outcome.Message = apiErr.Message
		outcome.Details = fmt.Sprintf("status=%d code=%s", apiErr.StatusCode, apiErr.Code)
	}
	return outcome
}

func warningOutcome(action, message string) ActionOutcome {
	return ActionOutcome{
		Action:     action,
		Status:     OutcomeWarning,
		Message:    message,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func skippedOutcome(action, message string) ActionOutcome {
	return ActionOutcome{
		Action:     action,
		Status:     OutcomeSkipped,
		Message:    message,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

type disableAccountAction struct{}

func (disableAccountAction) Name() string { return ActionDisableAccount }

func (disableAccountAction) Execute(ctx context.Context, env *Env) ActionOutcome {
	if err := env.Client.DisableUser(ctx, env.Token, env.Target); err != nil {
		return errorOutcome(ActionDisableAccount, err)
	}
	return successOutcome(ActionDisableAccount,
		fmt.Sprintf("account disabled for %s", env.Target.Describe()))
}

type revokeAccessAction struct{}

func (revokeAccessAction) Name() string { return ActionRevokeAccess }

func (revokeAccessAction) Execute(ctx context.Context, env *Env) ActionOutcome {
	if err := env.Client.RevokeSessions(ctx, env.Token, env.Target); err != nil {
		return errorOutcome(ActionRevokeAccess, err)
	}
	return successOutcome(ActionRevokeAccess,
		fmt.Sprintf("active sign-in sessions revoked for %s", env.Target.Describe()))
}

// removeFromGroupsAction is two steps: resolve the durable object id (the
// record may only carry a principal name or email), then enumerate and remove
// each membership, aggregating counts into a single outcome.
type removeFromGroupsAction struct{}

func (removeFromGroupsAction) Name() string { return ActionRemoveFromGroups }

func (removeFromGroupsAction) Execute(ctx context.Context, env *Env) ActionOutcome {
	objectID, err := env.Client.ResolveObjectID(ctx, env.Token, env.Target)
	if err != nil {
		return errorOutcome(ActionRemoveFromGroups, err)
	}

	groups, err := env.Client.ListMemberships(ctx, env.Token, objectID)
	if err != nil {
		return errorOutcome(ActionRemoveFromGroups, err)
	}

	if len(groups) == 0 {
		return successOutcome(ActionRemoveFromGroups,
			fmt.Sprintf("no group memberships found for %s", env.Target.Describe()))
	}

	removed, failed := 0, 0
	var firstErr error
	for _, group := range groups {
		if err := env.Client.RemoveFromGroup(ctx, env.Token, group.ID, objectID); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	message := fmt.Sprintf("removed from %d of %d groups", removed, len(groups))
	if failed > 0 {
		outcome := errorOutcome(ActionRemoveFromGroups, firstErr)
		outcome.Message = fmt.Sprintf("%s (%d removals failed: %s)", message, failed, firstErr.Error())
		return outcome
	}

	return successOutcome(ActionRemoveFromGroups, message)
}

// convertMailboxAction has no direct directory API equivalent; it records a
// warning so the operator knows the step still needs a mail-service run.
type convertMailboxAction struct {
	forwardingAddress string
}

func (convertMailboxAction) Name() string { return ActionConvertMailbox }

func (a convertMailboxAction) Execute(ctx context.Context, env *Env) ActionOutcome {
	message := "mailbox conversion requires a mail-service connection and was not performed"
	if a.forwardingAddress != "" {
		message = fmt.Sprintf("%s; configured forwarding address: %s", message, a.forwardingAddress)
	}
	return warningOutcome(ActionConvertMailbox, message)
}

type backupDataAction struct{}

func (backupDataAction) Name() string { return ActionBackupData }

func (backupDataAction) Execute(ctx context.Context, env *Env) ActionOutcome {
	return skippedOutcome(ActionBackupData,
		"data backup is not supported by the directory API; skipped")
}

type retireDevicesAction struct{}

func (retireDevicesAction) Name() string { return ActionRetireDevices }

func (retireDevicesAction) Execute(ctx context.Context, env *Env) ActionOutcome {
	return warningOutcome(ActionRetireDevices,
		"device retirement requires a device-management connection and was not performed")
}
