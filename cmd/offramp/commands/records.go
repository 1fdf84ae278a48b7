package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/offramp/lifecycle"
)

// RecordsCmd schedules and inspects lifecycle records
var RecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Schedule and inspect lifecycle records",
}

var (
	scheduleTenant    string
	scheduleSession   string
	scheduleUser      string
	scheduleEmail     string
	scheduleDate      string
	scheduleTime      string
	scheduleTimezone  string
	scheduleActions   []string
	scheduleForwardTo string
)

var recordsScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a lifecycle change",
	Long: `Schedule a lifecycle change for a directory user.

The scheduled time is given as a local date, clock time, and IANA timezone;
it is stored as the equivalent UTC instant.

Actions: disableAccount, revokeAccess, removeFromGroups, convertMailbox,
backupData, retireDevices.

Example:
  offramp records schedule --tenant t1 --session s1 \
    --user jdoe@example.com --date 2026-09-30 --time 17:30 \
    --timezone Europe/Berlin --action disableAccount --action revokeAccess`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		scheduledAt, err := lifecycle.ResolveScheduledAt(scheduleDate, scheduleTime, scheduleTimezone)
		if err != nil {
			return err
		}

		actions, err := parseActionSet(scheduleActions, scheduleForwardTo)
		if err != nil {
			return err
		}

		rec := &lifecycle.Record{
			ID:                lifecycle.NewRecordID(),
			TenantID:          scheduleTenant,
			SessionID:         scheduleSession,
			UserPrincipalName: scheduleUser,
			UserEmail:         scheduleEmail,
			ScheduledAt:       scheduledAt,
			Timezone:          scheduleTimezone,
			Status:            lifecycle.StatusScheduled,
			Actions:           actions,
		}

		store := lifecycle.NewStore(conn)
		if err := store.CreateRecord(rec); err != nil {
			return err
		}

		audit := lifecycle.NewAuditStore(conn)
		if err := audit.Append("cli", lifecycle.EventRecordScheduled,
			fmt.Sprintf("scheduled lifecycle change for %s at %s",
				rec.Target().Describe(), scheduledAt.Format(time.RFC3339)), rec.ID); err != nil {
			return err
		}

		fmt.Printf("Scheduled %s for %s (UTC)\n", rec.ID, scheduledAt.Format(time.RFC3339))
		return nil
	},
}

var recordsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List lifecycle records",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		records, err := lifecycle.NewStore(conn).ListRecords(50)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No lifecycle records")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  %-11s  %s  %s\n",
				rec.ID, rec.Status,
				rec.ScheduledAt.Format(time.RFC3339),
				rec.Target().Describe())
		}
		return nil
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show a record and its execution logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		rec, err := lifecycle.NewStore(conn).GetRecord(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Record:    %s\n", rec.ID)
		fmt.Printf("Tenant:    %s\n", rec.TenantID)
		fmt.Printf("User:      %s\n", rec.Target().Describe())
		fmt.Printf("Scheduled: %s (%s)\n", rec.ScheduledAt.Format(time.RFC3339), rec.Timezone)
		fmt.Printf("Status:    %s\n", rec.Status)
		if rec.ExecutedAt != nil {
			fmt.Printf("Executed:  %s by %s\n", rec.ExecutedAt.Format(time.RFC3339), rec.ExecutedBy)
		}
		if rec.Error != "" {
			fmt.Printf("Error:     %s\n", rec.Error)
		}

		logs, err := lifecycle.NewLogStore(conn).ListLogsForRecord(rec.ID)
		if err != nil {
			return err
		}

		for _, log := range logs {
			fmt.Printf("\nExecution %s (%s): %d total, %d ok, %d failed, %d skipped\n",
				log.ID, log.StartedAt.Format(time.RFC3339),
				log.TotalActions, log.SuccessfulActions, log.FailedActions, log.SkippedActions)
			if log.ErrorMessage != "" {
				fmt.Printf("  fatal: %s\n", log.ErrorMessage)
			}
			for _, outcome := range log.Outcomes {
				fmt.Printf("  [%-7s] %-17s %s\n", outcome.Status, outcome.Action, outcome.Message)
			}
		}
		return nil
	},
}

func parseActionSet(names []string, forwardTo string) (lifecycle.ActionSet, error) {
	set := lifecycle.ActionSet{ForwardingAddress: forwardTo}
	for _, name := range names {
		switch name {
		case lifecycle.ActionDisableAccount:
			set.DisableAccount = true
		case lifecycle.ActionRevokeAccess:
			set.RevokeAccess = true
		case lifecycle.ActionRemoveFromGroups:
			set.RemoveFromGroups = true
		case lifecycle.ActionConvertMailbox:
			set.ConvertMailbox = true
		case lifecycle.ActionBackupData:
			set.BackupData = true
		case lifecycle.ActionRetireDevices:
			set.RetireDevices = true
		default:
			return set, fmt.Errorf("unknown action %q", name)
		}
	}
	return set, nil
}

func init() {
	recordsScheduleCmd.Flags().StringVar(&scheduleTenant, "tenant", "", "Tenant id (required)")
	recordsScheduleCmd.Flags().StringVar(&scheduleSession, "session", "", "Admin session id the change is scheduled from")
	recordsScheduleCmd.Flags().StringVar(&scheduleUser, "user", "", "User principal name")
	recordsScheduleCmd.Flags().StringVar(&scheduleEmail, "email", "", "User email")
	recordsScheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "Local date, e.g. 2026-09-30 (required)")
	recordsScheduleCmd.Flags().StringVar(&scheduleTime, "time", "17:00", "Local clock time, e.g. 17:30")
	recordsScheduleCmd.Flags().StringVar(&scheduleTimezone, "timezone", "UTC", "IANA timezone, e.g. Europe/Berlin")
	recordsScheduleCmd.Flags().StringArrayVar(&scheduleActions, "action", nil, "Action to enable (repeatable)")
	recordsScheduleCmd.Flags().StringVar(&scheduleForwardTo, "forward-to", "", "Mailbox forwarding address")
	recordsScheduleCmd.MarkFlagRequired("tenant")
	recordsScheduleCmd.MarkFlagRequired("date")

	RecordsCmd.AddCommand(recordsScheduleCmd)
	RecordsCmd.AddCommand(recordsLsCmd)
	RecordsCmd.AddCommand(recordsShowCmd)
}
