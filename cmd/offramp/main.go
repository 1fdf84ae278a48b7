package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/offramp/cmd/offramp/commands"
	"github.com/teranos/offramp/logger"
)

var rootCmd = &cobra.Command{
	Use:   "offramp",
	Short: "Offramp - scheduled employee-lifecycle automation",
	Long: `Offramp - scheduled employee-lifecycle automation for directory accounts.

Offramp schedules onboarding/offboarding changes against an external identity
directory, executes them unattended, and keeps a complete audit trail of every
execution attempt.

Available commands:
  scheduler   - Run or trigger the due-record scanner
  records     - Schedule and inspect lifecycle records
  credentials - Store encrypted tenant directory credentials
  db          - Manage database operations
  version     - Show build information

Examples:
  offramp scheduler start                # Run the scanner daemon
  offramp scheduler scan                 # One-shot scan of due records
  offramp records ls                     # List lifecycle records
  offramp db migrate                     # Apply schema migrations`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit JSON structured logs")

	rootCmd.AddCommand(commands.SchedulerCmd)
	rootCmd.AddCommand(commands.RecordsCmd)
	rootCmd.AddCommand(commands.CredentialsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
