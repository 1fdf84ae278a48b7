package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/offramp/logger"
)

// SchedulerCmd manages the due-record scanner
var SchedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run or trigger the due-record scanner",
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scanner daemon until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		scanner, err := buildScanner(conn, cfg)
		if err != nil {
			return err
		}

		scanner.Start()
		defer scanner.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Infow("Shutting down", "signal", sig.String())

		return nil
	},
}

var schedulerScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan of due records and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		scanner, err := buildScanner(conn, cfg)
		if err != nil {
			return err
		}

		processed, err := scanner.RunOnce(context.Background(), time.Now().UTC())
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d due record(s)\n", processed)
		return nil
	},
}

func init() {
	SchedulerCmd.AddCommand(schedulerStartCmd)
	SchedulerCmd.AddCommand(schedulerScanCmd)
}
