package commands

import (
	"errors"
	"fmt"

	"rosteron/lib/restyutil"
	"rosteron/lib/scraper"
	"rosteron/lib/serviceutil"

	"github.com/spf13/cobra"
)

var saveLogsDir *string
var debugHttpDir *string

func init() {
	saveLogsDir = snapshotCmd.Flags().String(
		"save-logs", "",
		"Write every request & response of the session to this directory after logout.",
	)
	debugHttpDir = snapshotCmd.Flags().String(
		"debug-http", "",
		"Write raw http exchange dumps to this directory as they happen (wipes it first).",
	)
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [--save-logs <dir>] [--debug-http <dir>]",
	Short: "Log in, fetch the current roster and render it.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		ctx := cmd.Context()

		opts := scraper.SessionOptions{BaseUrl: config.BaseUrl}
		if *debugHttpDir != "" {
			output, err := restyutil.NewFilesystemOutput(*debugHttpDir)
			if err != nil {
				serviceutil.Fatal("failed to prepare debug-http directory", err)
			}
			opts.Debug = output
		}

		session, err := scraper.NewSession(opts)
		if err != nil {
			serviceutil.Fatal("failed to create session", err)
		}

		var snapshot scraper.Snapshot
		runErr := func() error {
			err := session.LogIn(ctx, config.Username, config.Password)
			if err != nil {
				return err
			}
			snapshot, err = session.GetRoster(ctx)
			return err
		}()
		logoutErr := session.LogOut(ctx)

		// saved after logout so the record covers the whole session
		if *saveLogsDir != "" {
			err := session.SaveLogs(*saveLogsDir)
			if err != nil {
				serviceutil.Fatal("failed to save session logs", err)
			}
		}

		if err := errors.Join(runErr, logoutErr); err != nil {
			serviceutil.Fatal("failed to fetch roster", err)
		}

		fmt.Println(snapshot.String())
		renderSnapshot(snapshot)
	},
}
