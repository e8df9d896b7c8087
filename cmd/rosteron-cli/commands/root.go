package commands

import (
	"context"
	"fmt"
	"os"

	"rosteron/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "rosteron-cli",
	Short: "rosteron-cli reads rosters out of a RosterOn Mobile portal.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false,
		"Enable debug logging.",
	)
	rootCmd.PersistentFlags().StringVar(
		&baseUrlFlag, "url", "",
		"Base url of the Mobile portal (overrides config.json5).",
	)
	rootCmd.PersistentFlags().StringVar(
		&usernameFlag, "username", "",
		"RosterOn user name (overrides config.json5).",
	)
	rootCmd.PersistentFlags().StringVar(
		&passwordFlag, "password", "",
		"RosterOn password (overrides config.json5).",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
