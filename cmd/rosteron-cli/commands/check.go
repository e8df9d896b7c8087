package commands

import (
	"errors"
	"log/slog"
	"os"

	"rosteron/lib/scraper"
	"rosteron/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the configured credentials are accepted by the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		ctx := cmd.Context()

		err := scraper.WithSession(
			ctx,
			scraper.SessionOptions{BaseUrl: config.BaseUrl},
			func(s *scraper.Session) error {
				return s.LogIn(ctx, config.Username, config.Password)
			},
		)

		var badCreds *scraper.BadCredentialsError
		if errors.As(err, &badCreds) {
			slog.Error("credentials rejected", "username", badCreds.Username)
			os.Exit(1)
		}
		if err != nil {
			serviceutil.Fatal("failed to check credentials", err)
		}

		slog.Info("credentials accepted", "username", config.Username)
	},
}
