package commands

import (
	"log/slog"
	"time"

	"rosteron/lib/scraper"
	"rosteron/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

var watchInterval *time.Duration

func init() {
	watchInterval = watchCmd.Flags().Duration(
		"interval", 15*time.Minute,
		"How often to poll the roster.",
	)
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--interval <duration>]",
	Short: "Poll the roster periodically and render it whenever it changes.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		ctx := cmd.Context()

		telemetry.InstrumentPerfStats(ctx)
		slog.Info("watching roster", "interval", watchInterval.String())

		var last []scraper.Item
		poll := func() {
			err := scraper.WithSession(
				ctx,
				scraper.SessionOptions{BaseUrl: config.BaseUrl},
				func(s *scraper.Session) error {
					err := s.LogIn(ctx, config.Username, config.Password)
					if err != nil {
						return err
					}
					snapshot, err := s.GetRoster(ctx)
					if err != nil {
						return err
					}

					slog.Info(
						"roster fetched",
						"time", snapshot.Time,
						"items", snapshot.Len(),
					)
					if last == nil || !cmp.Equal(last, snapshot.Items) {
						renderSnapshot(snapshot)
						last = snapshot.Items
					}
					return nil
				},
			)
			if err != nil {
				slog.Error("roster poll failed", "err", err)
			}
		}

		poll()
		ticker := time.NewTicker(*watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				poll()
			case <-ctx.Done():
				slog.Info("shutting down")
				return
			}
		}
	},
}
