package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kangarko/pacan-analytics/internal/store"
)

func init() {
	webinarCmd := &cobra.Command{
		Use:   "webinar",
		Short: "Manage webinars",
	}
	webinarCmd.AddCommand(newWebinarAddCmd())
	rootCmd.AddCommand(webinarCmd)
}

func newWebinarAddCmd() *cobra.Command {
	var durationSeconds int64

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a webinar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if durationSeconds <= 0 {
				return fmt.Errorf("duration must be positive")
			}

			return withStore(func(s *store.SQLiteStore) error {
				w, err := s.CreateWebinar(context.Background(), args[0], durationSeconds)
				if err != nil {
					return fmt.Errorf("failed to create webinar: %w", err)
				}
				fmt.Printf("Created webinar %d '%s' (%ds)\n", w.ID, w.Name, w.DurationSeconds)
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&durationSeconds, "duration", "d", 3600, "duration in seconds")

	return cmd
}
