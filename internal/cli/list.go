package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/funnel"
	"github.com/kangarko/pacan-analytics/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their funnel summaries.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		agg := funnel.NewAggregator(s, zap.NewNop())
		results, err := agg.ListWithStats(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with: pacan create <name> --variants \"control,challenger\"")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tACTIVE\tVARIANTS\tUSERS\tSIGN-UPS\tBUYS")

		for _, r := range results {
			exp := r.Experiment

			users, signUps, buys := "-", "-", "-"
			if r.Stats != nil {
				totalSignUps, totalBuys := 0, 0
				for _, c := range r.Stats.Conversions {
					totalSignUps += c.SignUps
					totalBuys += c.Buys
				}
				users = fmt.Sprintf("%d", r.Stats.TotalUsers)
				signUps = fmt.Sprintf("%d", totalSignUps)
				buys = fmt.Sprintf("%d", totalBuys)
			}

			fmt.Fprintf(w, "%s\t%v\t%d\t%s\t%s\t%s\n",
				exp.Name, exp.Active, len(exp.Variants), users, signUps, buys)
		}

		return w.Flush()
	})
}
