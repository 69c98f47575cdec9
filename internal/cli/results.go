package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/funnel"
	"github.com/kangarko/pacan-analytics/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show detailed results for an experiment",
	Long:  `Show the conversion funnel, per-variant rates and confidence intervals.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", name)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		agg := funnel.NewAggregator(s, zap.NewNop())
		stats, err := agg.ComputeStats(ctx, exp, time.Now())
		if err != nil {
			return fmt.Errorf("failed to compute stats: %w", err)
		}

		result := funnel.Analyze(exp, stats)

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("ACTIVE: %v\n", exp.Active)
		fmt.Printf("STARTED: %s\n", exp.StartDate.Format("2006-01-02"))
		if exp.EndDate != nil {
			fmt.Printf("ENDED: %s\n", exp.EndDate.Format("2006-01-02"))
		}
		fmt.Printf("TOTAL USERS: %d\n", stats.TotalUsers)
		fmt.Println()

		fmt.Println("VARIANT           USERS    SIGN-UPS  BUYS   RATE     95% CI")
		fmt.Println(strings.Repeat("─", 66))

		for _, v := range result.Variants {
			indicator := ""
			if v.Index == result.LeadingVariant && len(result.Variants) > 1 {
				indicator = " ← LEADING"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Users == 0 {
				ciStr = "N/A"
			}

			name := v.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-7d  %-8d  %-5d  %-7s  %s%s\n",
				name, v.Users, v.SignUps, v.Buys, formatPercent(v.Rate), ciStr, indicator)
		}

		fmt.Println()

		if len(result.Variants) > 1 {
			leadingName := result.Variants[result.LeadingVariant].Name
			confPct := result.ConfidenceLevel * 100

			if result.Confident {
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, leadingName)
			} else if confPct >= 90 {
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" leads (not yet significant)\n", confPct, leadingName)
			} else {
				fmt.Println("Statistical significance: Not enough data to determine a winner")
			}
		}

		return nil
	})
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
