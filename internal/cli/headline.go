package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kangarko/pacan-analytics/internal/store"
)

func init() {
	headlineCmd := &cobra.Command{
		Use:   "headline",
		Short: "Manage headline variants",
	}
	headlineCmd.AddCommand(newHeadlineAddCmd(), newHeadlineListCmd(), newHeadlineOffCmd())
	rootCmd.AddCommand(headlineCmd)
}

func newHeadlineAddCmd() *cobra.Command {
	var title, subtitle string

	cmd := &cobra.Command{
		Use:   "add <slug>",
		Short: "Add a headline variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				h, err := s.CreateHeadline(context.Background(), args[0], title, subtitle)
				if err != nil {
					return fmt.Errorf("failed to create headline: %w", err)
				}
				fmt.Printf("Created headline %d '%s'\n", h.ID, h.Slug)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "headline title")
	cmd.Flags().StringVar(&subtitle, "subtitle", "", "headline subtitle")

	return cmd
}

func newHeadlineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active headline variants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				headlines, err := s.ActiveHeadlines(context.Background())
				if err != nil {
					return fmt.Errorf("failed to list headlines: %w", err)
				}

				if len(headlines) == 0 {
					fmt.Println("No active headlines; visitors see the control content.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tTITLE")
				for _, h := range headlines {
					fmt.Fprintf(w, "%d\t%s\t%s\n", h.ID, h.Slug, h.Title)
				}
				return w.Flush()
			})
		},
	}
}

func newHeadlineOffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "off <id>",
		Short: "Deactivate a headline variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid headline id: %w", err)
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.SetHeadlineActive(context.Background(), id, false); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("headline %d not found", id)
					}
					return fmt.Errorf("failed to deactivate headline: %w", err)
				}
				fmt.Printf("Deactivated headline %d\n", id)
				return nil
			})
		},
	}
}
