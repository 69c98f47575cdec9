package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/kangarko/pacan-analytics/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var variants string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new A/B experiment with the specified name and variants.
Without --variants the command prompts for them.

Examples:
  pacan create checkout-flow --variants "control,one-page"
  pacan create hero --variants "A,B,C"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if variants == "" {
				var err error
				variants, err = promptVariants()
				if err != nil {
					return err
				}
			}

			variantList := strings.Split(variants, ",")
			for i := range variantList {
				variantList[i] = strings.TrimSpace(variantList[i])
			}
			if len(variantList) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"control,challenger\"")
			}

			return withStore(func(s *store.SQLiteStore) error {
				exp, err := s.CreateExperiment(context.Background(), name, variantList, time.Now())
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' with %d variants:\n", exp.Name, len(exp.Variants))
				for i, v := range exp.Variants {
					fmt.Printf("  %d: %s\n", i, v)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variant names")

	return cmd
}

func promptVariants() (string, error) {
	prompt := promptui.Prompt{
		Label: "Variants (comma-separated, at least 2)",
		Validate: func(input string) error {
			if len(strings.Split(input, ",")) < 2 {
				return fmt.Errorf("need at least 2 comma-separated variants")
			}
			return nil
		},
	}

	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}

	return result, nil
}
