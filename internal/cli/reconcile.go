package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kangarko/pacan-analytics/internal/reconcile"
	"github.com/kangarko/pacan-analytics/internal/store"
)

func init() {
	rootCmd.AddCommand(newReconcileCmd())
}

func newReconcileCmd() *cobra.Command {
	var (
		ledgerPath string
		fromStr    string
		toStr      string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile purchases against the settlement ledger",
		Long: `Cross-check internal buy events against an external payment-settlement
CSV export. The CSV columns are:

  transaction_id,unit_price,exchange_rate,timestamp

Any purchase without a settlement entry, or entry without a purchase, is a
fatal mismatch and the command exits non-zero.

Example:
  pacan reconcile --ledger settlements.csv --from 2026-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow(fromStr, toStr)
			if err != nil {
				return err
			}

			ledger, err := loadLedger(ledgerPath)
			if err != nil {
				return err
			}

			log, _, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				events, err := s.Purchases(ctx, from, to)
				if err != nil {
					return fmt.Errorf("failed to load purchases: %w", err)
				}

				purchases, err := reconcile.PurchasesFromEvents(events)
				if err != nil {
					return err
				}

				report, err := reconcile.NewReconciler(log).Reconcile(purchases, ledger)
				if report != nil {
					printReport(report)
				}
				if err != nil {
					if errors.Is(err, reconcile.ErrLedgerMismatch) {
						return fmt.Errorf("reconciliation failed: %w", err)
					}
					return err
				}

				fmt.Println("All purchases settled.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ledgerPath, "ledger", "l", "", "settlement CSV export (required)")
	cmd.Flags().StringVar(&fromStr, "from", "", "window start, YYYY-MM-DD (default: all time)")
	cmd.Flags().StringVar(&toStr, "to", "", "window end, YYYY-MM-DD (default: now)")
	cmd.MarkFlagRequired("ledger")

	return cmd
}

func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Unix(0, 0)
	to := time.Now()

	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid --from date: %w", err)
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid --to date: %w", err)
		}
		to = parsed
	}

	return from, to, nil
}

func loadLedger(path string) ([]reconcile.LedgerEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)

	var (
		entries []reconcile.LedgerEntry
		line    int
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger CSV: %w", err)
		}
		line++

		// Skip the header row
		if line == 1 && record[0] == "transaction_id" {
			continue
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("ledger line %d: expected 4 columns, got %d", line, len(record))
		}

		unitPrice, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: invalid unit_price: %w", line, err)
		}
		rate, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: invalid exchange_rate: %w", line, err)
		}
		ts, err := strconv.ParseInt(record[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: invalid timestamp: %w", line, err)
		}

		entries = append(entries, reconcile.LedgerEntry{
			TransactionID: record[0],
			UnitPrice:     unitPrice,
			ExchangeRate:  rate,
			Timestamp:     time.Unix(ts, 0),
		})
	}

	return entries, nil
}

func printReport(report *reconcile.Report) {
	fmt.Printf("Internal total:  %10.2f EUR\n", report.TotalInternalEUR)
	fmt.Printf("External total:  %10.2f EUR\n", report.TotalExternalEUR)
	fmt.Printf("Matched:         %d\n", report.Matched)

	if len(report.MissingInExternal) > 0 {
		fmt.Printf("\nMissing in external ledger (%d):\n", len(report.MissingInExternal))
		for _, p := range report.MissingInExternal {
			fmt.Printf("  payment=%s order=%s user=%d %.2f %s\n",
				p.PaymentID, p.OrderID, p.UserID, p.Value, p.Currency)
		}
	}
	if len(report.MissingInInternal) > 0 {
		fmt.Printf("\nMissing in internal records (%d):\n", len(report.MissingInInternal))
		for _, e := range report.MissingInInternal {
			fmt.Printf("  transaction=%s %.2f (rate %.4f)\n",
				e.TransactionID, e.UnitPrice, e.ExchangeRate)
		}
	}
}
