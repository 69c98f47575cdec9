package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kangarko/pacan-analytics/internal/funnel"
	"github.com/kangarko/pacan-analytics/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export an experiment's conversion events",
	Long: `Export the raw conversion events for an experiment's members in CSV or
JSON format.

Examples:
  pacan export hero --format csv > hero-events.csv
  pacan export hero --format json > hero-events.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	name := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", name)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		members, err := s.VisitorsWithExperiment(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get experiment members: %w", err)
		}

		variantByUser := make(map[int64]string, len(members))
		userIDs := make([]int64, 0, len(members))
		for _, m := range members {
			variantByUser[m.UserID] = m.Variant
			userIDs = append(userIDs, m.UserID)
		}

		from, to := funnel.Window(exp, time.Now())
		events, err := s.ConversionEvents(ctx, userIDs, from, to)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(events, variantByUser)
		}
		return exportJSON(events, variantByUser)
	})
}

func exportCSV(events []*store.Event, variantByUser map[int64]string) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "user_id", "type", "variant", "value", "currency"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.Date.Unix(), 10),
			strconv.FormatInt(e.UserID, 10),
			string(e.Type),
			variantByUser[e.UserID],
			strconv.FormatFloat(e.Value, 'f', 2, 64),
			e.Currency,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Timestamp int64   `json:"timestamp"`
	UserID    int64   `json:"user_id"`
	Type      string  `json:"type"`
	Variant   string  `json:"variant"`
	Value     float64 `json:"value,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

func exportJSON(events []*store.Event, variantByUser map[int64]string) error {
	export := jsonExport{Events: make([]jsonEvent, len(events))}

	for i, e := range events {
		export.Events[i] = jsonEvent{
			Timestamp: e.Date.Unix(),
			UserID:    e.UserID,
			Type:      string(e.Type),
			Variant:   variantByUser[e.UserID],
			Value:     e.Value,
			Currency:  e.Currency,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
