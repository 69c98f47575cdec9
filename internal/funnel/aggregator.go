// Package funnel computes per-variant conversion funnels for experiments
// from the raw event log.
package funnel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// Store is the slice of the datastore the aggregator reads. All reads are a
// snapshot; the aggregator never writes.
type Store interface {
	ListExperiments(ctx context.Context) ([]*store.Experiment, error)
	VisitorsWithExperiment(ctx context.Context, experiment string) ([]store.VariantMember, error)
	ConversionEvents(ctx context.Context, userIDs []int64, from, to time.Time) ([]*store.Event, error)
}

// VariantConversions are the funnel counters for one variant. SignUps is
// deduplicated per visitor; Buys counts every qualifying purchase.
type VariantConversions struct {
	SignUps int `json:"sign_ups"`
	Buys    int `json:"buys"`
}

// Stats is the computed funnel for one experiment.
type Stats struct {
	TotalUsers   int                           `json:"total_users"`
	Distribution map[string]int                `json:"variant_distribution"`
	Conversions  map[string]VariantConversions `json:"conversions"`
}

// ExperimentStats pairs an experiment with its funnel. Stats is nil when the
// computation for that experiment failed and was degraded.
type ExperimentStats struct {
	Experiment *store.Experiment `json:"experiment"`
	Stats      *Stats            `json:"stats,omitempty"`
}

type Aggregator struct {
	store  Store
	logger *zap.Logger
}

func NewAggregator(s Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: s, logger: logger}
}

// ComputeStats computes the funnel for one experiment over its effective
// window [start_date, end-of-day(end_date or now)].
func (a *Aggregator) ComputeStats(ctx context.Context, exp *store.Experiment, now time.Time) (*Stats, error) {
	members, err := a.store.VisitorsWithExperiment(ctx, exp.Name)
	if err != nil {
		return nil, err
	}

	variantByUser := make(map[int64]string, len(members))
	distribution := make(map[string]int)
	userIDs := make([]int64, 0, len(members))

	for _, m := range members {
		if m.Variant == "" {
			continue
		}
		variantByUser[m.UserID] = m.Variant
		distribution[m.Variant]++
		userIDs = append(userIDs, m.UserID)
	}

	stats := &Stats{
		TotalUsers:   len(userIDs),
		Distribution: distribution,
		Conversions:  make(map[string]VariantConversions),
	}
	if len(userIDs) == 0 {
		return stats, nil
	}

	from, to := Window(exp, now)

	events, err := a.store.ConversionEvents(ctx, userIDs, from, to)
	if err != nil {
		return nil, err
	}

	stats.Conversions = foldConversions(events, variantByUser)

	return stats, nil
}

// ListWithStats returns every experiment with its funnel. One experiment's
// failing computation degrades to stats-omitted; a failing experiment list
// is fatal.
func (a *Aggregator) ListWithStats(ctx context.Context, now time.Time) ([]ExperimentStats, error) {
	experiments, err := a.store.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ExperimentStats, 0, len(experiments))
	for _, exp := range experiments {
		item := ExperimentStats{Experiment: exp}

		stats, err := a.ComputeStats(ctx, exp, now)
		if err != nil {
			a.logger.Error("failed to compute experiment stats, omitting",
				zap.String("experiment", exp.Name),
				zap.Error(err),
			)
		} else {
			item.Stats = stats
		}

		results = append(results, item)
	}

	return results, nil
}

// Window returns the experiment's effective event window. The end is pushed
// to the last instant of its calendar day so a same-day cutoff still counts
// the whole day.
func Window(exp *store.Experiment, now time.Time) (from, to time.Time) {
	from = exp.StartDate

	end := now
	if exp.EndDate != nil {
		end = *exp.EndDate
	}
	to = endOfDay(end)

	return from, to
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, t.Location())
}

// foldConversions walks the chronologically sorted events once and produces
// the per-variant counters. sign_up counts once per visitor (first event in
// the window wins, the input order is stable); buy counts every occurrence.
// Events whose visitor has no variant are dropped.
func foldConversions(events []*store.Event, variantByUser map[int64]string) map[string]VariantConversions {
	conversions := make(map[string]VariantConversions)
	signedUp := make(map[int64]bool)

	for _, e := range events {
		variant, ok := variantByUser[e.UserID]
		if !ok {
			continue
		}

		c := conversions[variant]
		switch e.Type {
		case store.EventSignUp:
			if !signedUp[e.UserID] {
				signedUp[e.UserID] = true
				c.SignUps++
			}
		case store.EventBuy:
			c.Buys++
		default:
			continue
		}
		conversions[variant] = c
	}

	return conversions
}
