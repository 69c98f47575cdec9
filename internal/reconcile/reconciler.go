// Package reconcile cross-checks internal purchase records against an
// external payment-settlement ledger with currency normalization.
package reconcile

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// ErrLedgerMismatch reports unmatched purchases or ledger entries. Untracked
// revenue aborts the batch; the report is still populated so the operator
// can see what went missing.
var ErrLedgerMismatch = errors.New("ledger reconciliation mismatch")

// driftTolerance is one unit of minor currency. Provider rounding differs,
// so drift inside this band is expected.
const driftTolerance = 0.01

// Purchase is an internal buy record. PaymentID is the primary processor's
// id; OrderID is the secondary processor's order id. A ledger entry may
// match on either.
type Purchase struct {
	UserID    int64
	PaymentID string
	OrderID   string
	Value     float64
	Currency  string
}

// LedgerEntry is one settlement record from the external export. UnitPrice
// is in the settlement currency; ExchangeRate converts it to EUR.
type LedgerEntry struct {
	TransactionID string
	UnitPrice     float64
	ExchangeRate  float64
	Timestamp     time.Time
}

// Report is the reconciliation outcome.
type Report struct {
	TotalInternalEUR  float64
	TotalExternalEUR  float64
	Matched           int
	MissingInExternal []Purchase
	MissingInInternal []LedgerEntry
}

type Reconciler struct {
	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// PurchasesFromEvents projects non-refunded buy events into purchases.
// A buy event without any payment id cannot be reconciled and is an
// integrity violation.
func PurchasesFromEvents(events []*store.Event) ([]Purchase, error) {
	purchases := make([]Purchase, 0, len(events))
	for _, e := range events {
		if e.Type != store.EventBuy || e.PaymentStatus == store.PaymentRefunded {
			continue
		}
		if e.PaymentID == "" && e.OrderID == "" {
			return nil, fmt.Errorf("buy event %d has no payment or order id", e.ID)
		}
		purchases = append(purchases, Purchase{
			UserID:    e.UserID,
			PaymentID: e.PaymentID,
			OrderID:   e.OrderID,
			Value:     e.Value,
			Currency:  e.Currency,
		})
	}
	return purchases, nil
}

// Reconcile matches every internal purchase against the external ledger and
// vice versa. Every purchase must have exactly one settlement entry and
// every entry must belong to a purchase; anything unmatched is fatal for
// the batch. Normalized value drift beyond rounding is logged, not fatal.
func (r *Reconciler) Reconcile(purchases []Purchase, ledger []LedgerEntry) (*Report, error) {
	byTransaction := make(map[string]int, len(ledger))
	for i, entry := range ledger {
		byTransaction[entry.TransactionID] = i
	}

	report := &Report{}
	claimed := make(map[int]bool, len(ledger))

	for _, p := range purchases {
		valueEUR, err := ToEUR(p.Value, p.Currency)
		if err != nil {
			return nil, fmt.Errorf("purchase %s: %w", p.PaymentID, err)
		}
		report.TotalInternalEUR += valueEUR

		idx, ok := matchEntry(byTransaction, p)
		if !ok {
			report.MissingInExternal = append(report.MissingInExternal, p)
			continue
		}
		claimed[idx] = true
		report.Matched++

		entryEUR := ledger[idx].UnitPrice * ledger[idx].ExchangeRate
		if drift := math.Abs(entryEUR - valueEUR); drift > driftTolerance {
			r.logger.Warn("settlement value drift",
				zap.String("transaction_id", ledger[idx].TransactionID),
				zap.Float64("internal_eur", valueEUR),
				zap.Float64("external_eur", entryEUR),
				zap.Float64("drift", drift),
			)
		}
	}

	for i, entry := range ledger {
		report.TotalExternalEUR += entry.UnitPrice * entry.ExchangeRate
		if !claimed[i] {
			report.MissingInInternal = append(report.MissingInInternal, entry)
		}
	}

	if len(report.MissingInExternal) > 0 || len(report.MissingInInternal) > 0 {
		return report, fmt.Errorf("%w: %d purchases unsettled, %d entries untracked",
			ErrLedgerMismatch, len(report.MissingInExternal), len(report.MissingInInternal))
	}

	return report, nil
}

func matchEntry(byTransaction map[string]int, p Purchase) (int, bool) {
	if p.PaymentID != "" {
		if idx, ok := byTransaction[p.PaymentID]; ok {
			return idx, true
		}
	}
	if p.OrderID != "" {
		if idx, ok := byTransaction[p.OrderID]; ok {
			return idx, true
		}
	}
	return 0, false
}
