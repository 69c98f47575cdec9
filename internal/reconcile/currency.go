package reconcile

import (
	"errors"
	"fmt"
)

// ErrUnknownCurrency is a data-integrity failure: a purchase in a currency
// the rate table does not know can never be silently skipped.
var ErrUnknownCurrency = errors.New("unknown currency")

// eurRates is the fixed conversion table for this reconciliation pass; one
// unit of the key currency is worth this many EUR. No live FX lookups.
var eurRates = map[string]float64{
	"EUR": 1.0,
	"USD": 0.92,
	"GBP": 1.17,
	"CHF": 1.04,
	"CZK": 0.040,
	"PLN": 0.23,
	"SEK": 0.087,
	"NOK": 0.085,
	"AUD": 0.60,
	"CAD": 0.68,
}

// ToEUR converts a value in the given currency to EUR.
func ToEUR(value float64, currency string) (float64, error) {
	rate, ok := eurRates[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return value * rate, nil
}

// FromEUR converts a EUR value back into the given currency using the same
// fixed rate, so a round trip reproduces the original within rounding.
func FromEUR(value float64, currency string) (float64, error) {
	rate, ok := eurRates[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return value / rate, nil
}
