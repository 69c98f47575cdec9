// Package identity resolves request-carried signals to one stable visitor
// identity, allocating a fresh one from the store sequence when no signal
// matches.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// Sentinel is the legacy "unset" identity value. It is excluded at every
// resolution step and must never be handed out.
const Sentinel = "1"

// ErrAllocation reports a failed or malformed identity allocation. There is
// no fallback: without an identity the request cannot be tracked.
var ErrAllocation = errors.New("identity allocation failed")

// Signals are the candidate identity hints carried by a request, already
// extracted from their transports. Precedence is fixed: Explicit, then
// Cookie, then Query, then an Email-based event-log lookup.
type Signals struct {
	Explicit string // trusted server-to-server parameter
	Cookie   string // long-lived user_id cookie
	Query    string // inbound marketing link override
	Email    string // authenticated session or lead cookie
}

// Resolution is the outcome of a resolve: the identity plus whether it was
// freshly allocated (callers re-stamp the cookie either way).
type Resolution struct {
	UserID    int64
	Allocated bool
}

// Store is the slice of the datastore the resolver needs.
type Store interface {
	AllocateVisitorID(ctx context.Context) (int64, error)
	LatestUserIDByEmail(ctx context.Context, email string) (int64, error)
}

type resolverFunc func(ctx context.Context, sig Signals) (int64, bool, error)

// Resolver walks an ordered chain of resolver functions, first match wins.
// The chain is explicit so the precedence stays auditable and each step can
// be tested on its own.
type Resolver struct {
	store  Store
	logger *zap.Logger
	chain  []resolverFunc
}

func NewResolver(s Store, logger *zap.Logger) *Resolver {
	r := &Resolver{store: s, logger: logger}
	r.chain = []resolverFunc{
		r.fromExplicit,
		r.fromCookie,
		r.fromQuery,
		r.fromEmail,
	}
	return r
}

// Resolve returns the visitor identity for the given signals. When every
// hint misses, a new identity is allocated; an allocation failure is fatal
// and never defaults to the sentinel.
func (r *Resolver) Resolve(ctx context.Context, sig Signals) (Resolution, error) {
	for _, step := range r.chain {
		id, ok, err := step(ctx, sig)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return Resolution{UserID: id}, nil
		}
	}

	id, err := r.store.AllocateVisitorID(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	if id <= 0 {
		return Resolution{}, fmt.Errorf("%w: sequence returned %d", ErrAllocation, id)
	}

	r.logger.Debug("allocated new visitor identity", zap.Int64("user_id", id))

	return Resolution{UserID: id, Allocated: true}, nil
}

func (r *Resolver) fromExplicit(_ context.Context, sig Signals) (int64, bool, error) {
	id, ok := parseHint(sig.Explicit)
	return id, ok, nil
}

func (r *Resolver) fromCookie(_ context.Context, sig Signals) (int64, bool, error) {
	id, ok := parseHint(sig.Cookie)
	return id, ok, nil
}

func (r *Resolver) fromQuery(_ context.Context, sig Signals) (int64, bool, error) {
	id, ok := parseHint(sig.Query)
	return id, ok, nil
}

// fromEmail reuses the identity of the most recent event row written with
// the known email. No row is a miss, not an error.
func (r *Resolver) fromEmail(ctx context.Context, sig Signals) (int64, bool, error) {
	if sig.Email == "" {
		return 0, false, nil
	}

	id, err := r.store.LatestUserIDByEmail(ctx, sig.Email)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve identity by email: %w", err)
	}
	if id <= 0 {
		return 0, false, nil
	}

	return id, true, nil
}

// parseHint accepts a candidate identity value, rejecting empty values, the
// sentinel and anything non-numeric.
func parseHint(v string) (int64, bool) {
	if v == "" || v == Sentinel {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
