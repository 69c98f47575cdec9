// Package headline assigns one headline variant per visitor with sticky
// reuse. Persistence of the choice (cookies) is the transport adapter's job;
// this package only maps plain inputs to a headline.
package headline

import (
	"context"
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// Store is the slice of the datastore the assigner needs.
type Store interface {
	ActiveHeadlines(ctx context.Context) ([]*store.Headline, error)
	HeadlineBySlug(ctx context.Context, slug string) (*store.Headline, error)
	HeadlineByID(ctx context.Context, id int64) (*store.Headline, error)
}

// Request carries the assignment inputs already pulled from the transport:
// an operator/marketing slug override and the visitor's persisted sticky id.
type Request struct {
	OverrideSlug string
	StickyID     int64
}

type Assigner struct {
	store  Store
	logger *zap.Logger
}

func NewAssigner(s Store, logger *zap.Logger) *Assigner {
	return &Assigner{store: s, logger: logger}
}

// Assign picks the headline for a request. Precedence: an override slug that
// resolves to an active headline, then the sticky id if still active, then a
// uniform random pick among active headlines. A nil result with nil error
// means no headline is active and the caller must fall back to the control
// content.
func (a *Assigner) Assign(ctx context.Context, req Request) (*store.Headline, error) {
	if req.OverrideSlug != "" {
		h, err := a.store.HeadlineBySlug(ctx, req.OverrideSlug)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if h != nil && h.Active {
			return h, nil
		}
	}

	if req.StickyID > 0 {
		h, err := a.store.HeadlineByID(ctx, req.StickyID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if h != nil && h.Active {
			return h, nil
		}
		// Deactivated or deleted headline: the visitor re-rolls below.
	}

	active, err := a.store.ActiveHeadlines(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		a.logger.Debug("no active headlines, serving control")
		return nil, nil
	}

	return active[rand.Intn(len(active))], nil
}
