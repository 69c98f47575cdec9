package store

import (
	"context"
	"time"
)

// Store defines the persistence operations the attribution engine needs.
type Store interface {
	// Visitor operations
	AllocateVisitorID(ctx context.Context) (int64, error)
	GetVisitor(ctx context.Context, id int64) (*Visitor, error)
	SetVisitorEmail(ctx context.Context, id int64, email string) error
	SetExperimentVariant(ctx context.Context, userID int64, experiment, variant string) (string, error)
	VisitorsWithExperiment(ctx context.Context, experiment string) ([]VariantMember, error)
	CountVisitors(ctx context.Context) (int, error)

	// Event log
	InsertEvent(ctx context.Context, e *Event) error
	EventsByUser(ctx context.Context, userID int64, limit int) ([]*Event, error)
	ConversionEvents(ctx context.Context, userIDs []int64, from, to time.Time) ([]*Event, error)
	LatestUserIDByEmail(ctx context.Context, email string) (int64, error)
	MarkRefunded(ctx context.Context, paymentID string) error
	Purchases(ctx context.Context, from, to time.Time) ([]*Event, error)

	// Experiments
	CreateExperiment(ctx context.Context, name string, variants []string, startDate time.Time) (*Experiment, error)
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	SetExperimentActive(ctx context.Context, name string, active bool, endDate *time.Time) error

	// Headlines
	CreateHeadline(ctx context.Context, slug, title, subtitle string) (*Headline, error)
	HeadlineByID(ctx context.Context, id int64) (*Headline, error)
	HeadlineBySlug(ctx context.Context, slug string) (*Headline, error)
	ActiveHeadlines(ctx context.Context) ([]*Headline, error)
	SetHeadlineActive(ctx context.Context, id int64, active bool) error

	// Webinars
	CreateWebinar(ctx context.Context, name string, durationSeconds int64) (*Webinar, error)
	GetWebinar(ctx context.Context, id int64) (*Webinar, error)
	CreateWebinarSession(ctx context.Context, s *WebinarSession) error
	SessionsByUser(ctx context.Context, webinarID, userID int64) ([]*WebinarSession, error)
	AddWatchtime(ctx context.Context, sessionID int64, seconds int64) error

	// Offers
	PutOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, slug string) (*Offer, error)

	// Lifecycle
	Close() error
}
