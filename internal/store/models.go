package store

import "time"

// EventType is the closed set of tracked visitor actions. Adding a new
// action means adding a constant here and listing it in Valid.
type EventType string

const (
	EventView       EventType = "view"
	EventSignUp     EventType = "sign_up"
	EventBuy        EventType = "buy"
	EventCheckout   EventType = "checkout"
	EventWebinarReg EventType = "webinar_reg"
	EventUnsub      EventType = "unsub"
)

func (t EventType) Valid() bool {
	switch t {
	case EventView, EventSignUp, EventBuy, EventCheckout, EventWebinarReg, EventUnsub:
		return true
	}
	return false
}

// Payment status values carried on buy events.
const (
	PaymentCompleted = "completed"
	PaymentRefunded  = "refunded"
)

// Visitor is the server-side record behind a visitor identity. The id is
// allocated once by the store sequence and never reassigned.
type Visitor struct {
	ID             int64
	Email          string
	ExperimentData map[string]string // experiment name -> variant, write-once per key
	CreatedAt      time.Time
}

// Event is one append-only row in the event log. Only payment_status may
// ever be rewritten, and only to "refunded".
type Event struct {
	ID                 int64
	UserID             int64
	Type               EventType
	Date               time.Time
	URL                string
	Email              string
	Value              float64
	Currency           string
	Region             string
	HeadlineID         int64
	PrimaryOfferSlug   string
	SecondaryOfferSlug string
	PaymentID          string
	OrderID            string // secondary-processor order id
	PaymentStatus      string
	PaymentMethod      string
}

// Experiment names an A/B test and its variant arms. Variant membership per
// visitor lives in Visitor.ExperimentData, not here.
type Experiment struct {
	ID        int64
	Name      string
	Variants  []string
	Active    bool
	StartDate time.Time
	EndDate   *time.Time
}

// Headline is one variant creative for the landing page hero.
type Headline struct {
	ID       int64  `db:"id" json:"id"`
	Slug     string `db:"slug" json:"slug"`
	Active   bool   `db:"active" json:"active"`
	Title    string `db:"title" json:"title"`
	Subtitle string `db:"subtitle" json:"subtitle"`
}

// Webinar owns the session duration; the late-join cutoff policy lives in
// the webinar package.
type Webinar struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	DurationSeconds int64  `db:"duration_seconds"`
}

// WebinarSession is one visitor's scheduled sitting of a webinar.
// WatchtimeSeconds grows through periodic client pings.
type WebinarSession struct {
	ID               int64
	WebinarID        int64
	UserID           int64
	StartDate        time.Time
	ScheduleID       string
	JoinToken        string
	WatchtimeSeconds int64
}

// Offer holds immutable pricing facts per region.
type Offer struct {
	Slug         string
	Price        float64
	Currency     string
	PriceEUR     float64
	RegionPrices map[string]float64
}

// VariantMember pairs a visitor with the variant recorded for one experiment.
type VariantMember struct {
	UserID  int64
	Variant string
}
