package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS visitors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL DEFAULT '',
    experiment_data TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    type TEXT NOT NULL,
    date INTEGER NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    value REAL NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT '',
    headline_id INTEGER NOT NULL DEFAULT 0,
    primary_offer_slug TEXT NOT NULL DEFAULT '',
    secondary_offer_slug TEXT NOT NULL DEFAULT '',
    payment_id TEXT NOT NULL DEFAULT '',
    order_id TEXT NOT NULL DEFAULT '',
    payment_status TEXT NOT NULL DEFAULT '',
    payment_method TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, type, date);
CREATE INDEX IF NOT EXISTS idx_events_email ON events(email, date);
CREATE INDEX IF NOT EXISTS idx_events_payment ON events(payment_id);

CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    variants TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    start_date INTEGER NOT NULL,
    end_date INTEGER
);

CREATE TABLE IF NOT EXISTS headlines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT UNIQUE NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    title TEXT NOT NULL DEFAULT '',
    subtitle TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS webinars (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    duration_seconds INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS webinar_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    webinar_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    start_date INTEGER NOT NULL,
    schedule_id TEXT NOT NULL DEFAULT '',
    join_token TEXT NOT NULL DEFAULT '',
    watchtime_seconds INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (webinar_id) REFERENCES webinars(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON webinar_sessions(webinar_id, user_id, start_date);

CREATE TABLE IF NOT EXISTS offers (
    slug TEXT PRIMARY KEY,
    price REAL NOT NULL,
    currency TEXT NOT NULL,
    price_eur REAL NOT NULL,
    region_prices TEXT NOT NULL DEFAULT '{}'
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	// Visitor id 1 is reserved: legacy trackers sent "1" as a shared
	// placeholder identity, so the sequence must never hand it out. Burn the
	// row so AUTOINCREMENT starts at 2; the placeholder row itself is not kept.
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO visitors (id, email, experiment_data, created_at) VALUES (1, '', '{}', 0)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reserve sentinel visitor id: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM visitors WHERE id = 1 AND created_at = 0`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to clear sentinel visitor row: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db.DB
}

// SizeBytes reports the on-disk size of the database.
func (s *SQLiteStore) SizeBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.GetContext(ctx, &pageCount, `PRAGMA page_count`); err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := s.db.GetContext(ctx, &pageSize, `PRAGMA page_size`); err != nil {
		return 0, fmt.Errorf("failed to read page size: %w", err)
	}
	return pageCount * pageSize, nil
}

// --- visitors ---

// AllocateVisitorID hands out the next identity from the visitors sequence.
// The increment happens inside the engine, so concurrent calls never collide.
func (s *SQLiteStore) AllocateVisitorID(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO visitors (email, experiment_data, created_at) VALUES ('', '{}', ?)`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate visitor id: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read allocated visitor id: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("allocated visitor id %d is not a valid sequence value", id)
	}

	return id, nil
}

func (s *SQLiteStore) GetVisitor(ctx context.Context, id int64) (*Visitor, error) {
	var (
		v         Visitor
		expJSON   string
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, experiment_data, created_at FROM visitors WHERE id = ?`, id,
	).Scan(&v.ID, &v.Email, &expJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	if err := json.Unmarshal([]byte(expJSON), &v.ExperimentData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment data: %w", err)
	}
	v.CreatedAt = time.Unix(createdAt, 0)

	return &v, nil
}

func (s *SQLiteStore) SetVisitorEmail(ctx context.Context, id int64, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE visitors SET email = ? WHERE id = ?`, email, id)
	if err != nil {
		return fmt.Errorf("failed to set visitor email: %w", err)
	}
	return requireRow(res)
}

// SetExperimentVariant records the variant for one experiment in the
// visitor's experiment_data map. The write is once-only: an existing key is
// never reassigned, and the stored value is returned either way.
func (s *SQLiteStore) SetExperimentVariant(ctx context.Context, userID int64, experiment, variant string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var expJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT experiment_data FROM visitors WHERE id = ?`, userID,
	).Scan(&expJSON)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read experiment data: %w", err)
	}

	data := map[string]string{}
	if err := json.Unmarshal([]byte(expJSON), &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal experiment data: %w", err)
	}

	if existing, ok := data[experiment]; ok {
		return existing, nil
	}

	data[experiment] = variant
	updated, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal experiment data: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE visitors SET experiment_data = ? WHERE id = ?`, string(updated), userID,
	); err != nil {
		return "", fmt.Errorf("failed to update experiment data: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit experiment data: %w", err)
	}

	return variant, nil
}

func (s *SQLiteStore) VisitorsWithExperiment(ctx context.Context, experiment string) ([]VariantMember, error) {
	path := fmt.Sprintf(`$."%s"`, experiment)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, json_extract(experiment_data, ?) AS variant
		 FROM visitors
		 WHERE json_extract(experiment_data, ?) IS NOT NULL`,
		path, path,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiment members: %w", err)
	}
	defer rows.Close()

	var members []VariantMember
	for rows.Next() {
		var m VariantMember
		if err := rows.Scan(&m.UserID, &m.Variant); err != nil {
			return nil, fmt.Errorf("failed to scan experiment member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (s *SQLiteStore) CountVisitors(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM visitors`); err != nil {
		return 0, fmt.Errorf("failed to count visitors: %w", err)
	}
	return n, nil
}

// --- event log ---

// eventRow mirrors the events table; dates are unix milliseconds.
type eventRow struct {
	ID                 int64   `db:"id"`
	UserID             int64   `db:"user_id"`
	Type               string  `db:"type"`
	Date               int64   `db:"date"`
	URL                string  `db:"url"`
	Email              string  `db:"email"`
	Value              float64 `db:"value"`
	Currency           string  `db:"currency"`
	Region             string  `db:"region"`
	HeadlineID         int64   `db:"headline_id"`
	PrimaryOfferSlug   string  `db:"primary_offer_slug"`
	SecondaryOfferSlug string  `db:"secondary_offer_slug"`
	PaymentID          string  `db:"payment_id"`
	OrderID            string  `db:"order_id"`
	PaymentStatus      string  `db:"payment_status"`
	PaymentMethod      string  `db:"payment_method"`
}

func (r *eventRow) toEvent() *Event {
	return &Event{
		ID:                 r.ID,
		UserID:             r.UserID,
		Type:               EventType(r.Type),
		Date:               time.UnixMilli(r.Date),
		URL:                r.URL,
		Email:              r.Email,
		Value:              r.Value,
		Currency:           r.Currency,
		Region:             r.Region,
		HeadlineID:         r.HeadlineID,
		PrimaryOfferSlug:   r.PrimaryOfferSlug,
		SecondaryOfferSlug: r.SecondaryOfferSlug,
		PaymentID:          r.PaymentID,
		OrderID:            r.OrderID,
		PaymentStatus:      r.PaymentStatus,
		PaymentMethod:      r.PaymentMethod,
	}
}

const eventColumns = `id, user_id, type, date, url, email, value, currency, region,
	headline_id, primary_offer_slug, secondary_offer_slug, payment_id, order_id, payment_status, payment_method`

func (s *SQLiteStore) InsertEvent(ctx context.Context, e *Event) error {
	if !e.Type.Valid() {
		return fmt.Errorf("invalid event type %q", e.Type)
	}
	if e.UserID <= 0 {
		return fmt.Errorf("event is missing a visitor identity")
	}
	if e.Date.IsZero() {
		e.Date = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (user_id, type, date, url, email, value, currency, region,
		   headline_id, primary_offer_slug, secondary_offer_slug, payment_id, order_id, payment_status, payment_method)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, string(e.Type), e.Date.UnixMilli(), e.URL, e.Email, e.Value, e.Currency, e.Region,
		e.HeadlineID, e.PrimaryOfferSlug, e.SecondaryOfferSlug, e.PaymentID, e.OrderID, e.PaymentStatus, e.PaymentMethod,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	e.ID = id

	return nil
}

func (s *SQLiteStore) EventsByUser(ctx context.Context, userID int64, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM events WHERE user_id = ? ORDER BY date DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by user: %w", err)
	}

	return rowsToEvents(rows), nil
}

// ConversionEvents returns sign_up and buy events for the given visitors
// inside [from, to], oldest first. Ties on date break on insert order so a
// rescan always yields the same sequence.
func (s *SQLiteStore) ConversionEvents(ctx context.Context, userIDs []int64, from, to time.Time) ([]*Event, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+eventColumns+` FROM events
		 WHERE user_id IN (?) AND type IN (?, ?) AND date >= ? AND date <= ?
		 ORDER BY date ASC, id ASC`,
		userIDs, string(EventSignUp), string(EventBuy), from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build conversion query: %w", err)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get conversion events: %w", err)
	}

	return rowsToEvents(rows), nil
}

func (s *SQLiteStore) LatestUserIDByEmail(ctx context.Context, email string) (int64, error) {
	var userID int64
	err := s.db.GetContext(ctx, &userID,
		`SELECT user_id FROM events WHERE email = ? ORDER BY date DESC, id DESC LIMIT 1`,
		email,
	)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up user by email: %w", err)
	}
	return userID, nil
}

// MarkRefunded is the single permitted mutation of the event log.
func (s *SQLiteStore) MarkRefunded(ctx context.Context, paymentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET payment_status = ? WHERE payment_id = ? AND type = ?`,
		PaymentRefunded, paymentID, string(EventBuy),
	)
	if err != nil {
		return fmt.Errorf("failed to mark refunded: %w", err)
	}
	return requireRow(res)
}

// Purchases returns non-refunded buy events inside [from, to], oldest first.
func (s *SQLiteStore) Purchases(ctx context.Context, from, to time.Time) ([]*Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM events
		 WHERE type = ? AND payment_status != ? AND date >= ? AND date <= ?
		 ORDER BY date ASC, id ASC`,
		string(EventBuy), PaymentRefunded, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	return rowsToEvents(rows), nil
}

// --- experiments ---

func (s *SQLiteStore) CreateExperiment(ctx context.Context, name string, variants []string, startDate time.Time) (*Experiment, error) {
	if len(variants) < 2 {
		return nil, fmt.Errorf("experiment needs at least 2 variants, got %d", len(variants))
	}

	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (name, variants, active, start_date) VALUES (?, ?, 1, ?)`,
		name, string(variantsJSON), startDate.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment id: %w", err)
	}

	return &Experiment{
		ID:        id,
		Name:      name,
		Variants:  variants,
		Active:    true,
		StartDate: startDate,
	}, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, variants, active, start_date, end_date FROM experiments WHERE name = ?`,
		name,
	)
	exp, err := scanExperiment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, variants, active, start_date, end_date FROM experiments ORDER BY start_date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}

	return experiments, rows.Err()
}

func (s *SQLiteStore) SetExperimentActive(ctx context.Context, name string, active bool, endDate *time.Time) error {
	var end interface{}
	if endDate != nil {
		end = endDate.UnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET active = ?, end_date = ? WHERE name = ?`,
		boolToInt(active), end, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	return requireRow(res)
}

func scanExperiment(scan func(dest ...interface{}) error) (*Experiment, error) {
	var (
		exp          Experiment
		variantsJSON string
		active       int
		startDate    int64
		endDate      sql.NullInt64
	)

	if err := scan(&exp.ID, &exp.Name, &variantsJSON, &active, &startDate, &endDate); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}

	exp.Active = active != 0
	exp.StartDate = time.UnixMilli(startDate)
	if endDate.Valid {
		end := time.UnixMilli(endDate.Int64)
		exp.EndDate = &end
	}

	return &exp, nil
}

// --- headlines ---

func (s *SQLiteStore) CreateHeadline(ctx context.Context, slug, title, subtitle string) (*Headline, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO headlines (slug, active, title, subtitle) VALUES (?, 1, ?, ?)`,
		slug, title, subtitle,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert headline: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get headline id: %w", err)
	}

	return &Headline{ID: id, Slug: slug, Active: true, Title: title, Subtitle: subtitle}, nil
}

func (s *SQLiteStore) HeadlineByID(ctx context.Context, id int64) (*Headline, error) {
	var h Headline
	err := s.db.GetContext(ctx, &h,
		`SELECT id, slug, active, title, subtitle FROM headlines WHERE id = ?`, id,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get headline: %w", err)
	}
	return &h, nil
}

func (s *SQLiteStore) HeadlineBySlug(ctx context.Context, slug string) (*Headline, error) {
	var h Headline
	err := s.db.GetContext(ctx, &h,
		`SELECT id, slug, active, title, subtitle FROM headlines WHERE slug = ?`, slug,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get headline: %w", err)
	}
	return &h, nil
}

func (s *SQLiteStore) ActiveHeadlines(ctx context.Context) ([]*Headline, error) {
	var headlines []*Headline
	err := s.db.SelectContext(ctx, &headlines,
		`SELECT id, slug, active, title, subtitle FROM headlines WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active headlines: %w", err)
	}
	return headlines, nil
}

func (s *SQLiteStore) SetHeadlineActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE headlines SET active = ? WHERE id = ?`, boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update headline: %w", err)
	}
	return requireRow(res)
}

// --- webinars ---

func (s *SQLiteStore) CreateWebinar(ctx context.Context, name string, durationSeconds int64) (*Webinar, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webinars (name, duration_seconds) VALUES (?, ?)`, name, durationSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert webinar: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get webinar id: %w", err)
	}

	return &Webinar{ID: id, Name: name, DurationSeconds: durationSeconds}, nil
}

func (s *SQLiteStore) GetWebinar(ctx context.Context, id int64) (*Webinar, error) {
	var w Webinar
	err := s.db.GetContext(ctx, &w,
		`SELECT id, name, duration_seconds FROM webinars WHERE id = ?`, id,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webinar: %w", err)
	}
	return &w, nil
}

func (s *SQLiteStore) CreateWebinarSession(ctx context.Context, sess *WebinarSession) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webinar_sessions (webinar_id, user_id, start_date, schedule_id, join_token, watchtime_seconds)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.WebinarID, sess.UserID, sess.StartDate.UnixMilli(), sess.ScheduleID, sess.JoinToken, sess.WatchtimeSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webinar session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get session id: %w", err)
	}
	sess.ID = id

	return nil
}

// SessionsByUser returns a visitor's sessions for one webinar, most recent
// start first, which is the order the current-session scan expects.
func (s *SQLiteStore) SessionsByUser(ctx context.Context, webinarID, userID int64) ([]*WebinarSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, webinar_id, user_id, start_date, schedule_id, join_token, watchtime_seconds
		 FROM webinar_sessions
		 WHERE webinar_id = ? AND user_id = ?
		 ORDER BY start_date DESC, id DESC`,
		webinarID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get webinar sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*WebinarSession
	for rows.Next() {
		var (
			sess      WebinarSession
			startDate int64
		)
		if err := rows.Scan(&sess.ID, &sess.WebinarID, &sess.UserID, &startDate,
			&sess.ScheduleID, &sess.JoinToken, &sess.WatchtimeSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan webinar session: %w", err)
		}
		sess.StartDate = time.UnixMilli(startDate)
		sessions = append(sessions, &sess)
	}

	return sessions, rows.Err()
}

func (s *SQLiteStore) AddWatchtime(ctx context.Context, sessionID int64, seconds int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webinar_sessions SET watchtime_seconds = watchtime_seconds + ? WHERE id = ?`,
		seconds, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to add watchtime: %w", err)
	}
	return requireRow(res)
}

// --- offers ---

func (s *SQLiteStore) PutOffer(ctx context.Context, o *Offer) error {
	regionJSON, err := json.Marshal(o.RegionPrices)
	if err != nil {
		return fmt.Errorf("failed to marshal region prices: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offers (slug, price, currency, price_eur, region_prices)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET
		   price = excluded.price,
		   currency = excluded.currency,
		   price_eur = excluded.price_eur,
		   region_prices = excluded.region_prices`,
		o.Slug, o.Price, o.Currency, o.PriceEUR, string(regionJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert offer: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetOffer(ctx context.Context, slug string) (*Offer, error) {
	var (
		o          Offer
		regionJSON string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT slug, price, currency, price_eur, region_prices FROM offers WHERE slug = ?`, slug,
	).Scan(&o.Slug, &o.Price, &o.Currency, &o.PriceEUR, &regionJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	if err := json.Unmarshal([]byte(regionJSON), &o.RegionPrices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal region prices: %w", err)
	}

	return &o, nil
}

// --- helpers ---

func rowsToEvents(rows []eventRow) []*Event {
	events := make([]*Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEvent()
	}
	return events
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
