package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// Cookie names the marketing pages depend on. The identity and headline
// cookies must stay script-readable, so they are never HttpOnly.
const (
	userIDCookie       = "user_id"
	headlineIDCookie   = "headline_id"
	headlineDataCookie = "headline_data"
	leadEmailCookie    = "lead_email"
)

// CookieJar is the thin adapter between the transport and the core: the
// core hands back plain values, the jar turns them into cookie writes.
type CookieJar struct {
	domain string
	maxAge time.Duration
}

func NewCookieJar(domain string, maxAge time.Duration) *CookieJar {
	if maxAge <= 0 {
		maxAge = 2 * 365 * 24 * time.Hour
	}
	return &CookieJar{domain: domain, maxAge: maxAge}
}

func (j *CookieJar) set(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   int(j.maxAge / time.Second),
		SameSite: http.SameSiteLaxMode,
		HttpOnly: false,
	})
}

// StampIdentity re-stamps the resolved identity so the cookie expiry keeps
// sliding forward.
func (j *CookieJar) StampIdentity(w http.ResponseWriter, userID int64) {
	j.set(w, userIDCookie, strconv.FormatInt(userID, 10))
}

// StampHeadline persists the choice twice: the id for stickiness lookups
// and the full snapshot so page renders skip the read.
func (j *CookieJar) StampHeadline(w http.ResponseWriter, h *store.Headline) error {
	snapshot, err := json.Marshal(h)
	if err != nil {
		return err
	}
	j.set(w, headlineIDCookie, strconv.FormatInt(h.ID, 10))
	j.set(w, headlineDataCookie, url.QueryEscape(string(snapshot)))
	return nil
}

// ReadIdentity returns the raw user_id cookie value, empty when absent.
func (j *CookieJar) ReadIdentity(r *http.Request) string {
	return cookieValue(r, userIDCookie)
}

// ReadHeadlineID returns the sticky headline id, 0 when absent or garbled.
func (j *CookieJar) ReadHeadlineID(r *http.Request) int64 {
	v := cookieValue(r, headlineIDCookie)
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// ReadLeadEmail returns the email dropped by an earlier lead capture.
func (j *CookieJar) ReadLeadEmail(r *http.Request) string {
	v, err := url.QueryUnescape(cookieValue(r, leadEmailCookie))
	if err != nil {
		return ""
	}
	return v
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
