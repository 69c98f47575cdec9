package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/headline"
	"github.com/kangarko/pacan-analytics/internal/identity"
	"github.com/kangarko/pacan-analytics/internal/store"
	"github.com/kangarko/pacan-analytics/internal/webinar"
)

type HealthResponse struct {
	Status        string `json:"status"`
	VisitorCount  int    `json:"visitor_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	visitors, err := s.store.CountVisitors(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	dbSize, err := s.store.SizeBytes(r.Context())
	if err != nil {
		s.logger.Warn("failed to read database size", zap.Error(err))
	}

	writeJSON(w, HealthResponse{
		Status:        "ok",
		VisitorCount:  visitors,
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// TrackRequest is one incoming tracked action plus the identity hints the
// page could gather.
type TrackRequest struct {
	Type               string  `json:"type"`
	UserID             string  `json:"user_id,omitempty"` // trusted server-to-server hint
	URL                string  `json:"url,omitempty"`
	Email              string  `json:"email,omitempty"`
	Value              float64 `json:"value,omitempty"`
	Currency           string  `json:"currency,omitempty"`
	Region             string  `json:"region,omitempty"`
	HeadlineID         int64   `json:"headline_id,omitempty"`
	PrimaryOfferSlug   string  `json:"primary_offer_slug,omitempty"`
	SecondaryOfferSlug string  `json:"secondary_offer_slug,omitempty"`
	PaymentID          string  `json:"payment_id,omitempty"`
	OrderID            string  `json:"order_id,omitempty"`
	PaymentStatus      string  `json:"payment_status,omitempty"`
	PaymentMethod      string  `json:"payment_method,omitempty"`
	Experiment         string  `json:"experiment,omitempty"`
	Variant            string  `json:"variant,omitempty"`
}

type TrackResponse struct {
	UserID  int64  `json:"user_id"`
	Variant string `json:"variant,omitempty"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	eventType := store.EventType(req.Type)
	if !eventType.Valid() {
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}

	email := req.Email
	if email == "" {
		email = s.cookies.ReadLeadEmail(r)
	}

	ctx := r.Context()
	res, err := s.resolver.Resolve(ctx, identity.Signals{
		Explicit: req.UserID,
		Cookie:   s.cookies.ReadIdentity(r),
		Query:    r.URL.Query().Get("uid"),
		Email:    email,
	})
	if err != nil {
		s.logger.Error("identity resolution failed", zap.Error(err))
		http.Error(w, "Failed to resolve identity", http.StatusInternalServerError)
		return
	}

	s.cookies.StampIdentity(w, res.UserID)

	event := &store.Event{
		UserID:             res.UserID,
		Type:               eventType,
		Date:               time.Now(),
		URL:                req.URL,
		Email:              email,
		Value:              req.Value,
		Currency:           req.Currency,
		Region:             req.Region,
		HeadlineID:         req.HeadlineID,
		PrimaryOfferSlug:   req.PrimaryOfferSlug,
		SecondaryOfferSlug: req.SecondaryOfferSlug,
		PaymentID:          req.PaymentID,
		OrderID:            req.OrderID,
		PaymentStatus:      req.PaymentStatus,
		PaymentMethod:      req.PaymentMethod,
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		s.logger.Error("failed to insert event", zap.Error(err))
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}

	resp := TrackResponse{UserID: res.UserID}

	// Record experiment membership when the page logged a variant. The
	// store keeps the first write, so a replay never reassigns.
	if req.Experiment != "" && req.Variant != "" {
		variant, err := s.store.SetExperimentVariant(ctx, res.UserID, req.Experiment, req.Variant)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to record experiment variant",
				zap.String("experiment", req.Experiment),
				zap.Error(err))
		} else if err == nil {
			resp.Variant = variant
		}
	}

	if email != "" {
		if err := s.store.SetVisitorEmail(ctx, res.UserID, email); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to store visitor email", zap.Error(err))
		}
	}

	// A refund notification flips the earlier buy rows for this payment.
	if req.PaymentStatus == store.PaymentRefunded && req.PaymentID != "" {
		if err := s.store.MarkRefunded(ctx, req.PaymentID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to mark payment refunded",
				zap.String("payment_id", req.PaymentID),
				zap.Error(err))
		}
	}

	writeJSON(w, resp)
}

func (s *Server) handleHeadline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h, err := s.assigner.Assign(r.Context(), headline.Request{
		OverrideSlug: r.URL.Query().Get("h"),
		StickyID:     s.cookies.ReadHeadlineID(r),
	})
	if err != nil {
		s.logger.Error("headline assignment failed", zap.Error(err))
		http.Error(w, "Failed to assign headline", http.StatusInternalServerError)
		return
	}

	// No active headline: the page renders its control content.
	if h == nil {
		writeJSON(w, struct{}{})
		return
	}

	if err := s.cookies.StampHeadline(w, h); err != nil {
		s.logger.Error("failed to stamp headline cookies", zap.Error(err))
		http.Error(w, "Failed to persist headline", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h)
}

type webinarStartRequest struct {
	WebinarID  int64  `json:"webinar_id"`
	ScheduleID string `json:"schedule_id,omitempty"`
	StartDate  int64  `json:"start_date,omitempty"` // unix seconds, defaults to now
}

func (s *Server) handleWebinarStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req webinarStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	userID, ok := s.visitorFromCookie(r)
	if !ok {
		http.Error(w, "No visitor identity", http.StatusBadRequest)
		return
	}

	start := time.Now()
	if req.StartDate > 0 {
		start = time.Unix(req.StartDate, 0)
	}

	sess, err := s.webinars.StartSession(r.Context(), req.WebinarID, userID, req.ScheduleID, start)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Webinar not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to start webinar session", zap.Error(err))
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, sessionResponse(sess, webinar.StatusActive))
}

type webinarPingRequest struct {
	SessionID int64 `json:"session_id"`
	Seconds   int64 `json:"seconds"`
}

func (s *Server) handleWebinarPing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req webinarPingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.webinars.RecordWatchtime(r.Context(), req.SessionID, req.Seconds); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to record watchtime", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebinarCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	webinarID, err := strconv.ParseInt(r.URL.Query().Get("webinar_id"), 10, 64)
	if err != nil || webinarID <= 0 {
		http.Error(w, "webinar_id parameter required", http.StatusBadRequest)
		return
	}

	userID, ok := s.visitorFromCookie(r)
	if !ok {
		http.Error(w, "No visitor identity", http.StatusBadRequest)
		return
	}

	sess, status, err := s.webinars.CurrentForVisitor(r.Context(), webinarID, userID, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Webinar not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to scan webinar sessions", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, sessionResponse(sess, status))
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, err := s.aggregator.ListWithStats(r.Context(), time.Now())
	if err != nil {
		s.logger.Error("failed to list experiments", zap.Error(err))
		http.Error(w, "Failed to list experiments", http.StatusInternalServerError)
		return
	}

	writeJSON(w, results)
}

// visitorFromCookie returns the identity already stamped on the browser.
// Webinar endpoints never allocate: a visitor without a cookie has not been
// through a tracked page yet.
func (s *Server) visitorFromCookie(r *http.Request) (int64, bool) {
	raw := s.cookies.ReadIdentity(r)
	if raw == "" || raw == identity.Sentinel {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type sessionJSON struct {
	ID               int64  `json:"id"`
	WebinarID        int64  `json:"webinar_id"`
	StartDate        int64  `json:"start_date"`
	JoinToken        string `json:"join_token"`
	WatchtimeSeconds int64  `json:"watchtime_seconds"`
	Status           string `json:"status"`
}

func sessionResponse(sess *store.WebinarSession, status webinar.Status) sessionJSON {
	return sessionJSON{
		ID:               sess.ID,
		WebinarID:        sess.WebinarID,
		StartDate:        sess.StartDate.Unix(),
		JoinToken:        sess.JoinToken,
		WatchtimeSeconds: sess.WatchtimeSeconds,
		Status:           status.String(),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
