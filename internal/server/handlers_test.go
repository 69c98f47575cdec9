package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/config"
	"github.com/kangarko/pacan-analytics/internal/server"
	"github.com/kangarko/pacan-analytics/internal/store"
	"github.com/kangarko/pacan-analytics/internal/testutil"
)

func newTestServer(t *testing.T) (*server.Server, *store.SQLiteStore) {
	t.Helper()

	s := testutil.SetupTestStore(t)
	cfg := &config.Config{
		Port:         0,
		CookieMaxAge: time.Hour,
	}
	return server.New(cfg, s, zap.NewNop()), s
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func cookieNamed(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestTrack_AllocatesIdentity(t *testing.T) {
	srv, s := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/track", map[string]string{"type": "view"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.UserID <= 0 {
		t.Fatalf("expected allocated user id, got %d", resp.UserID)
	}

	c := cookieNamed(t, w, "user_id")
	if c == nil || c.Value != strconv.FormatInt(resp.UserID, 10) {
		t.Fatalf("identity cookie not stamped with resolved id: %+v", c)
	}

	events, err := s.EventsByUser(context.Background(), resp.UserID, 10)
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 1 || events[0].Type != store.EventView {
		t.Fatalf("expected one recorded view event, got %+v", events)
	}
}

func TestTrack_CookieIdentityReused(t *testing.T) {
	srv, _ := newTestServer(t)

	first := postJSON(t, srv.Handler(), "/api/track", map[string]string{"type": "view"})
	id := cookieNamed(t, first, "user_id")
	if id == nil {
		t.Fatal("first request did not stamp an identity")
	}

	second := postJSON(t, srv.Handler(), "/api/track", map[string]string{"type": "sign_up"}, id)

	var resp struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if got := strconv.FormatInt(resp.UserID, 10); got != id.Value {
		t.Errorf("cookie identity not reused: cookie %s, resolved %s", id.Value, got)
	}
}

func TestTrack_InvalidEventType(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/track", map[string]string{"type": "page_blink"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event type, got %d", w.Code)
	}
}

func TestTrack_VariantIsWriteOnce(t *testing.T) {
	srv, s := newTestServer(t)

	if _, err := s.CreateExperiment(context.Background(), "hero", []string{"A", "B"}, time.Now()); err != nil {
		t.Fatal(err)
	}

	first := postJSON(t, srv.Handler(), "/api/track", map[string]string{
		"type": "view", "experiment": "hero", "variant": "A",
	})
	id := cookieNamed(t, first, "user_id")
	if id == nil {
		t.Fatal("no identity cookie")
	}

	// A replayed hit claiming a different variant must get the original back.
	second := postJSON(t, srv.Handler(), "/api/track", map[string]string{
		"type": "view", "experiment": "hero", "variant": "B",
	}, id)

	var resp struct {
		Variant string `json:"variant"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Variant != "A" {
		t.Errorf("variant reassigned on replay: got %q, want A", resp.Variant)
	}
}

func TestTrack_RefundNotificationFlipsBuy(t *testing.T) {
	srv, s := newTestServer(t)

	first := postJSON(t, srv.Handler(), "/api/track", map[string]interface{}{
		"type": "buy", "value": 100, "currency": "EUR",
		"payment_id": "pi_1", "payment_status": "completed",
	})
	id := cookieNamed(t, first, "user_id")
	if id == nil {
		t.Fatal("no identity cookie")
	}

	refund := postJSON(t, srv.Handler(), "/api/track", map[string]interface{}{
		"type": "buy", "value": 100, "currency": "EUR",
		"payment_id": "pi_1", "payment_status": "refunded",
	}, id)
	if refund.Code != http.StatusOK {
		t.Fatalf("refund notification failed with %d", refund.Code)
	}

	var resp struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(refund.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	events, err := s.EventsByUser(context.Background(), resp.UserID, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if e.PaymentID == "pi_1" && e.PaymentStatus != store.PaymentRefunded {
			t.Errorf("buy event %d not marked refunded: %q", e.ID, e.PaymentStatus)
		}
	}
}

func TestHeadline_NoActiveReturnsEmptyObject(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/headline", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body %q: %v", w.Body.String(), err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty object for control, got %v", body)
	}
}

func TestHeadline_AssignsAndStampsCookies(t *testing.T) {
	srv, s := newTestServer(t)

	h, err := s.CreateHeadline(context.Background(), "ship-faster", "Ship faster", "Less meetings")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/headline", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got store.Headline
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != h.ID {
		t.Errorf("expected headline %d, got %d", h.ID, got.ID)
	}

	idCookie := cookieNamed(t, w, "headline_id")
	if idCookie == nil || idCookie.Value != strconv.FormatInt(h.ID, 10) {
		t.Errorf("headline_id cookie not stamped: %+v", idCookie)
	}
	if cookieNamed(t, w, "headline_data") == nil {
		t.Error("headline_data snapshot cookie not stamped")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}

func TestExperiments_RequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.AddCookie(&http.Cookie{Name: "pacan_token", Value: srv.Token()})
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token cookie, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExperiments_QueryTokenRedirects(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments?token="+srv.Token(), nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect after token exchange, got %d", w.Code)
	}
	if c := cookieNamed(t, w, "pacan_token"); c == nil || c.Value != srv.Token() {
		t.Errorf("token cookie not set on exchange: %+v", c)
	}
}

func TestWebinarFlow(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	web, err := s.CreateWebinar(ctx, "launch", 3600)
	if err != nil {
		t.Fatal(err)
	}

	// Webinar endpoints need a stamped visitor first.
	tracked := postJSON(t, srv.Handler(), "/api/track", map[string]string{"type": "webinar_reg"})
	id := cookieNamed(t, tracked, "user_id")
	if id == nil {
		t.Fatal("no identity cookie")
	}

	started := postJSON(t, srv.Handler(), "/api/webinar/start", map[string]interface{}{
		"webinar_id": web.ID,
	}, id)
	if started.Code != http.StatusOK {
		t.Fatalf("start failed with %d: %s", started.Code, started.Body.String())
	}

	var sess struct {
		ID        int64  `json:"id"`
		JoinToken string `json:"join_token"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(started.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.JoinToken == "" {
		t.Error("expected a join token")
	}
	if sess.Status != "active" {
		t.Errorf("freshly started session should be active, got %q", sess.Status)
	}

	ping := postJSON(t, srv.Handler(), "/api/webinar/ping", map[string]interface{}{
		"session_id": sess.ID, "seconds": 30,
	})
	if ping.Code != http.StatusNoContent {
		t.Fatalf("ping failed with %d: %s", ping.Code, ping.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/webinar/current?webinar_id=%d", web.ID), nil)
	req.AddCookie(id)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("current failed with %d: %s", w.Code, w.Body.String())
	}
	var current struct {
		ID               int64 `json:"id"`
		WatchtimeSeconds int64 `json:"watchtime_seconds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &current); err != nil {
		t.Fatal(err)
	}
	if current.ID != sess.ID {
		t.Errorf("expected session %d, got %d", sess.ID, current.ID)
	}
	if current.WatchtimeSeconds != 30 {
		t.Errorf("expected 30s watchtime, got %d", current.WatchtimeSeconds)
	}
}

func TestWebinarStart_NoIdentity(t *testing.T) {
	srv, s := newTestServer(t)

	web, err := s.CreateWebinar(context.Background(), "launch", 3600)
	if err != nil {
		t.Fatal(err)
	}

	w := postJSON(t, srv.Handler(), "/api/webinar/start", map[string]interface{}{"webinar_id": web.ID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without visitor cookie, got %d", w.Code)
	}
}

func TestWebinarStart_UnknownWebinar(t *testing.T) {
	srv, _ := newTestServer(t)

	tracked := postJSON(t, srv.Handler(), "/api/track", map[string]string{"type": "view"})
	id := cookieNamed(t, tracked, "user_id")

	w := postJSON(t, srv.Handler(), "/api/webinar/start", map[string]interface{}{"webinar_id": 999}, id)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown webinar, got %d", w.Code)
	}
}
