package webinar_test

import (
	"testing"
	"time"

	"github.com/kangarko/pacan-analytics/internal/store"
	"github.com/kangarko/pacan-analytics/internal/webinar"
)

var oneHour = &store.Webinar{ID: 1, Name: "launch", DurationSeconds: 3600}

func sessionStarting(start time.Time) *store.WebinarSession {
	return &store.WebinarSession{ID: 1, WebinarID: 1, UserID: 1, StartDate: start}
}

func TestStatusOf_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  webinar.Status
	}{
		{"started 5 minutes ago", now.Add(-5 * time.Minute), webinar.StatusActive},
		{"starts in 10 minutes", now.Add(10 * time.Minute), webinar.StatusUpcoming},
		{"started 20 minutes ago, past late join", now.Add(-20 * time.Minute), webinar.StatusMissed},
		{"started 90 minutes ago, over", now.Add(-90 * time.Minute), webinar.StatusEnded},
		{"starting right now", now, webinar.StatusActive},
		{"exactly at the late-join cutoff", now.Add(-15 * time.Minute), webinar.StatusActive},
		{"exactly at the end", now.Add(-60 * time.Minute), webinar.StatusEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := webinar.StatusOf(sessionStarting(tt.start), oneHour, now)
			if got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCurrentSession_SkipsMissedAndEnded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The first session is in its live window but past the late-join
	// boundary, so the scan must pass over it and keep looking.
	missed := &store.WebinarSession{ID: 3, StartDate: now.Add(-20 * time.Minute)}
	upcoming := &store.WebinarSession{ID: 2, StartDate: now.Add(30 * time.Minute)}
	ended := &store.WebinarSession{ID: 1, StartDate: now.Add(-5 * time.Hour)}

	sess, status := webinar.CurrentSession([]*store.WebinarSession{missed, upcoming, ended}, oneHour, now)
	if sess == nil || sess.ID != 2 {
		t.Fatalf("expected session 2, got %+v", sess)
	}
	if status != webinar.StatusUpcoming {
		t.Errorf("expected upcoming, got %v", status)
	}
}

func TestCurrentSession_NoneUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sessions := []*store.WebinarSession{
		{ID: 2, StartDate: now.Add(-20 * time.Minute)}, // missed
		{ID: 1, StartDate: now.Add(-3 * time.Hour)},    // ended
	}

	sess, _ := webinar.CurrentSession(sessions, oneHour, now)
	if sess != nil {
		t.Fatalf("expected no usable session, got %+v", sess)
	}
}

func TestCurrentSession_FirstUsableWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two upcoming sessions: the scan reports the most recent first.
	later := &store.WebinarSession{ID: 2, StartDate: now.Add(2 * time.Hour)}
	sooner := &store.WebinarSession{ID: 1, StartDate: now.Add(1 * time.Hour)}

	sess, status := webinar.CurrentSession([]*store.WebinarSession{later, sooner}, oneHour, now)
	if sess == nil || sess.ID != 2 {
		t.Fatalf("expected first listed session, got %+v", sess)
	}
	if status != webinar.StatusUpcoming {
		t.Errorf("expected upcoming, got %v", status)
	}
}
