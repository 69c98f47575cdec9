// Package webinar computes live-session state for scheduled webinar
// sittings and tracks attendance.
package webinar

import (
	"time"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// LateJoinWindow is how long after the scheduled start a visitor may still
// join a running session.
const LateJoinWindow = 15 * time.Minute

// Status is the state of one session relative to a point in time.
type Status int

const (
	// StatusUpcoming: the session has not started, or is inside the
	// late-join window.
	StatusUpcoming Status = iota
	// StatusActive: started and still joinable.
	StatusActive
	// StatusMissed: past the late-join cutoff but not yet over. Such a
	// session is skipped entirely when scanning a visitor's history.
	StatusMissed
	// StatusEnded: the full duration has elapsed.
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusUpcoming:
		return "upcoming"
	case StatusActive:
		return "active"
	case StatusMissed:
		return "missed"
	case StatusEnded:
		return "ended"
	}
	return "unknown"
}

// StatusOf is a pure function of now: it never reads or writes state.
func StatusOf(sess *store.WebinarSession, w *store.Webinar, now time.Time) Status {
	end := sess.StartDate.Add(time.Duration(w.DurationSeconds) * time.Second)
	cutoff := sess.StartDate.Add(LateJoinWindow)

	if now.After(cutoff) && now.Before(end) {
		return StatusMissed
	}
	if end.After(now) {
		if !now.Before(sess.StartDate) {
			return StatusActive
		}
		return StatusUpcoming
	}
	return StatusEnded
}

// CurrentSession scans a visitor's sessions, most recent first, and returns
// the first one that is still usable (active or upcoming). Missed and ended
// sessions are skipped, so each visitor gets at most one reported session
// per webinar.
func CurrentSession(sessions []*store.WebinarSession, w *store.Webinar, now time.Time) (*store.WebinarSession, Status) {
	for _, sess := range sessions {
		switch status := StatusOf(sess, w, now); status {
		case StatusActive, StatusUpcoming:
			return sess, status
		}
	}
	return nil, StatusEnded
}
