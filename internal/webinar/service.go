package webinar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/store"
)

// Store is the slice of the datastore the webinar service needs.
type Store interface {
	GetWebinar(ctx context.Context, id int64) (*store.Webinar, error)
	CreateWebinarSession(ctx context.Context, s *store.WebinarSession) error
	SessionsByUser(ctx context.Context, webinarID, userID int64) ([]*store.WebinarSession, error)
	AddWatchtime(ctx context.Context, sessionID int64, seconds int64) error
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(s Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// StartSession creates a scheduled sitting for a visitor with a unique join
// token.
func (s *Service) StartSession(ctx context.Context, webinarID, userID int64, scheduleID string, startDate time.Time) (*store.WebinarSession, error) {
	if _, err := s.store.GetWebinar(ctx, webinarID); err != nil {
		return nil, fmt.Errorf("failed to load webinar %d: %w", webinarID, err)
	}

	sess := &store.WebinarSession{
		WebinarID:  webinarID,
		UserID:     userID,
		StartDate:  startDate,
		ScheduleID: scheduleID,
		JoinToken:  uuid.NewString(),
	}
	if err := s.store.CreateWebinarSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create webinar session: %w", err)
	}

	s.logger.Info("webinar session started",
		zap.Int64("webinar_id", webinarID),
		zap.Int64("user_id", userID),
		zap.Int64("session_id", sess.ID),
	)

	return sess, nil
}

// RecordWatchtime adds a client ping's worth of seconds to a session.
func (s *Service) RecordWatchtime(ctx context.Context, sessionID, seconds int64) error {
	if seconds <= 0 {
		return fmt.Errorf("watchtime must be positive, got %d", seconds)
	}
	if err := s.store.AddWatchtime(ctx, sessionID, seconds); err != nil {
		return fmt.Errorf("failed to record watchtime: %w", err)
	}
	return nil
}

// CurrentForVisitor returns the visitor's one usable session for a webinar,
// or nil when every session is missed or over.
func (s *Service) CurrentForVisitor(ctx context.Context, webinarID, userID int64, now time.Time) (*store.WebinarSession, Status, error) {
	w, err := s.store.GetWebinar(ctx, webinarID)
	if err != nil {
		return nil, StatusEnded, fmt.Errorf("failed to load webinar %d: %w", webinarID, err)
	}

	sessions, err := s.store.SessionsByUser(ctx, webinarID, userID)
	if err != nil {
		return nil, StatusEnded, fmt.Errorf("failed to load sessions: %w", err)
	}

	sess, status := CurrentSession(sessions, w, now)
	return sess, status, nil
}
