package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/config"
	"github.com/kangarko/pacan-analytics/internal/funnel"
	"github.com/kangarko/pacan-analytics/internal/headline"
	"github.com/kangarko/pacan-analytics/internal/identity"
	"github.com/kangarko/pacan-analytics/internal/logger"
	"github.com/kangarko/pacan-analytics/internal/store"
	"github.com/kangarko/pacan-analytics/internal/webinar"
)

type Server struct {
	store      *store.SQLiteStore
	resolver   *identity.Resolver
	assigner   *headline.Assigner
	aggregator *funnel.Aggregator
	webinars   *webinar.Service
	cookies    *CookieJar
	logger     *zap.Logger
	port       int
	token      string
	tokenFile  string
	router     *http.ServeMux
	startTime  time.Time
}

func New(cfg *config.Config, s *store.SQLiteStore, log *zap.Logger) *Server {
	srv := &Server{
		store:      s,
		resolver:   identity.NewResolver(s, logger.WithComponent(log, "identity")),
		assigner:   headline.NewAssigner(s, logger.WithComponent(log, "headline")),
		aggregator: funnel.NewAggregator(s, logger.WithComponent(log, "funnel")),
		webinars:   webinar.NewService(s, logger.WithComponent(log, "webinar")),
		cookies:    NewCookieJar(cfg.CookieDomain, cfg.CookieMaxAge),
		logger:     logger.WithComponent(log, "server"),
		port:       cfg.Port,
		token:      generateToken(),
		tokenFile:  cfg.TokenFile,
		router:     http.NewServeMux(),
		startTime:  time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/track", s.handleTrack)
	s.router.HandleFunc("/api/headline", s.handleHeadline)
	s.router.HandleFunc("/api/webinar/start", s.handleWebinarStart)
	s.router.HandleFunc("/api/webinar/ping", s.handleWebinarPing)
	s.router.HandleFunc("/api/webinar/current", s.handleWebinarCurrent)

	// Operator endpoints (protected)
	s.router.Handle("/api/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperiments)))
}

func (s *Server) Start() error {
	// Write token to file for the otp command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("server listening",
		zap.String("addr", addr),
		zap.String("dashboard_token", s.token),
	)

	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
