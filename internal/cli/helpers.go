package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kangarko/pacan-analytics/internal/config"
	"github.com/kangarko/pacan-analytics/internal/logger"
	"github.com/kangarko/pacan-analytics/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// newLogger builds the process logger from the environment config.
func newLogger() (*zap.Logger, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return log, cfg, nil
}
