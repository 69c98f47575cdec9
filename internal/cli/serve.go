package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kangarko/pacan-analytics/internal/server"
	"github.com/kangarko/pacan-analytics/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracking and analytics server",
	Long: `Start the HTTP server.

The server provides:
  - Event tracking with identity resolution at /api/track
  - Headline assignment at /api/headline
  - Webinar session endpoints under /api/webinar/
  - Token-protected experiment stats at /api/experiments

Example:
  pacan serve
  pacan serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides PACAN_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, cfg, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	if port > 0 {
		cfg.Port = port
	}
	cfg.DBPath = dbPath

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	srv := server.New(cfg, s, log)

	fmt.Printf("pacan running on http://localhost:%d\n", cfg.Port)
	fmt.Printf("Experiment stats: http://localhost:%d/api/experiments?token=%s\n", cfg.Port, srv.Token())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}
