package cli

import (
	"fmt"

	"atsboost/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring and payment webhook HTTP server",
	Long: `Start an HTTP server exposing the ATS scoring API and the payment webhook.

Available endpoints:
- POST /api/v1/score: Score a CV, optionally against a job description
- DELETE /api/v1/cache: Clear the analysis cache
- POST /webhooks/payment: Signed payment provider callback (path configurable)
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

The webhook is enabled when a webhook secret and a datastore URL are configured.`,
	RunE: runServe,
}

var serveFlags struct {
	host string
	port string
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.port, "port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "Host to bind to (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	if serveFlags.port != "" {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.host != "" {
		cfg.Server.Host = serveFlags.host
	}

	components, err := server.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.LogError(err, "Failed to release server resources")
		}
	}()

	srv := server.NewServer(cfg, server.ServerConfigFrom(cfg, Version), components.Deps, logger)
	return srv.Start(cmd.Context())
}
