package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scanforge/serialscan/internal/server"
)

// serveCmd starts the HTTP/WebSocket scanning server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP scanning server",
	Long: `Start an HTTP server exposing the scanning pipeline.

Endpoints:
  POST /v1/scan    - scan an uploaded frame sequence
  GET  /v1/scan/ws - live scanning over WebSocket
  GET  /healthz    - health and degraded-model report
  GET  /metrics    - Prometheus metrics

Examples:
  serialscan serve
  serialscan serve --addr 0.0.0.0:8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := globalConfig
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	pipe, err := buildPipeline(cfg, cfg.Pipeline())
	if err != nil {
		return err
	}
	defer pipe.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server, pipe, server.NewMetrics())
	return srv.ListenAndServe(ctx)
}
