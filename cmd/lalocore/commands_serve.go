package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the router and
// orchestrator with the configured model catalogue, plus a diagnostics
// HTTP endpoint (/healthz, /metrics).
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		httpAddr   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LALO core router and orchestrator",
		Long: `Start LALO core: load the model catalogue, build the Router,
Agent Orchestrator, Confidence Validator, and Telemetry Sink, and serve a
diagnostics HTTP endpoint for health checks and Prometheus scraping.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  lalocore serve

  # Start with a custom config and debug logging
  lalocore serve --config /etc/lalocore/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			return runServe(cmd.Context(), configPath, debug, httpAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML/JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "Address for the diagnostics HTTP endpoint")
	return cmd
}
