// Package main provides the CLI entry point for the LALO core router and
// multi-agent orchestrator.
//
// LALO core routes a request across local and cloud models, executing a
// plan of generation and tool-call steps, scoring the result with a
// Confidence Validator, and recording usage/fallback telemetry.
//
// # Basic Usage
//
// Start the server:
//
//	lalocore serve --config lalocore.yaml
//
// List the configured model catalogue:
//
//	lalocore models list
//
// Run startup diagnostics without serving:
//
//	lalocore doctor
//
// # Environment Variables
//
//   - LALOCORE_CONFIG: path to the configuration file (default: lalocore.yaml)
//   - OPENAI_API_KEY: OpenAI API key for cloud_openai models
//   - ANTHROPIC_API_KEY: Anthropic API key for cloud_anthropic models
//   - AWS credentials (standard SDK chain): for cloud_other (Bedrock) models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lalocore",
		Short: "LALO core: request router and multi-agent orchestrator",
		Long: `LALO core routes prompts across local and cloud models, runs
multi-step plans through the Agent Orchestrator, validates output
confidence, and records usage and fallback telemetry.`,
		Version: version,
	}
	root.SetVersionTemplate(fmt.Sprintf("lalocore %s (commit %s, built %s)\n", version, commit, date))

	root.AddCommand(buildServeCmd())
	root.AddCommand(buildModelsCmd())
	root.AddCommand(buildDoctorCmd())
	return root
}

func defaultConfigPath() string {
	if v := os.Getenv("LALOCORE_CONFIG"); v != "" {
		return v
	}
	return "lalocore.yaml"
}
