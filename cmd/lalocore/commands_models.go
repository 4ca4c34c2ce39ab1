package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lalosystems/lalocore/internal/cloud"
)

// buildModelsCmd creates the "models" command group.
func buildModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the configured Model Registry",
	}
	cmd.AddCommand(buildModelsListCmd())
	cmd.AddCommand(buildModelsDiscoverCmd())
	return cmd
}

func buildModelsListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every model in the catalogue, including unavailable ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			cfg, err := loadOrDefaultConfig(configPath)
			if err != nil {
				return err
			}
			c, err := buildCore(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			descriptors := c.registry.List(nil)
			if len(descriptors) == 0 {
				fmt.Fprintln(out, "no models configured")
				return nil
			}
			for _, d := range descriptors {
				status := "available"
				if d.Unavailable {
					status = "unavailable"
				}
				fmt.Fprintf(out, "%-24s backend=%-16s specialty=%-12s context=%-8d %s\n",
					d.ID, d.Backend, d.Specialty, d.ContextWindow, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML/JSON5 configuration file")
	return cmd
}

// buildModelsDiscoverCmd queries the AWS Bedrock control plane directly,
// bypassing the declarative catalogue — useful for finding a model id to
// add to the config file rather than for routing traffic.
func buildModelsDiscoverCmd() *cobra.Command {
	var (
		region   string
		provider string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List available AWS Bedrock foundation models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []string
			if provider != "" {
				filter = []string{provider}
			}
			descriptors, err := cloud.DiscoverBedrockModels(cmd.Context(), cloud.DiscoveryConfig{
				Region:         region,
				ProviderFilter: filter,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(descriptors) == 0 {
				fmt.Fprintln(out, "no bedrock foundation models found")
				return nil
			}
			for _, d := range descriptors {
				fmt.Fprintf(out, "%-48s context=%d\n", d.ID, d.ContextWindow)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "us-east-1", "AWS region to query")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider name, e.g. anthropic")
	return cmd
}
