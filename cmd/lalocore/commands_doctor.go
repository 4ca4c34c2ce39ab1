package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// buildDoctorCmd creates the "doctor" command: a startup diagnostics pass
// over configuration, the model catalogue, and provider credentials,
// grounded in the teacher's doctor.AuditServices checklist pattern.
func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run startup diagnostics without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			return runDoctor(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML/JSON5 configuration file")
	return cmd
}

type checkResult struct {
	name string
	ok   bool
	note string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	var results []checkResult

	cfg, err := loadOrDefaultConfig(configPath)
	if err != nil {
		results = append(results, checkResult{"config load", false, err.Error()})
		printDoctorReport(out, results)
		return nil
	}
	results = append(results, checkResult{"config load", true, configPath})

	c, err := buildCore(cfg)
	if err != nil {
		results = append(results, checkResult{"core wiring", false, err.Error()})
		printDoctorReport(out, results)
		return nil
	}
	results = append(results, checkResult{"core wiring", true, ""})

	descriptors := c.registry.List(nil)
	unavailable := 0
	for _, d := range descriptors {
		if d.Unavailable {
			unavailable++
		}
	}
	results = append(results, checkResult{
		"model catalogue",
		unavailable == 0,
		fmt.Sprintf("%d models, %d unavailable", len(descriptors), unavailable),
	})

	results = append(results, credentialCheck("OPENAI_API_KEY", lalocore.BackendCloudOpenAI, descriptors)...)
	results = append(results, credentialCheck("ANTHROPIC_API_KEY", lalocore.BackendCloudAnthropic, descriptors)...)

	printDoctorReport(out, results)
	return nil
}

// credentialCheck reports whether envVar is set, but only when the
// catalogue actually declares a model for backend — an unset key for a
// provider nobody routes to is not a misconfiguration.
func credentialCheck(envVar string, backend lalocore.Backend, descriptors []lalocore.ModelDescriptor) []checkResult {
	used := false
	for _, d := range descriptors {
		if d.Backend == backend {
			used = true
			break
		}
	}
	if !used {
		return nil
	}
	_, set := os.LookupEnv(envVar)
	note := "set"
	if !set {
		note = "not set"
	}
	return []checkResult{{fmt.Sprintf("%s (%s)", envVar, backend), set, note}}
}

func printDoctorReport(out io.Writer, results []checkResult) {
	for _, r := range results {
		status := "OK  "
		if !r.ok {
			status = "FAIL"
		}
		line := fmt.Sprintf("[%s] %s", status, r.name)
		if r.note != "" {
			line += ": " + r.note
		}
		fmt.Fprintln(out, line)
	}
}
