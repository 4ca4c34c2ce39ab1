// Package config loads and validates LALO core configuration. Loading
// (YAML/JSON5 with $include resolution) is handled by loader.go; this file
// defines the Config shape recognised by spec.md's external interfaces
// section and the defaults applied when a field is left unset.
package config

import (
	"time"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Config is the full set of recognised configuration options. Field names
// follow the external-interfaces option list verbatim so that operators
// configuring a deployment can map spec language directly onto YAML keys.
type Config struct {
	DemoMode          bool   `yaml:"demo_mode"`
	ModelDir          string `yaml:"model_dir"`
	MemoryBudgetBytes int64  `yaml:"memory_budget_bytes"`

	DefaultSimpleModel     string `yaml:"default_simple_model"`
	DefaultComplexModel    string `yaml:"default_complex_model"`
	DefaultCodeModel       string `yaml:"default_code_model"`
	DefaultMathModel       string `yaml:"default_math_model"`
	DefaultRoutingModel    string `yaml:"default_routing_model"`
	DefaultValidationModel string `yaml:"default_validation_model"`

	MaxParallelStepsPerRequest int `yaml:"max_parallel_steps_per_request"`
	RequestTimeoutSeconds      int `yaml:"request_timeout_seconds"`
	GenerationTimeoutSeconds   int `yaml:"generation_timeout_seconds"`
	ModelLoadTimeoutSeconds    int `yaml:"model_load_timeout_seconds"`

	ConfidenceAcceptThreshold   float64 `yaml:"confidence_accept_threshold"`
	ConfidenceEscalateThreshold float64 `yaml:"confidence_escalate_threshold"`
	MaxRetriesPerStep           int     `yaml:"max_retries_per_step"`

	// ConfidenceEvasivePatterns extends the Confidence Validator's default
	// evasive-text regex set with deployment-specific phrasing, so an
	// operator can tune detection without a code change.
	ConfidenceEvasivePatterns []string `yaml:"confidence_evasive_patterns"`

	// FailureCooldownSeconds governs how long the Router avoids a model
	// after it errors (supplemented feature, grounded in the teacher's
	// Router.failureCooldown).
	FailureCooldownSeconds int `yaml:"failure_cooldown_seconds"`

	// UsageMaxAgeSeconds / UsageMaxRecords bound the Telemetry Sink's
	// in-memory buffer before flush (supplemented feature, grounded in the
	// teacher's usage.TrackerConfig).
	UsageMaxAgeSeconds int `yaml:"usage_max_age_seconds"`
	UsageMaxRecords    int `yaml:"usage_max_records"`

	// UsageFlushIntervalSeconds schedules the periodic best-effort flush
	// of the Telemetry Sink's buffer to the external record_usage
	// repository.
	UsageFlushIntervalSeconds int `yaml:"usage_flush_interval_seconds"`

	Log LogConfig `yaml:"log"`

	// Models is the declarative Model Registry catalogue, loaded straight
	// off the config document so an operator edits one file to add a
	// model. Mirrors the teacher's practice of declaring its provider
	// catalogue inline in nexus.yaml rather than a separate file.
	Models []lalocore.ModelDescriptor `yaml:"models"`
}

// LogConfig mirrors observability.LogConfig's recognised YAML keys so it
// can be embedded directly in the top-level Config document.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		DemoMode:          false,
		ModelDir:          "./models",
		MemoryBudgetBytes: 8 << 30,

		DefaultSimpleModel:     "simple-general",
		DefaultComplexModel:    "complex-routing",
		DefaultCodeModel:       "code-specialist",
		DefaultMathModel:       "math-specialist",
		DefaultRoutingModel:    "routing-classifier",
		DefaultValidationModel: "validation-scorer",

		MaxParallelStepsPerRequest: 2,
		RequestTimeoutSeconds:      300,
		GenerationTimeoutSeconds:   120,
		ModelLoadTimeoutSeconds:    60,

		ConfidenceAcceptThreshold:   0.8,
		ConfidenceEscalateThreshold: 0.6,
		MaxRetriesPerStep:           2,

		FailureCooldownSeconds: 30,

		UsageMaxAgeSeconds: int((24 * time.Hour).Seconds()),
		UsageMaxRecords:    10000,

		UsageFlushIntervalSeconds: 60,

		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// applyDefaults fills zero-valued fields of cfg from Default(), the way the
// teacher's NewOrchestrator seeds MultiAgentConfig defaults field by field.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.ModelDir == "" {
		cfg.ModelDir = d.ModelDir
	}
	if cfg.MemoryBudgetBytes == 0 {
		cfg.MemoryBudgetBytes = d.MemoryBudgetBytes
	}
	if cfg.DefaultSimpleModel == "" {
		cfg.DefaultSimpleModel = d.DefaultSimpleModel
	}
	if cfg.DefaultComplexModel == "" {
		cfg.DefaultComplexModel = d.DefaultComplexModel
	}
	if cfg.DefaultCodeModel == "" {
		cfg.DefaultCodeModel = d.DefaultCodeModel
	}
	if cfg.DefaultMathModel == "" {
		cfg.DefaultMathModel = d.DefaultMathModel
	}
	if cfg.DefaultRoutingModel == "" {
		cfg.DefaultRoutingModel = d.DefaultRoutingModel
	}
	if cfg.DefaultValidationModel == "" {
		cfg.DefaultValidationModel = d.DefaultValidationModel
	}
	if cfg.MaxParallelStepsPerRequest == 0 {
		cfg.MaxParallelStepsPerRequest = d.MaxParallelStepsPerRequest
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if cfg.GenerationTimeoutSeconds == 0 {
		cfg.GenerationTimeoutSeconds = d.GenerationTimeoutSeconds
	}
	if cfg.ModelLoadTimeoutSeconds == 0 {
		cfg.ModelLoadTimeoutSeconds = d.ModelLoadTimeoutSeconds
	}
	if cfg.ConfidenceAcceptThreshold == 0 {
		cfg.ConfidenceAcceptThreshold = d.ConfidenceAcceptThreshold
	}
	if cfg.ConfidenceEscalateThreshold == 0 {
		cfg.ConfidenceEscalateThreshold = d.ConfidenceEscalateThreshold
	}
	if cfg.MaxRetriesPerStep == 0 {
		cfg.MaxRetriesPerStep = d.MaxRetriesPerStep
	}
	if cfg.FailureCooldownSeconds == 0 {
		cfg.FailureCooldownSeconds = d.FailureCooldownSeconds
	}
	if cfg.UsageMaxAgeSeconds == 0 {
		cfg.UsageMaxAgeSeconds = d.UsageMaxAgeSeconds
	}
	if cfg.UsageMaxRecords == 0 {
		cfg.UsageMaxRecords = d.UsageMaxRecords
	}
	if cfg.UsageFlushIntervalSeconds == 0 {
		cfg.UsageFlushIntervalSeconds = d.UsageFlushIntervalSeconds
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}

// Load reads and parses a configuration file at path, resolving $include
// directives, then applies defaults for any unset field.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}
