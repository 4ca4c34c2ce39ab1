package main

import (
	"context"
	"os"
	"time"

	"github.com/lalosystems/lalocore/internal/cloud"
	"github.com/lalosystems/lalocore/internal/confidence"
	"github.com/lalosystems/lalocore/internal/config"
	"github.com/lalosystems/lalocore/internal/handler"
	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/observability"
	"github.com/lalosystems/lalocore/internal/orchestrator"
	"github.com/lalosystems/lalocore/internal/registry"
	"github.com/lalosystems/lalocore/internal/routing"
	"github.com/lalosystems/lalocore/internal/telemetry"
	"github.com/lalosystems/lalocore/internal/tools"
	"github.com/lalosystems/lalocore/internal/usage"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// core bundles every component buildCore wires together, so commands_*.go
// can reach into exactly the pieces they need without re-running wiring.
type core struct {
	cfg      *config.Config
	log      *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	shutdown func(context.Context) error

	registry  *registry.Registry
	pool      *inference.Pool
	cloud     *cloud.Adapter
	router    *routing.Router
	validator *confidence.Validator
	toolExec  *tools.Executor
	telemetry *telemetry.Sink
	handler   *handler.Handler
}

// buildCore wires the Model Registry, Local Inference Pool, Cloud Adapter,
// Router, Confidence Validator, Tool Executor, Agent Orchestrator,
// Telemetry Sink, and Request Handler façade from cfg, the way the
// teacher's gateway.NewManagedServer assembles its channel/provider stack
// from one Config value.
func buildCore(cfg *config.Config) (*core, error) {
	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "lalocore",
	})

	reg, err := registry.New(cfg.Models)
	if err != nil {
		return nil, err
	}

	pool := inference.New(reg, inference.Config{
		MemoryBudgetBytes: cfg.MemoryBudgetBytes,
		LoadTimeout:       time.Duration(cfg.ModelLoadTimeoutSeconds) * time.Second,
		DemoMode:          cfg.DemoMode,
	})

	cloudAdapter := cloud.New(reg, map[lalocore.Backend]cloud.Backend{
		lalocore.BackendCloudOpenAI:    &cloud.OpenAIBackend{},
		lalocore.BackendCloudAnthropic: &cloud.AnthropicBackend{},
		lalocore.BackendCloudOther:     &cloud.BedrockBackend{},
	})

	router := routing.New(reg, nil, routing.Config{
		FailureCooldown: time.Duration(cfg.FailureCooldownSeconds) * time.Second,
	})

	validator := confidence.New(nil, confidence.Config{
		AcceptThreshold:   cfg.ConfidenceAcceptThreshold,
		EscalateThreshold: cfg.ConfidenceEscalateThreshold,
		Patterns:          cfg.ConfidenceEvasivePatterns,
	})

	resolver := tools.NewResolver()
	toolExec := tools.NewExecutor(resolver, time.Duration(cfg.GenerationTimeoutSeconds)*time.Second)
	tools.RegisterBuiltins(toolExec)

	sink := telemetry.New(nil, log, telemetry.Config{
		MaxAge:        time.Duration(cfg.UsageMaxAgeSeconds) * time.Second,
		MaxRecords:    cfg.UsageMaxRecords,
		FlushInterval: time.Duration(cfg.UsageFlushIntervalSeconds) * time.Second,
	})

	prices := usage.PriceTable{
		cfg.DefaultCodeModel:  {InputPerMillion: 3, OutputPerMillion: 15},
		cfg.DefaultComplexModel: {InputPerMillion: 3, OutputPerMillion: 15},
	}

	orch := orchestrator.New(
		handler.NewGenerator(reg, pool, cloudAdapter, credentialsFromEnv),
		handler.NewToolExecutor(toolExec),
		validator,
		orchestrator.Config{
			MaxParallelSteps:  cfg.MaxParallelStepsPerRequest,
			MaxRetriesPerStep: cfg.MaxRetriesPerStep,
			Prices:            prices,
		},
	)

	h := handler.New(reg, router, orch, sink, handler.Config{
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})

	return &core{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		tracer:    tracer,
		shutdown:  shutdownTracer,
		registry:  reg,
		pool:      pool,
		cloud:     cloudAdapter,
		router:    router,
		validator: validator,
		toolExec:  toolExec,
		telemetry: sink,
		handler:   h,
	}, nil
}

// credentialsFromEnv reads provider credentials from the process
// environment, scoped per call rather than cached, mirroring the
// teacher's per-request provider credential lookup. userID is accepted
// (not used here) so a multi-tenant deployment can swap this for a
// per-user credential store without changing the Generator contract.
func credentialsFromEnv(userID string) cloud.Credentials {
	return cloud.Credentials{
		APIKey: firstNonEmpty(os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY")),
		Region: os.Getenv("AWS_REGION"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
