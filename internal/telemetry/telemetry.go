// Package telemetry implements the Telemetry Sink: an append-only,
// best-effort recorder of Usage Records, per-step audit entries, and
// Fallback Traces. A sink failure never fails the request it describes —
// every write path swallows its own errors after logging them. The
// in-memory buffer is adapted from the teacher's usage.Tracker (bounded
// by age and count); a cron job periodically flushes it to the external
// repository the core depends on but does not own.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lalosystems/lalocore/internal/observability"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Repository is the narrow external collaborator interface the core
// depends on for persistence, named directly after the spec's
// record_usage/attach_fallbacks/store_feedback contract.
type Repository interface {
	RecordUsage(ctx context.Context, record lalocore.UsageRecord) error
	AttachFallbacks(ctx context.Context, trace lalocore.FallbackTrace) error
}

// AuditEntry is a per-step debug-level record, kept only in the in-memory
// ring (not persisted) unless a Repository extension wants it.
type AuditEntry struct {
	RequestID string
	StepID    int
	Message   string
	Timestamp time.Time
}

// Config bounds the in-memory buffer and the flush cadence.
type Config struct {
	MaxAge        time.Duration
	MaxRecords    int
	FlushInterval time.Duration
}

// Sink buffers Usage Records, Fallback Traces, and audit entries in
// memory and periodically flushes them to a Repository. All public
// methods are safe to call concurrently and never return an error to the
// caller — failures are logged and absorbed.
type Sink struct {
	log *observability.Logger

	mu       sync.Mutex
	usage    []lalocore.UsageRecord
	traces   []lalocore.FallbackTrace
	audit    []AuditEntry
	maxAge   time.Duration
	maxCount int

	repo Repository
	cron *cron.Cron
}

// New creates a Sink. repo may be nil, in which case the sink retains an
// in-memory buffer only and flush is a no-op (useful for demo mode or
// tests).
func New(repo Repository, log *observability.Logger, cfg Config) *Sink {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 10000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	return &Sink{
		log:      log,
		maxAge:   cfg.MaxAge,
		maxCount: cfg.MaxRecords,
		repo:     repo,
	}
}

// RecordUsage appends a Usage Record to the in-memory buffer. Best-effort:
// it never blocks the caller on a repository round trip.
func (s *Sink) RecordUsage(ctx context.Context, record lalocore.UsageRecord) {
	if record.RequestID == "" {
		record.RequestID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.usage = append(s.usage, record)
	s.pruneLocked()
	s.mu.Unlock()
}

// RecordFallback appends a Fallback Trace, produced whenever the
// Orchestrator retries or escalates.
func (s *Sink) RecordFallback(ctx context.Context, trace lalocore.FallbackTrace) {
	s.mu.Lock()
	s.traces = append(s.traces, trace)
	s.mu.Unlock()
}

// RecordAudit appends a per-step debug-level audit entry.
func (s *Sink) RecordAudit(ctx context.Context, entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.audit = append(s.audit, entry)
	s.mu.Unlock()
}

// pruneLocked drops usage records older than maxAge or beyond maxCount;
// callers must hold s.mu.
func (s *Sink) pruneLocked() {
	cutoff := time.Now().Add(-s.maxAge)
	startIdx := 0
	for i, r := range s.usage {
		if r.Timestamp.After(cutoff) {
			startIdx = i
			break
		}
		startIdx = i + 1
	}
	if startIdx > 0 {
		s.usage = s.usage[startIdx:]
	}
	if len(s.usage) > s.maxCount {
		s.usage = s.usage[len(s.usage)-s.maxCount:]
	}
}

// Snapshot returns a copy of the currently buffered usage records, for
// tests and introspection.
func (s *Sink) Snapshot() []lalocore.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lalocore.UsageRecord, len(s.usage))
	copy(out, s.usage)
	return out
}

// Flush drains the in-memory buffer to the Repository. A per-record
// failure is logged and the record is dropped rather than retried
// indefinitely — telemetry is best-effort by design.
func (s *Sink) Flush(ctx context.Context) {
	if s.repo == nil {
		return
	}
	s.mu.Lock()
	pending := s.usage
	s.usage = nil
	traces := s.traces
	s.traces = nil
	s.mu.Unlock()

	for _, record := range pending {
		if err := s.repo.RecordUsage(ctx, record); err != nil && s.log != nil {
			s.log.Warn(ctx, "telemetry: failed to persist usage record", "request_id", record.RequestID, "error", err.Error())
		}
	}
	for _, trace := range traces {
		if err := s.repo.AttachFallbacks(ctx, trace); err != nil && s.log != nil {
			s.log.Warn(ctx, "telemetry: failed to persist fallback trace", "request_id", trace.RequestID, "error", err.Error())
		}
	}
}

// StartPeriodicFlush schedules Flush on the configured interval using a
// cron job, mirroring how the teacher schedules background maintenance
// work. Call Stop to halt it.
func (s *Sink) StartPeriodicFlush(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.cron = cron.New(cron.WithSeconds())
	spec := "@every " + interval.String()
	_, _ = s.cron.AddFunc(spec, func() { s.Flush(ctx) })
	s.cron.Start()
}

// Stop halts the periodic flush job, if one was started.
func (s *Sink) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
