package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

type fakeRepo struct {
	usage     []lalocore.UsageRecord
	fallbacks []lalocore.FallbackTrace
	usageErr  error
}

func (f *fakeRepo) RecordUsage(ctx context.Context, record lalocore.UsageRecord) error {
	if f.usageErr != nil {
		return f.usageErr
	}
	f.usage = append(f.usage, record)
	return nil
}

func (f *fakeRepo) AttachFallbacks(ctx context.Context, trace lalocore.FallbackTrace) error {
	f.fallbacks = append(f.fallbacks, trace)
	return nil
}

func TestRecordUsageAssignsIDAndTimestamp(t *testing.T) {
	sink := New(nil, nil, Config{})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "m1"})

	snap := sink.Snapshot()
	require.Len(t, snap, 1)
	require.NotEmpty(t, snap[0].RequestID)
	require.False(t, snap[0].Timestamp.IsZero())
}

func TestRecordUsagePreservesSuppliedID(t *testing.T) {
	sink := New(nil, nil, Config{})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{RequestID: "req-1", ModelID: "m1"})

	snap := sink.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "req-1", snap[0].RequestID)
}

func TestPruneDropsRecordsBeyondMaxCount(t *testing.T) {
	sink := New(nil, nil, Config{MaxRecords: 2})
	for i := 0; i < 5; i++ {
		sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "m1"})
	}

	snap := sink.Snapshot()
	require.Len(t, snap, 2)
}

func TestPruneDropsRecordsOlderThanMaxAge(t *testing.T) {
	sink := New(nil, nil, Config{MaxAge: time.Hour})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "stale", Timestamp: time.Now().Add(-2 * time.Hour)})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "fresh", Timestamp: time.Now()})

	snap := sink.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "fresh", snap[0].ModelID)
}

func TestFlushDrainsBufferToRepository(t *testing.T) {
	repo := &fakeRepo{}
	sink := New(repo, nil, Config{})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "m1"})
	sink.RecordFallback(context.Background(), lalocore.FallbackTrace{RequestID: "req-1"})

	sink.Flush(context.Background())

	require.Len(t, repo.usage, 1)
	require.Len(t, repo.fallbacks, 1)
	require.Empty(t, sink.Snapshot())
}

func TestFlushWithNilRepositoryIsNoop(t *testing.T) {
	sink := New(nil, nil, Config{})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "m1"})

	require.NotPanics(t, func() { sink.Flush(context.Background()) })
	require.Len(t, sink.Snapshot(), 1)
}

func TestFlushDropsFailedRecordRatherThanRetrying(t *testing.T) {
	repo := &fakeRepo{usageErr: errors.New("db unavailable")}
	sink := New(repo, nil, Config{})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "m1"})

	require.NotPanics(t, func() { sink.Flush(context.Background()) })
	require.Empty(t, sink.Snapshot())
	require.Empty(t, repo.usage)
}

func TestRecordAuditAppendsEntry(t *testing.T) {
	sink := New(nil, nil, Config{})
	sink.RecordAudit(context.Background(), AuditEntry{RequestID: "req-1", StepID: 0, Message: "step started"})

	require.Len(t, sink.audit, 1)
	require.Equal(t, "req-1", sink.audit[0].RequestID)
	require.False(t, sink.audit[0].Timestamp.IsZero())
}

func TestStartAndStopPeriodicFlush(t *testing.T) {
	repo := &fakeRepo{}
	sink := New(repo, nil, Config{})
	sink.RecordUsage(context.Background(), lalocore.UsageRecord{ModelID: "m1"})

	sink.StartPeriodicFlush(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(repo.usage) == 1
	}, time.Second, 5*time.Millisecond)
	sink.Stop()
}
