package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	"github.com/drblury/quoteflow/internal/runtime/metadata"
)

func dependency(t *testing.T, stats *HandlerStats, name string) DependencyHealth {
	t.Helper()
	for _, dep := range stats.Dependencies {
		if dep.Name == name {
			return dep
		}
	}
	t.Fatalf("dependency %s not tracked", name)
	return DependencyHealth{}
}

func TestHandlerStatsTracksOutcomes(t *testing.T) {
	stats := newHandlerStats("quote-outcomes", newResourceTracker())

	inv := stats.onMessageStart(newTestMessage())
	assert.Equal(t, uint64(1), stats.Backlog.InFlight)
	stats.onMessageFinish(inv, 2*time.Millisecond, nil)

	inv = stats.onMessageStart(newTestMessage())
	stats.onMessageFinish(inv, 4*time.Millisecond, &qerrors.PersistenceError{Key: "k", Cause: errors.New("disk full")})

	assert.Equal(t, uint64(2), stats.MessagesProcessed)
	assert.Equal(t, uint64(1), stats.MessagesFailed)
	assert.Equal(t, uint64(0), stats.Backlog.InFlight)
	assert.Equal(t, uint64(1), stats.Backlog.MaxInFlight)
	assert.Equal(t, uint64(1), stats.Errors.Persistence)
	assert.Contains(t, stats.Errors.LastError, "disk full")
	assert.Equal(t, 2, stats.Latency.SampleSize)
	assert.Equal(t, int64(4*time.Millisecond), stats.Latency.LastNs)
	assert.Equal(t, int64(3*time.Millisecond), stats.Latency.AverageNs)
	assert.Equal(t, uint64(2), stats.Throughput.TotalMessages)
	assert.Positive(t, stats.Resource.Goroutines)

	assert.Equal(t, DependencyStatusHealthy, dependency(t, stats, "subscriber:quote-outcomes").Status)
	store := dependency(t, stats, "store")
	assert.Equal(t, DependencyStatusDegraded, store.Status)
	assert.Contains(t, store.Details, "disk full")
}

func TestHandlerStatsHookFailureLeavesStoreStatus(t *testing.T) {
	stats := newHandlerStats("t", nil)

	stats.onMessageFinish(stats.onMessageStart(nil), time.Millisecond, &qerrors.HookError{Hook: "success", Cause: errors.New("no")})

	assert.Equal(t, uint64(1), stats.Errors.Hook)
	assert.Equal(t, DependencyStatusUnknown, dependency(t, stats, "store").Status)
}

func TestClassifyDispatchError(t *testing.T) {
	assert.Equal(t, ErrorCategoryNone, classifyDispatchError(nil))
	assert.Equal(t, ErrorCategoryUnprocessable, classifyDispatchError(unprocessable()))
	assert.Equal(t, ErrorCategoryHook, classifyDispatchError(&qerrors.HookError{Hook: "error", Cause: errors.New("x")}))
	assert.Equal(t, ErrorCategoryPersistence, classifyDispatchError(&qerrors.PersistenceError{Cause: errors.New("x")}))
	assert.Equal(t, ErrorCategoryOther, classifyDispatchError(errors.New("x")))
}

func TestProducerLag(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := message.NewMessage("1", nil)

	assert.Equal(t, int64(-1), producerLag(nil, now))
	assert.Equal(t, int64(-1), producerLag(msg, now))

	msg.Metadata.Set(metadata.KeyProducedAt, "yesterday")
	assert.Equal(t, int64(-1), producerLag(msg, now))

	msg.Metadata.Set(metadata.KeyProducedAt, now.Add(-1500*time.Millisecond).Format(time.RFC3339Nano))
	assert.Equal(t, int64(1500), producerLag(msg, now))

	msg.Metadata.Set(metadata.KeyProducedAt, now.Add(time.Second).Format(time.RFC3339Nano))
	assert.Equal(t, int64(0), producerLag(msg, now))
}

func TestLatencyWindowPercentiles(t *testing.T) {
	lw := newLatencyWindow(4)
	for _, ms := range []int{5, 1, 3, 2, 4} {
		lw.Add(time.Duration(ms) * time.Millisecond)
	}

	snap := lw.Snapshot()
	assert.Equal(t, 4, snap.SampleSize, "oldest sample is evicted")
	assert.Equal(t, int64(4*time.Millisecond), snap.LastNs)
	assert.Equal(t, int64(2500*time.Microsecond), snap.P50Ns)
	assert.Equal(t, int64(2500*time.Microsecond), snap.AverageNs)
}

func TestThroughputWindowDropsOldSamples(t *testing.T) {
	tw := newThroughputWindow(time.Minute)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tw.AddAndSnapshot(start)
	tw.AddAndSnapshot(start.Add(30 * time.Second))
	snap := tw.AddAndSnapshot(start.Add(90 * time.Second))

	assert.Equal(t, 2, snap.Count)
	assert.InDelta(t, 60, snap.WindowSeconds, 0.001)
}

func TestHandlerStatsMarshalJSON(t *testing.T) {
	stats := newHandlerStats("quote-outcomes", nil)
	stats.onMessageFinish(stats.onMessageStart(nil), time.Millisecond, nil)

	raw, err := stats.MarshalJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, jsoncodec.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 1, decoded["messages_processed"])
	assert.Contains(t, decoded, "latency")
	assert.NotContains(t, decoded, "topic")
}
