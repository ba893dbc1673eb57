package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

func sampleOutcome(key string) Outcome {
	return Outcome{
		Key:          key,
		Status:       StatusSuccess,
		EnvelopeType: "SUCCESS",
		Kind:         "currency",
		Payload:      `{"kind":"currency"}`,
		Topic:        "quote-outcomes",
		Partition:    2,
		Offset:       41,
		UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, qerrors.ErrOutcomeNotFound)

	first := sampleOutcome("k-1")
	require.NoError(t, s.Upsert(ctx, first))
	require.NoError(t, s.Upsert(ctx, first), "repeated upsert with equal payload must succeed")

	got, err := s.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, first.Status, got.Status)
	assert.Equal(t, first.Payload, got.Payload)
	assert.Equal(t, first.Partition, got.Partition)
	assert.Equal(t, first.Offset, got.Offset)
	assert.True(t, first.UpdatedAt.Equal(got.UpdatedAt))

	replaced := first
	replaced.Status = StatusError
	replaced.EnvelopeType = "ERROR"
	replaced.Payload = `{"kind":"remote_fatal"}`
	require.NoError(t, s.Upsert(ctx, replaced))

	got, err = s.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, `{"kind":"remote_fatal"}`, got.Payload)

	err = s.Upsert(ctx, Outcome{})
	assert.ErrorIs(t, err, qerrors.ErrPersistence)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 3, m.Upserts())
}

func TestMemoryStoreConcurrentDistinctKeys(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k-%d", i%25)
			assert.NoError(t, m.Upsert(context.Background(), sampleOutcome(key)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, m.Len())
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().Upsert(ctx, sampleOutcome("k"))
	assert.ErrorIs(t, err, qerrors.ErrPersistence)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM quote_outcomes`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("QUOTEFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUOTEFLOW_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.Exec(`DELETE FROM quote_outcomes WHERE correlation_key = 'k-1'`)
		_ = s.Close()
	})

	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("QUOTEFLOW_TEST_REDIS_URL")
	if url == "" {
		t.Skip("QUOTEFLOW_TEST_REDIS_URL not set")
	}
	s, err := OpenRedis(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Del(context.Background(), redisKey("k-1")).Err()
		_ = s.Close()
	})

	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), "mongo", "")
	assert.ErrorContains(t, err, `unsupported store driver "mongo"`)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "quoteflow:outcome:abc", redisKey("abc"))
}
