package store

import (
	"context"
	"sync"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

// Memory keeps outcomes in a map. It backs tests and the single-process
// channel deployment.
type Memory struct {
	mu       sync.RWMutex
	outcomes map[string]Outcome
	upserts  int
}

func NewMemory() *Memory {
	return &Memory{outcomes: make(map[string]Outcome)}
}

func (m *Memory) Upsert(ctx context.Context, o Outcome) error {
	if err := validate(o); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return persistenceError(o.Key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[o.Key] = o
	m.upserts++
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outcomes[key]
	if !ok {
		return Outcome{}, qerrors.ErrOutcomeNotFound
	}
	return o, nil
}

// Len reports the number of distinct keys stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.outcomes)
}

// Upserts reports how many Upsert calls succeeded.
func (m *Memory) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

func (m *Memory) Close() error { return nil }
