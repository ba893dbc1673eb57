// Package store persists one definite outcome per correlation key.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
)

// Status is the dispatch branch an outcome went through.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
	StatusProtocolError Status = "protocol_error"
)

// Outcome is the durable record keyed by correlation key. Payload holds the
// quote or failure JSON exactly as it was dispatched.
type Outcome struct {
	Key          string    `json:"correlation_key"`
	Status       Status    `json:"status"`
	EnvelopeType string    `json:"envelope_type"`
	Kind         string    `json:"kind,omitempty"`
	Payload      string    `json:"payload"`
	Topic        string    `json:"topic,omitempty"`
	Partition    int32     `json:"partition"`
	Offset       int64     `json:"offset"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is an idempotent outcome sink. Upsert with an existing key replaces
// the record and never creates a second one.
type Store interface {
	Upsert(ctx context.Context, o Outcome) error
	// Get returns errors.ErrOutcomeNotFound for unknown keys.
	Get(ctx context.Context, key string) (Outcome, error)
	Close() error
}

// Open builds the store named by driver. dsn is ignored by the memory store.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("quoteflow: unsupported store driver %q", driver)
	}
}

func persistenceError(key string, err error) error {
	if err == nil {
		return nil
	}
	return &qerrors.PersistenceError{Key: key, Cause: err}
}

func validate(o Outcome) error {
	if o.Key == "" {
		return persistenceError("", fmt.Errorf("correlation key is required"))
	}
	return nil
}
