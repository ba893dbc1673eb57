package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	"github.com/drblury/quoteflow/internal/runtime/logging"
	"github.com/drblury/quoteflow/internal/runtime/store"
)

// DispatchState names the stages an inbound envelope moves through.
type DispatchState string

const (
	StateReceived             DispatchState = "received"
	StateObserved             DispatchState = "observed"
	StateSuccessHandled       DispatchState = "success_handled"
	StateErrorHandled         DispatchState = "error_handled"
	StateProtocolErrorHandled DispatchState = "protocol_error_handled"
	StatePersisted            DispatchState = "persisted"
)

// Inbound is one envelope taken off the broker.
type Inbound struct {
	Key      string
	Envelope envelope.Envelope
	Delivery Delivery
}

// UnprocessableEventError marks a message that can never be dispatched, such
// as one without a correlation key. The router sends these to the poison
// queue instead of retrying them.
type UnprocessableEventError struct {
	eventMessage string
	err          error
}

func (e *UnprocessableEventError) Error() string {
	return "unprocessable event: " + e.eventMessage + " error: " + e.err.Error()
}

func (e *UnprocessableEventError) Unwrap() error {
	return e.err
}

// ErrMissingCorrelationKey is wrapped by UnprocessableEventError when a
// message arrives without a key.
var ErrMissingCorrelationKey = errors.New("quoteflow: message has no correlation key")

// Dispatcher interprets envelopes, runs the hook chain and persists exactly
// one outcome per key.
type Dispatcher struct {
	hooks   HookChain
	store   store.Store
	logger  logging.ServiceLogger
	metrics *PipelineMetrics
	now     func() time.Time
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherMetrics(m *PipelineMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func withDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher wires a dispatcher. A zero HookChain is allowed.
func NewDispatcher(hooks HookChain, st store.Store, logger logging.ServiceLogger, opts ...DispatcherOption) (*Dispatcher, error) {
	if st == nil {
		return nil, qerrors.ErrStoreRequired
	}
	if logger == nil {
		return nil, qerrors.ErrLoggerRequired
	}
	d := &Dispatcher{hooks: hooks, store: st, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch runs one envelope through observe, handle and persist.
//
// The observer always runs first and exactly once. Then exactly one of the
// success or error hooks runs; envelopes that cannot be interpreted reach the
// error hook with a protocol error. A failing success or error hook aborts
// persistence and its *errors.HookError is returned so the broker can
// redeliver. Store failures are returned as *errors.PersistenceError.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) error {
	if in.Key == "" {
		return &UnprocessableEventError{eventMessage: in.Envelope.Message, err: ErrMissingCorrelationKey}
	}

	hc := HookContext{Context: ctx, Key: in.Key, Delivery: in.Delivery, ReceivedAt: d.now()}
	log := d.logger.With(logging.LogFields{
		"correlation_key": in.Key,
		"envelope_type":   string(in.Envelope.Type),
		"topic":           in.Delivery.Topic,
		"partition":       in.Delivery.Partition,
		"offset":          in.Delivery.Offset,
	})
	log.Trace("Dispatch state", logging.LogFields{"state": StateReceived})

	if err := invokeHook("observer", d.hooks.Observer, hc, in.Envelope); err != nil {
		log.Error("Observer hook failed; continuing", err, nil)
	}
	log.Trace("Dispatch state", logging.LogFields{"state": StateObserved})

	record := store.Outcome{
		Key:          in.Key,
		EnvelopeType: string(in.Envelope.Type),
		Topic:        in.Delivery.Topic,
		Partition:    in.Delivery.Partition,
		Offset:       in.Delivery.Offset,
	}

	var state DispatchState
	outcome, decodeErr := envelope.Decode(in.Envelope)
	switch {
	case decodeErr != nil:
		state = StateProtocolErrorHandled
		log.Error("Envelope violates the protocol", decodeErr, nil)
		if err := invokeHook("error", d.hooks.OnError, hc, decodeErr); err != nil {
			return d.hookFailed(log, err)
		}
		record.Status = store.StatusProtocolError
		record.Payload = encodeFailure(domain.FailureFromError(decodeErr, 0))

	case outcome.IsSuccess():
		state = StateSuccessHandled
		if err := invokeHook("success", d.hooks.OnSuccess, hc, *outcome.Quote); err != nil {
			return d.hookFailed(log, err)
		}
		record.Status = store.StatusSuccess
		record.Kind = string(outcome.Quote.Kind)
		record.Payload = in.Envelope.Message

	default:
		state = StateErrorHandled
		failureErr := outcome.Failure.Err()
		log.Info("Request failed upstream", logging.LogFields{
			"failure_kind": outcome.Failure.Kind,
			"attempts":     outcome.Failure.Attempts,
			"detail":       outcome.Failure.Detail,
		})
		if err := invokeHook("error", d.hooks.OnError, hc, failureErr); err != nil {
			return d.hookFailed(log, err)
		}
		record.Status = store.StatusError
		record.Payload = encodeFailure(*outcome.Failure)
	}
	log.Trace("Dispatch state", logging.LogFields{"state": state})
	d.metrics.RecordDispatch(state)

	record.UpdatedAt = d.now().UTC()
	err := d.store.Upsert(ctx, record)
	d.metrics.RecordUpsert(err)
	if err != nil {
		var perr *qerrors.PersistenceError
		if !errors.As(err, &perr) {
			err = &qerrors.PersistenceError{Key: in.Key, Cause: err}
		}
		log.Error("Failed to persist outcome", err, nil)
		return err
	}

	log.Trace("Dispatch state", logging.LogFields{"state": StatePersisted})
	return nil
}

func (d *Dispatcher) hookFailed(log logging.ServiceLogger, err error) error {
	log.Error("Hook failed; outcome not persisted", err, nil)
	return err
}

// invokeHook runs h, converting errors and panics into *errors.HookError.
func invokeHook[T any](name string, h Hook[T], hc HookContext, payload T) (err error) {
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &qerrors.HookError{Hook: name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := h.Handle(hc, payload); herr != nil {
		return &qerrors.HookError{Hook: name, Cause: herr}
	}
	return nil
}

func encodeFailure(f domain.Failure) string {
	raw, err := jsoncodec.MarshalToString(f)
	if err != nil {
		return f.Detail
	}
	return raw
}
