package runtime

import (
	"context"
	"time"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/logging"
)

// Delivery is the broker position of an inbound message. It is informational
// and never changes how a message is dispatched.
type Delivery struct {
	Topic       string
	Partition   int32
	Offset      int64
	MessageUUID string
}

// HookContext is passed to every hook alongside its payload.
type HookContext struct {
	// Context is the message context; cancellation follows the router.
	Context context.Context
	// Key is the correlation key minted at intake.
	Key string
	// Delivery describes where the message came from.
	Delivery Delivery
	// ReceivedAt is when the dispatcher accepted the message.
	ReceivedAt time.Time
}

// Hook is a single-purpose callback for one dispatch stage.
type Hook[T any] interface {
	Handle(hc HookContext, payload T) error
}

// HookFunc adapts a plain function to Hook.
type HookFunc[T any] func(hc HookContext, payload T) error

func (f HookFunc[T]) Handle(hc HookContext, payload T) error {
	return f(hc, payload)
}

// HookChain holds the callbacks the dispatcher invokes for every inbound
// envelope. Observer runs first for every envelope; then exactly one of
// OnSuccess or OnError runs. Nil hooks are skipped.
type HookChain struct {
	// Observer audits the raw envelope. Its failures are logged and never
	// change the outcome.
	Observer Hook[envelope.Envelope]
	// OnSuccess receives the decoded quote of a SUCCESS envelope.
	OnSuccess Hook[domain.Quote]
	// OnError receives the failure of an ERROR envelope, or the protocol
	// error of an envelope that could not be interpreted.
	OnError Hook[error]
}

// Merge combines two chains. The hooks from other run after the hooks from h
// and are skipped when an earlier hook fails.
func (h HookChain) Merge(other HookChain) HookChain {
	return HookChain{
		Observer:  chainHooks(h.Observer, other.Observer),
		OnSuccess: chainHooks(h.OnSuccess, other.OnSuccess),
		OnError:   chainHooks(h.OnError, other.OnError),
	}
}

func chainHooks[T any](a, b Hook[T]) Hook[T] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return HookFunc[T](func(hc HookContext, payload T) error {
		if err := a.Handle(hc, payload); err != nil {
			return err
		}
		return b.Handle(hc, payload)
	})
}

// LoggingHooks returns hooks that log each dispatch stage.
func LoggingHooks(logger logging.ServiceLogger) HookChain {
	return HookChain{
		Observer: HookFunc[envelope.Envelope](func(hc HookContext, env envelope.Envelope) error {
			logger.Debug("Envelope received", logging.LogFields{
				"correlation_key": hc.Key,
				"envelope_type":   string(env.Type),
				"topic":           hc.Delivery.Topic,
				"partition":       hc.Delivery.Partition,
				"offset":          hc.Delivery.Offset,
			})
			return nil
		}),
		OnSuccess: HookFunc[domain.Quote](func(hc HookContext, q domain.Quote) error {
			logger.Info("Quote delivered", logging.LogFields{
				"correlation_key": hc.Key,
				"request_kind":    string(q.Kind),
			})
			return nil
		}),
		OnError: HookFunc[error](func(hc HookContext, err error) error {
			logger.Debug("Failure delivered", logging.LogFields{
				"correlation_key": hc.Key,
				"error":           err.Error(),
			})
			return nil
		}),
	}
}

// MetricsHooks returns hooks that report each stage to the supplied
// callbacks. Nil callbacks are ignored.
func MetricsHooks(onObserved func(envelopeType string), onSuccess func(kind string), onError func(failureKind string)) HookChain {
	return HookChain{
		Observer: HookFunc[envelope.Envelope](func(_ HookContext, env envelope.Envelope) error {
			if onObserved != nil {
				onObserved(string(env.Type))
			}
			return nil
		}),
		OnSuccess: HookFunc[domain.Quote](func(_ HookContext, q domain.Quote) error {
			if onSuccess != nil {
				onSuccess(string(q.Kind))
			}
			return nil
		}),
		OnError: HookFunc[error](func(_ HookContext, err error) error {
			if onError != nil {
				onError(domain.FailureFromError(err, 0).Kind)
			}
			return nil
		}),
	}
}

// AlertingHooks returns a chain that calls alert for protocol errors only.
func AlertingHooks(alert func(hc HookContext, err error)) HookChain {
	return HookChain{
		OnError: HookFunc[error](func(hc HookContext, err error) error {
			if qerrors.IsProtocolError(err) {
				alert(hc, err)
			}
			return nil
		}),
	}
}
