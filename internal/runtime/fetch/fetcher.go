// Package fetch performs one logical remote call under a retry policy and
// always reports the result as a domain.Outcome.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/endpoints"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/logging"
)

// Attempt result classes reported to a Recorder.
const (
	ClassSuccess   = "success"
	ClassTransient = "transient"
	ClassFatal     = "fatal"
)

// Recorder receives per-attempt observations, typically Prometheus metrics.
type Recorder interface {
	RecordAttempt(source, class string, elapsed time.Duration)
	RecordRetryDelay(source string, delay time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(string, string, time.Duration) {}
func (nopRecorder) RecordRetryDelay(string, time.Duration)      {}

// Fetcher runs a Provider under a Policy.
type Fetcher struct {
	provider Provider
	policy   Policy
	logger   logging.ServiceLogger
	recorder Recorder
	wait     WaitFunc
	tracer   trace.Tracer
}

// Option customises a Fetcher.
type Option func(*Fetcher)

func WithLogger(l logging.ServiceLogger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithWait replaces the timer based wait. Tests use it to observe delays
// without sleeping.
func WithWait(w WaitFunc) Option {
	return func(f *Fetcher) {
		if w != nil {
			f.wait = w
		}
	}
}

// New builds a Fetcher.
func New(provider Provider, policy Policy, opts ...Option) *Fetcher {
	f := &Fetcher{
		provider: provider,
		policy:   policy,
		logger:   logging.NewNopServiceLogger(),
		recorder: nopRecorder{},
		wait:     timerWait,
		tracer:   otel.Tracer("quoteflow/fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the retry policy in use.
func (f *Fetcher) Policy() Policy {
	return f.policy
}

// Fetch calls the endpoint until it succeeds, fails fatally, or runs out of
// attempts. budget bounds each attempt; zero leaves attempts unbounded.
// Cancelling ctx abandons the remaining attempts.
func (f *Fetcher) Fetch(ctx context.Context, req domain.Request, ep endpoints.Endpoint, budget time.Duration) domain.Outcome {
	maxAttempts := f.policy.attempts()
	bo := f.policy.newBackOff()
	log := f.logger.With(logging.LogFields{"source": ep.ID, "request_kind": string(req.Kind())})

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := bo.NextBackOff()
			f.recorder.RecordRetryDelay(ep.ID, delay)
			log.Debug("Retrying remote call", logging.LogFields{"attempt": attempt, "delay": delay.String()})
			if err := f.wait(ctx, delay); err != nil {
				log.Info("Remote call abandoned while waiting to retry", logging.LogFields{"attempt": attempt - 1, "reason": err.Error()})
				return domain.Failed(withAttempts(lastErr, attempt-1), attempt-1)
			}
		}

		quote, err := f.attempt(ctx, req, ep, budget, attempt)
		if err == nil {
			return domain.Succeeded(quote, attempt)
		}
		lastErr = err

		if !isTransient(err) {
			log.Info("Remote call failed permanently", logging.LogFields{"attempt": attempt, "error": err.Error()})
			return domain.Failed(withAttempts(err, attempt), attempt)
		}
		log.Debug("Remote call failed transiently", logging.LogFields{"attempt": attempt, "error": err.Error()})
	}

	log.Info("Remote call exhausted its attempts", logging.LogFields{"attempts": maxAttempts, "error": lastErr.Error()})
	return domain.Failed(withAttempts(lastErr, maxAttempts), maxAttempts)
}

func (f *Fetcher) attempt(ctx context.Context, req domain.Request, ep endpoints.Endpoint, budget time.Duration, n int) (quote domain.Quote, err error) {
	ctx, span := f.tracer.Start(ctx, "fetch.attempt", trace.WithAttributes(
		attribute.String("quoteflow.source", ep.ID),
		attribute.String("quoteflow.request_kind", string(req.Kind())),
		attribute.Int("quoteflow.attempt", n),
	))
	defer span.End()

	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = qerrors.Fatal(0, panicError(r))
		}
		class := classOf(err)
		f.recorder.RecordAttempt(ep.ID, class, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, class)
		}
	}()

	quote, err = f.provider.Call(ctx, req, ep)
	if err != nil {
		var remote *qerrors.RemoteError
		if !errors.As(err, &remote) {
			// unclassified provider errors are treated like transport failures
			err = classifyTransport(err)
		}
		return domain.Quote{}, err
	}
	if verr := quote.Validate(); verr != nil {
		return domain.Quote{}, classifyPayload(0, verr)
	}
	return quote, nil
}

func classOf(err error) string {
	switch {
	case err == nil:
		return ClassSuccess
	case isTransient(err):
		return ClassTransient
	default:
		return ClassFatal
	}
}

func withAttempts(err error, attempts int) error {
	var remote *qerrors.RemoteError
	if errors.As(err, &remote) {
		remote.Attempts = attempts
	}
	return err
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("provider panicked: %w", err)
	}
	return fmt.Errorf("provider panicked: %v", v)
}
