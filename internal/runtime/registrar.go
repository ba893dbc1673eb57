package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/semaphore"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/endpoints"
	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/ids"
	"github.com/drblury/quoteflow/internal/runtime/logging"
)

// EndpointResolver resolves a validated request to its provider.
type EndpointResolver interface {
	ResolveFor(req domain.Request) (endpoints.Endpoint, error)
}

// OutcomeFetcher performs one logical remote call. *fetch.Fetcher
// implements it.
type OutcomeFetcher interface {
	Fetch(ctx context.Context, req domain.Request, ep endpoints.Endpoint, budget time.Duration) domain.Outcome
}

// RegistrarConfig tunes a Registrar.
type RegistrarConfig struct {
	// Topic receives every envelope.
	Topic string
	// AttemptTimeout bounds each remote attempt.
	AttemptTimeout time.Duration
	// WorkerConcurrency bounds the fetch tasks running at once.
	WorkerConcurrency int
}

// Registrar accepts requests, mints their correlation keys and publishes
// exactly one envelope per accepted request.
type Registrar struct {
	cfg       RegistrarConfig
	resolver  EndpointResolver
	fetcher   OutcomeFetcher
	publisher message.Publisher
	logger    logging.ServiceLogger
	metrics   *PipelineMetrics
	newKey    func() string

	sem *semaphore.Weighted
	// lifetime outlives every caller context; fetch tasks run on it.
	lifetime context.Context
	abandon  context.CancelFunc

	mu     sync.RWMutex
	closed bool
	tasks  sync.WaitGroup
}

// RegistrarOption customises a Registrar.
type RegistrarOption func(*Registrar)

func WithRegistrarMetrics(m *PipelineMetrics) RegistrarOption {
	return func(r *Registrar) { r.metrics = m }
}

func withKeyFunc(f func() string) RegistrarOption {
	return func(r *Registrar) { r.newKey = f }
}

// NewRegistrar wires a registrar.
func NewRegistrar(cfg RegistrarConfig, resolver EndpointResolver, fetcher OutcomeFetcher, publisher message.Publisher, logger logging.ServiceLogger, opts ...RegistrarOption) (*Registrar, error) {
	switch {
	case cfg.Topic == "":
		return nil, qerrors.ErrTopicRequired
	case publisher == nil:
		return nil, qerrors.ErrPublisherRequired
	case logger == nil:
		return nil, qerrors.ErrLoggerRequired
	case resolver == nil || fetcher == nil:
		return nil, qerrors.ErrServiceRequired
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}

	lifetime, abandon := context.WithCancel(context.Background())
	r := &Registrar{
		cfg:       cfg,
		resolver:  resolver,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
		newKey:    ids.NewCorrelationKey,
		sem:       semaphore.NewWeighted(int64(cfg.WorkerConcurrency)),
		lifetime:  lifetime,
		abandon:   abandon,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register accepts req and returns its correlation key before the remote
// call completes.
//
// An unresolvable source is answered with an ERROR envelope published before
// Register returns, with no remote call. If that publish fails the key is
// not handed out and the error is returned. Resolved requests are fetched on
// the worker pool under the registrar's own lifetime, so cancelling ctx after
// Register returns does not cancel the fetch.
func (r *Registrar) Register(ctx context.Context, req domain.Request) (string, error) {
	if !req.Valid() {
		return "", qerrors.NewValidationError("", "request was not validated")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return "", qerrors.ErrRegistrarClosed
	}

	key := r.newKey()
	log := r.logger.With(logging.LogFields{
		"correlation_key": key,
		"request_kind":    string(req.Kind()),
		"source":          req.Source(),
	})

	ep, err := r.resolver.ResolveFor(req)
	if err != nil {
		env := envelope.Encode(domain.Failed(err, 0))
		if perr := PublishEnvelope(ctx, r.publisher, r.cfg.Topic, key, req, env); perr != nil {
			r.metrics.RecordPublishFailure(string(env.Type))
			log.Error("Failed to publish unknown source failure", perr, nil)
			return "", fmt.Errorf("publish envelope: %w", perr)
		}
		r.metrics.RecordRegistration(string(req.Kind()), "unknown_source")
		log.Info("Source not resolvable; failure published", logging.LogFields{"error": err.Error()})
		return key, nil
	}

	r.metrics.RecordRegistration(string(req.Kind()), "resolved")
	log.Debug("Request accepted", nil)

	r.tasks.Add(1)
	go r.run(key, req, ep, log)
	return key, nil
}

func (r *Registrar) run(key string, req domain.Request, ep endpoints.Endpoint, log logging.ServiceLogger) {
	defer r.tasks.Done()

	var outcome domain.Outcome
	if err := r.sem.Acquire(r.lifetime, 1); err != nil {
		outcome = domain.Failed(qerrors.Transient(0, fmt.Errorf("abandoned before first attempt: %w", err)), 0)
	} else {
		r.metrics.fetchStarted()
		outcome = r.fetcher.Fetch(r.lifetime, req, ep, r.cfg.AttemptTimeout)
		r.metrics.fetchFinished()
		r.sem.Release(1)
	}

	env := envelope.Encode(outcome)
	// publish even while shutting down so the accepted request still gets its envelope
	ctx := context.WithoutCancel(r.lifetime)
	if err := PublishEnvelope(ctx, r.publisher, r.cfg.Topic, key, req, env); err != nil {
		r.metrics.RecordPublishFailure(string(env.Type))
		log.Error("Failed to publish envelope", err, logging.LogFields{"envelope_type": string(env.Type)})
		return
	}
	log.Debug("Envelope published", logging.LogFields{
		"envelope_type": string(env.Type),
		"attempts":      outcome.Attempts,
	})
}

// Close stops accepting requests and waits for in-flight tasks. When ctx
// ends first the remaining fetches are abandoned; each still publishes an
// ERROR envelope before Close returns.
func (r *Registrar) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.abandon()
		return nil
	case <-ctx.Done():
		r.abandon()
		<-done
		return ctx.Err()
	}
}
