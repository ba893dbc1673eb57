package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "quoteflow"

// PipelineMetrics tracks the producer and consumer stages of the pipeline.
// It implements fetch.Recorder.
type PipelineMetrics struct {
	mu sync.Mutex

	fetchAttempts   *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	retryDelay      *prometheus.HistogramVec
	registrations   *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	upserts         *prometheus.CounterVec
	poisoned        *prometheus.CounterVec
	inflight        prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewPipelineMetrics creates the collectors. Call Register to expose them.
func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		registerer:      registerer,
		fetchAttempts:   newCounterVec("fetch", "attempts_total", "Remote provider attempts by source and result class", []string{"source", "class"}),
		fetchDuration:   newHistogramVec("fetch", "attempt_duration_seconds", "Duration of single remote provider attempts", prometheus.DefBuckets, []string{"source"}),
		retryDelay:      newHistogramVec("fetch", "retry_delay_seconds", "Backoff waited before a retried attempt", []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}, []string{"source"}),
		registrations:   newCounterVec("intake", "registrations_total", "Accepted registrations by request kind and resolution", []string{"kind", "resolution"}),
		publishFailures: newCounterVec("intake", "publish_failures_total", "Envelopes that could not be handed to the broker", []string{"envelope_type"}),
		dispatches:      newCounterVec("dispatch", "messages_total", "Dispatched envelopes by terminal branch", []string{"state"}),
		upserts:         newCounterVec("store", "upserts_total", "Outcome upserts by result", []string{"result"}),
		poisoned:        newCounterVec("dispatch", "poisoned_total", "Messages moved to the poison queue", []string{"poison_topic"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "intake",
			Name:      "inflight_fetches",
			Help:      "Fetch tasks currently running on the worker pool",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *PipelineMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.fetchAttempts,
		m.fetchDuration,
		m.retryDelay,
		m.registrations,
		m.publishFailures,
		m.dispatches,
		m.upserts,
		m.poisoned,
		m.inflight,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *PipelineMetrics) RecordAttempt(source, class string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(source, class).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) RecordRetryDelay(source string, delay time.Duration) {
	if m == nil {
		return
	}
	m.retryDelay.WithLabelValues(source).Observe(delay.Seconds())
}

// RecordRegistration counts an accepted request. resolution is "resolved" or
// "unknown_source".
func (m *PipelineMetrics) RecordRegistration(kind, resolution string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(kind, resolution).Inc()
}

func (m *PipelineMetrics) RecordPublishFailure(envelopeType string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(envelopeType).Inc()
}

func (m *PipelineMetrics) RecordDispatch(state DispatchState) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(state)).Inc()
}

func (m *PipelineMetrics) RecordUpsert(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upserts.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) RecordPoisoned(poisonTopic string) {
	if m == nil {
		return
	}
	m.poisoned.WithLabelValues(poisonTopic).Inc()
}

func (m *PipelineMetrics) fetchStarted() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *PipelineMetrics) fetchFinished() {
	if m != nil {
		m.inflight.Dec()
	}
}
