// Command consumer dispatches outcome envelopes to the hook chain and the
// outcome store, and serves outcome lookups by correlation key.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/quoteflow"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUOTEFLOW_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "consumer:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	conf, err := quoteflow.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := quoteflow.ValidateConfig(&conf); err != nil {
		return quoteflow.NewConfigValidationError(err)
	}

	logger := quoteflow.NewLogger(os.Stdout, conf.LogFormat, conf.LogLevel).
		With(quoteflow.LogFields{"service": conf.ServiceName, "role": "consumer"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := quoteflow.OpenStore(ctx, conf.StoreDriver, conf.StoreDSN)
	if err != nil {
		return fmt.Errorf("open outcome store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close outcome store", err, nil)
		}
	}()

	svc, err := quoteflow.NewService(ctx, &conf, logger, quoteflow.ServiceDependencies{})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	hooks, err := consumerHooks(&conf, logger)
	if err != nil {
		return err
	}
	dispatcher, err := quoteflow.NewDispatcher(hooks, st, logger, quoteflow.WithDispatcherMetrics(svc.Metrics))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	err = quoteflow.RegisterDispatcher(svc, quoteflow.DispatcherRegistration{
		Name:       "quote-outcomes",
		Topic:      conf.OutcomeTopic,
		Dispatcher: dispatcher,
	})
	if err != nil {
		return fmt.Errorf("register dispatcher: %w", err)
	}

	api := quoteflow.NewOutcomeRouter(st, logger)
	api.Method(http.MethodGet, "/v1/handlers", svc.HandlersHTTPHandler())
	svc.RegisterHTTPHandler(conf.OutcomeAPIAddress, "/", api)

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("service stopped: %w", err)
	}
	logger.Info("Consumer stopped", nil)
	return nil
}

// consumerHooks logs every dispatch stage, counts hook outcomes when metrics
// are enabled, and raises protocol errors as alerts.
func consumerHooks(conf *quoteflow.Config, logger quoteflow.ServiceLogger) (quoteflow.HookChain, error) {
	hooks := quoteflow.LoggingHooks(logger)

	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quoteflow",
		Subsystem: "consumer",
		Name:      "protocol_alerts_total",
		Help:      "Envelopes that could not be interpreted.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quoteflow",
		Subsystem: "consumer",
		Name:      "hook_deliveries_total",
		Help:      "Payloads handed to the success and error hooks.",
	}, []string{"branch", "kind"})

	if conf.MetricsEnabled {
		for _, c := range []prometheus.Collector{alerts, delivered} {
			if err := prometheus.Register(c); err != nil {
				return quoteflow.HookChain{}, fmt.Errorf("register hook metrics: %w", err)
			}
		}
		hooks = hooks.Merge(quoteflow.MetricsHooks(
			nil,
			func(kind string) { delivered.WithLabelValues("success", kind).Inc() },
			func(failureKind string) { delivered.WithLabelValues("error", failureKind).Inc() },
		))
	}

	return hooks.Merge(quoteflow.AlertingHooks(func(hc quoteflow.HookContext, err error) {
		alerts.Inc()
		logger.Error("Protocol error alert", err, quoteflow.LogFields{
			"correlation_key": hc.Key,
			"topic":           hc.Delivery.Topic,
			"offset":          hc.Delivery.Offset,
		})
	})), nil
}
