// Command producer serves the intake API. Each accepted request gets a
// correlation key at once; the provider call and the envelope publish run in
// the background.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/quoteflow"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUOTEFLOW_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "producer:", err)
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
		With(quoteflow.LogFields{"service": conf.ServiceName, "role": "producer"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := quoteflow.NewService(ctx, &conf, logger, quoteflow.ServiceDependencies{})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	registry, err := quoteflow.NewEndpointRegistry(conf.Endpoints)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}
	logger.Info("Endpoints loaded", quoteflow.LogFields{"sources": registry.Sources()})

	fetcher := quoteflow.NewFetcher(
		quoteflow.NewHTTPProvider(nil),
		quoteflow.FetchPolicyFromConfig(&conf),
		quoteflow.WithFetchLogger(logger),
		quoteflow.WithFetchRecorder(svc.Metrics),
	)

	registrar, err := quoteflow.NewRegistrar(
		quoteflow.RegistrarConfigFromConfig(&conf),
		registry,
		fetcher,
		svc.Publisher(),
		logger,
		quoteflow.WithRegistrarMetrics(svc.Metrics),
	)
	if err != nil {
		return fmt.Errorf("create registrar: %w", err)
	}
	svc.OnShutdown(func(ctx context.Context) error {
		logger.Info("Draining in-flight requests", nil)
		return registrar.Close(ctx)
	})

	svc.RegisterHTTPHandler(conf.IntakeAddress, "/", quoteflow.NewIntakeRouter(registrar, logger))

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("service stopped: %w", err)
	}
	logger.Info("Producer stopped", nil)
	return nil
}
