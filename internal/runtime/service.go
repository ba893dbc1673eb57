package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/quoteflow/internal/runtime/config"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/logging"
	transportpkg "github.com/drblury/quoteflow/internal/runtime/transport"
	"github.com/drblury/quoteflow/transport"
)

const (
	routerCloseTimeout  = 30 * time.Second
	serverStopTimeout   = 10 * time.Second
	shutdownHookTimeout = 30 * time.Second
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators a Service can use.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	// Registerer receives pipeline and router metrics. Defaults to the
	// Prometheus default registerer.
	Registerer prometheus.Registerer
	// Gatherer backs the /metrics endpoint. Defaults to the Prometheus
	// default gatherer.
	Gatherer prometheus.Gatherer
}

// HandlerInfo describes a handler registered on the router.
type HandlerInfo struct {
	Name  string        `json:"name"`
	Topic string        `json:"topic"`
	Stats *HandlerStats `json:"stats"`
}

// Service wires a broker transport, a Watermill router with its middleware
// chain, and the HTTP servers of one process.
type Service struct {
	Conf    *config.Config
	Logger  logging.ServiceLogger
	Metrics *PipelineMetrics

	transport  transportpkg.Transport
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	handlers   []HandlerInfo
	handlersMu sync.RWMutex
	resources  *resourceTracker

	httpServers   map[string]*http.ServeMux
	httpServersMu sync.Mutex

	shutdownHooks   []func(context.Context) error
	shutdownHooksMu sync.Mutex
}

// NewService builds the transport and router for conf. Register handlers
// before calling Start.
func NewService(ctx context.Context, conf *config.Config, log logging.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, qerrors.ErrConfigRequired
	}
	if log == nil {
		return nil, qerrors.ErrLoggerRequired
	}

	wmLogger := logging.NewWatermillAdapter(log)
	log.Info("Creating service", logging.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		registerer: deps.Registerer,
		gatherer:   deps.Gatherer,
		resources:  newResourceTracker(),
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	s.Metrics = NewPipelineMetrics(s.registerer)
	if conf.MetricsEnabled {
		if err := s.Metrics.Register(); err != nil {
			return nil, fmt.Errorf("register pipeline metrics: %w", err)
		}
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	t, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	s.transport = t
	s.publisher = t.Publisher
	s.subscriber = t.Subscriber
	s.logCapabilities(t.Capabilities)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: routerCloseTimeout}, wmLogger)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = t.Close()
		return nil, err
	}
	if conf.MetricsEnabled {
		if err := s.instrumentPublisher(); err != nil {
			_ = t.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *Service) logCapabilities(caps transport.Capabilities) {
	fields := logging.LogFields{
		"transport":         caps.Name,
		"key_ordering":      caps.PreservesKeyOrder(),
		"reliable_delivery": caps.SupportsReliableDelivery(),
		"max_message_bytes": caps.MaxMessageSize,
	}
	if !caps.PreservesKeyOrder() {
		s.Logger.Info("Transport does not partition by correlation key; run a single consumer for per-key ordering", fields)
		return
	}
	s.Logger.Debug("Transport capabilities", fields)
}

// instrumentPublisher wraps the publisher with Watermill publish metrics.
func (s *Service) instrumentPublisher() error {
	builder := metrics.NewPrometheusMetricsBuilder(s.registerer, metricsNamespace, s.Conf.PubSubSystem)
	pub, err := builder.DecoratePublisher(s.publisher)
	if err != nil {
		return fmt.Errorf("decorate publisher: %w", err)
	}
	s.publisher = pub
	return nil
}

// Publisher returns the publisher envelopes are sent through.
func (s *Service) Publisher() message.Publisher {
	return s.publisher
}

// Capabilities reports what the configured broker guarantees.
func (s *Service) Capabilities() transport.Capabilities {
	return s.transport.Capabilities
}

// Handlers lists the registered router handlers.
func (s *Service) Handlers() []HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return append([]HandlerInfo(nil), s.handlers...)
}

// Running is closed once the router has started its handlers.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Start serves the registered HTTP handlers and runs the router until ctx
// is cancelled. A service without handlers only serves HTTP. The transport
// is closed before Start returns.
func (s *Service) Start(ctx context.Context) error {
	servers := s.startHTTPServers()
	defer s.stopHTTPServers(servers)
	defer func() {
		if err := s.transport.Close(); err != nil {
			s.Logger.Error("Failed to close transport", err, nil)
		}
	}()
	defer s.runShutdownHooks()

	if len(s.Handlers()) == 0 {
		<-ctx.Done()
		return nil
	}
	return routerRun(s.router, ctx)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// OnShutdown registers fn to run after the router stops and before the
// transport closes, so fn may still publish. Hooks run in registration order.
func (s *Service) OnShutdown(fn func(context.Context) error) {
	if fn == nil {
		return
	}
	s.shutdownHooksMu.Lock()
	defer s.shutdownHooksMu.Unlock()
	s.shutdownHooks = append(s.shutdownHooks, fn)
}

func (s *Service) runShutdownHooks() {
	s.shutdownHooksMu.Lock()
	hooks := append([]func(context.Context) error(nil), s.shutdownHooks...)
	s.shutdownHooksMu.Unlock()
	if len(hooks) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownHookTimeout)
	defer cancel()
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("Shutdown hook failed", err, nil)
		}
	}
}

// RegisterHTTPHandler mounts handler at pattern on the server listening on addr.
func (s *Service) RegisterHTTPHandler(addr, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[string]*http.ServeMux)
	}

	mux, ok := s.httpServers[addr]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[addr] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) serveMetrics() {
	if s.Conf.MetricsPort <= 0 {
		return
	}
	handler := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	s.RegisterHTTPHandler(fmt.Sprintf(":%d", s.Conf.MetricsPort), "/metrics", handler)
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for addr, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)

		s.Logger.Info("Starting HTTP server", logging.LogFields{"address": addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server stopped", err, logging.LogFields{"address": srv.Addr})
			}
		}()
	}
	return servers
}

func (s *Service) stopHTTPServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to stop HTTP server", err, logging.LogFields{"address": srv.Addr})
		}
	}
}
