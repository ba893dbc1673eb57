package quoteflow

import (
	runtimepkg "github.com/drblury/quoteflow/internal/runtime"
	configpkg "github.com/drblury/quoteflow/internal/runtime/config"
	domainpkg "github.com/drblury/quoteflow/internal/runtime/domain"
	endpointspkg "github.com/drblury/quoteflow/internal/runtime/endpoints"
	envelopepkg "github.com/drblury/quoteflow/internal/runtime/envelope"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	fetchpkg "github.com/drblury/quoteflow/internal/runtime/fetch"
	httpapipkg "github.com/drblury/quoteflow/internal/runtime/httpapi"
	idspkg "github.com/drblury/quoteflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
	storepkg "github.com/drblury/quoteflow/internal/runtime/store"
	transportpkg "github.com/drblury/quoteflow/internal/runtime/transport"
	brokers "github.com/drblury/quoteflow/transport"
)

type (
	Config              = configpkg.Config
	EndpointConfig      = configpkg.Endpoint
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory
	TransportBuilder    = brokers.Builder
	Capabilities        = brokers.Capabilities

	Request       = domainpkg.Request
	RequestKind   = domainpkg.Kind
	Point         = domainpkg.Point
	Quote         = domainpkg.Quote
	CurrencyQuote = domainpkg.CurrencyQuote
	WeatherQuote  = domainpkg.WeatherQuote
	Failure       = domainpkg.Failure
	Outcome       = domainpkg.Outcome

	Envelope     = envelopepkg.Envelope
	EnvelopeType = envelopepkg.Type

	EndpointRegistry = endpointspkg.Registry
	Endpoint         = endpointspkg.Endpoint

	Fetcher       = fetchpkg.Fetcher
	FetchPolicy   = fetchpkg.Policy
	Provider      = fetchpkg.Provider
	HTTPProvider  = fetchpkg.HTTPProvider
	FetcherOption = fetchpkg.Option

	Registrar       = runtimepkg.Registrar
	RegistrarConfig = runtimepkg.RegistrarConfig
	RegistrarOption = runtimepkg.RegistrarOption

	Dispatcher             = runtimepkg.Dispatcher
	DispatcherOption       = runtimepkg.DispatcherOption
	DispatcherRegistration = runtimepkg.DispatcherRegistration
	DispatchState          = runtimepkg.DispatchState
	Inbound                = runtimepkg.Inbound
	Delivery               = runtimepkg.Delivery

	HookContext       = runtimepkg.HookContext
	HookChain         = runtimepkg.HookChain
	Hook[T any]       = runtimepkg.Hook[T]
	HookFunc[T any]   = runtimepkg.HookFunc[T]
	OutcomeStore      = storepkg.Store
	StoredOutcome     = storepkg.Outcome
	StoredOutcomeKind = storepkg.Status

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	PipelineMetrics        = runtimepkg.PipelineMetrics

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	UnprocessableEventError = runtimepkg.UnprocessableEventError

	HandlerInfo   = runtimepkg.HandlerInfo
	HandlerStats  = runtimepkg.HandlerStats
	ErrorCategory = runtimepkg.ErrorCategory

	ValidationError               = errspkg.ValidationError
	UnknownSourceError            = errspkg.UnknownSourceError
	RemoteError                   = errspkg.RemoteError
	UnrecognizedEnvelopeTypeError = errspkg.UnrecognizedEnvelopeTypeError
	MalformedPayloadError         = errspkg.MalformedPayloadError
	PersistenceError              = errspkg.PersistenceError
	HookError                     = errspkg.HookError
	ConfigValidationError         = errspkg.ConfigValidationError
)

var (
	LoadConfig     = configpkg.Load
	DefaultConfig  = configpkg.Default
	ValidateConfig = configpkg.ValidateConfig

	NewConfigValidationError = errspkg.NewConfigValidationError

	NewService = runtimepkg.NewService

	NewCurrencyRequest = domainpkg.NewCurrencyRequest
	NewWeatherRequest  = domainpkg.NewWeatherRequest
	ParseDecimal       = domainpkg.ParseDecimal

	NewEndpointRegistry = endpointspkg.New

	NewFetcher         = fetchpkg.New
	NewHTTPProvider    = fetchpkg.NewHTTPProvider
	WithFetchLogger    = fetchpkg.WithLogger
	WithFetchRecorder  = fetchpkg.WithRecorder
	EncodeEnvelope     = envelopepkg.Encode
	DecodeEnvelope     = envelopepkg.Decode
	NewEnvelopeMessage = runtimepkg.NewEnvelopeMessage
	PublishEnvelope    = runtimepkg.PublishEnvelope

	NewRegistrar         = runtimepkg.NewRegistrar
	WithRegistrarMetrics = runtimepkg.WithRegistrarMetrics

	NewDispatcher         = runtimepkg.NewDispatcher
	WithDispatcherMetrics = runtimepkg.WithDispatcherMetrics
	RegisterDispatcher    = runtimepkg.RegisterDispatcher

	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	OpenStore      = storepkg.Open
	NewMemoryStore = storepkg.NewMemory

	NewIntakeRouter  = httpapipkg.NewIntakeRouter
	NewOutcomeRouter = httpapipkg.NewOutcomeRouter

	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	LogMessagesMiddleware = runtimepkg.LogMessagesMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	RetryMiddleware       = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware

	NewPipelineMetrics = runtimepkg.NewPipelineMetrics

	DefaultTransportRegistry = brokers.DefaultRegistry
	RegisterTransport        = brokers.Register

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrServiceRequired          = errspkg.ErrServiceRequired
	ErrDispatcherRequired       = errspkg.ErrDispatcherRequired
	ErrPublisherRequired        = errspkg.ErrPublisherRequired
	ErrTopicRequired            = errspkg.ErrTopicRequired
	ErrConfigRequired           = errspkg.ErrConfigRequired
	ErrLoggerRequired           = errspkg.ErrLoggerRequired
	ErrStoreRequired            = errspkg.ErrStoreRequired
	ErrRegistrarClosed          = errspkg.ErrRegistrarClosed
	ErrOutcomeNotFound          = errspkg.ErrOutcomeNotFound
	ErrValidation               = errspkg.ErrValidation
	ErrUnknownSource            = errspkg.ErrUnknownSource
	ErrRemoteTransient          = errspkg.ErrRemoteTransient
	ErrRemoteFatal              = errspkg.ErrRemoteFatal
	ErrUnrecognizedEnvelopeType = errspkg.ErrUnrecognizedEnvelopeType
	ErrMalformedPayload         = errspkg.ErrMalformedPayload
	ErrPersistence              = errspkg.ErrPersistence
	ErrHook                     = errspkg.ErrHook
	ErrMissingCorrelationKey    = runtimepkg.ErrMissingCorrelationKey
	IsProtocolError             = errspkg.IsProtocolError

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	NewMetadata = metadatapkg.New

	NewCorrelationKey = idspkg.NewCorrelationKey
	IsCorrelationKey  = idspkg.IsCorrelationKey
)

const (
	KindCurrency = domainpkg.KindCurrency
	KindWeather  = domainpkg.KindWeather

	EnvelopeSuccess = envelopepkg.TypeSuccess
	EnvelopeError   = envelopepkg.TypeError
)

// Metadata keys stamped on every outcome message.
const (
	MetadataKeyCorrelationKey = metadatapkg.KeyCorrelationKey
	MetadataKeyEnvelopeType   = metadatapkg.KeyEnvelopeType
	MetadataKeyRequestKind    = metadatapkg.KeyRequestKind
	MetadataKeySource         = metadatapkg.KeySource
	MetadataKeyProducedAt     = metadatapkg.KeyProducedAt
)

const (
	ErrorCategoryNone          = runtimepkg.ErrorCategoryNone
	ErrorCategoryUnprocessable = runtimepkg.ErrorCategoryUnprocessable
	ErrorCategoryHook          = runtimepkg.ErrorCategoryHook
	ErrorCategoryPersistence   = runtimepkg.ErrorCategoryPersistence
	ErrorCategoryOther         = runtimepkg.ErrorCategoryOther
)

// NewHookFunc wraps fn as a Hook.
func NewHookFunc[T any](fn func(hc HookContext, payload T) error) Hook[T] {
	return runtimepkg.HookFunc[T](fn)
}

// FetchPolicyFromConfig derives the remote retry policy from conf.
func FetchPolicyFromConfig(conf *Config) FetchPolicy {
	return FetchPolicy{
		MaxAttempts: conf.FetchMaxAttempts,
		BaseDelay:   conf.FetchBaseDelay,
		MaxDelay:    conf.FetchMaxDelay,
	}
}

// RegistrarConfigFromConfig derives the registrar settings from conf.
func RegistrarConfigFromConfig(conf *Config) RegistrarConfig {
	return RegistrarConfig{
		Topic:             conf.OutcomeTopic,
		AttemptTimeout:    conf.FetchTimeout,
		WorkerConcurrency: conf.WorkerConcurrency,
	}
}
