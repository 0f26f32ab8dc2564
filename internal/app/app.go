package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/HienH/sale-smell/internal/config"
	"github.com/HienH/sale-smell/internal/events"
	"github.com/HienH/sale-smell/internal/observability/logging"
	"github.com/HienH/sale-smell/internal/service/orchestrator"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/service/provider/assemblyai"
	"github.com/HienH/sale-smell/internal/service/provider/google"
	"github.com/HienH/sale-smell/internal/service/provider/mock"
	"github.com/HienH/sale-smell/internal/service/transcription"
	"github.com/HienH/sale-smell/internal/validation"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime    time.Time
	Logger         zerolog.Logger
	Cfg            *config.Config
	Validator      *validation.Validator
	Publisher      *events.Publisher
	Orchestrator   *orchestrator.Orchestrator
	Transcriptions *transcription.Service

	provider string
	closers  []io.Closer
}

// New constructs the application: logger, provider client, orchestrator,
// event publisher and transcription service.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	api, err := NewProviderAPI(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", cfg.Provider.Name, err)
	}
	if c, ok := api.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.provider = api.Name()

	client, err := provider.NewClient(api, provider.Config{
		MaxRetries:     cfg.Provider.MaxRetries,
		RetryDelay:     cfg.Provider.RetryDelay,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	a.Orchestrator = orchestrator.New(client, orchestrator.Config{
		PollInterval:   cfg.Polling.Interval,
		MaxAttempts:    cfg.Polling.MaxAttempts,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		LanguageCode:   cfg.Provider.LanguageCode,
	})

	a.Publisher = events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicProgress: cfg.Kafka.TopicProgress,
		TopicResult:   cfg.Kafka.TopicResult,
		Principal:     cfg.Service.Principal,
	})
	eventObserver := events.NewObserver(a.Publisher)
	// the observer drains into the publisher, so it closes first
	a.closers = append(a.closers, eventObserver, a.Publisher)

	a.Transcriptions = transcription.New(a.Orchestrator,
		transcription.WithObservers(eventObserver),
	)
	a.Validator = validation.NewWithLimit(cfg.Upload.MaxBytes)

	appLogger.Info().
		Str("provider", a.provider).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("Sale smell service application created")
	return a, nil
}

// NewProviderAPI creates the raw provider API selected by cfg.Name.
func NewProviderAPI(ctx context.Context, cfg config.ProviderConfig) (provider.API, error) {
	switch cfg.Name {
	case config.ProviderAssemblyAI:
		return assemblyai.New(assemblyai.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	case config.ProviderGoogle:
		gcfg := google.DefaultConfig()
		gcfg.CredentialsFile = cfg.CredentialsFile
		gcfg.AudioEncoding = cfg.AudioEncoding
		gcfg.SampleRateHz = int32(cfg.SampleRateHz)
		return google.New(ctx, gcfg)
	case config.ProviderMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	out := a.Cfg.Observability.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logCfg := logging.DefaultConfig()
	if a.Cfg.Observability.LogLevel != "" {
		logCfg.Level = a.Cfg.Observability.LogLevel
	}
	if a.Cfg.Observability.LogFormat != "" {
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	logging.InitWriter(logCfg, out)

	a.Logger = logging.Logger().With().
		Str("service", "sale-smell").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("provider", a.provider).
		Msg("Sale smell service starting")

	return nil
}

// Shutdown stops in-flight transcriptions and releases provider and Kafka
// resources.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Sale smell service shutting down")

	if a.Transcriptions != nil {
		a.Transcriptions.Shutdown()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Error releasing resource")
		}
	}
}
