// Package config loads service configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxRetries matches the limit enforced by the provider client.
const maxRetries = 10

// Supported provider names.
const (
	ProviderAssemblyAI = "assemblyai"
	ProviderGoogle     = "google"
	ProviderMock       = "mock"
)

// Config represents the complete service configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Provider      ProviderConfig      `yaml:"provider"`
	Polling       PollingConfig       `yaml:"polling"`
	Upload        UploadConfig        `yaml:"upload"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig contains listener and identity settings.
type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	HTTPPort    string `yaml:"http_port"`
	GRPCPort    string `yaml:"grpc_port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProviderConfig selects and configures the speech-analysis provider.
type ProviderConfig struct {
	Name            string        `yaml:"name"` // assemblyai, google, mock
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	CredentialsFile string        `yaml:"credentials_file"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	LanguageCode    string        `yaml:"language_code"`
	AudioEncoding   string        `yaml:"audio_encoding"` // google only
	SampleRateHz    int           `yaml:"sample_rate_hz"` // google only
}

// PollingConfig bounds the job polling loop.
type PollingConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// UploadConfig limits accepted audio.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// KafkaConfig contains event publishing settings.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	TopicProgress string   `yaml:"topic_progress"`
	TopicResult   string   `yaml:"topic_result"`
}

// ObservabilityConfig contains logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json, console

	// LogOutput overrides the log destination. Nil means stdout.
	LogOutput io.Writer `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   "svc-sale-smell",
			HTTPPort:    "8080",
			GRPCPort:    "50051",
			MetricsAddr: ":9090",
		},
		Provider: ProviderConfig{
			Name:         ProviderAssemblyAI,
			Timeout:      5 * time.Minute,
			MaxRetries:   3,
			RetryDelay:   time.Second,
			LanguageCode: "en",
			SampleRateHz: 16000,
		},
		Polling: PollingConfig{
			Interval:    5 * time.Second,
			MaxAttempts: 60,
		},
		Upload: UploadConfig{
			MaxBytes: 100 * 1024 * 1024,
		},
		Kafka: KafkaConfig{
			TopicProgress: "transcription.progress",
			TopicResult:   "transcription.result",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if set) and the environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.MetricsAddr = envOrDefault("METRICS_ADDR", c.Service.MetricsAddr)

	c.Provider.Name = strings.ToLower(envOrDefault("PROVIDER", c.Provider.Name))
	c.Provider.APIKey = envOrDefault("ASSEMBLYAI_API_KEY", envOrDefault("PROVIDER_API_KEY", c.Provider.APIKey))
	c.Provider.BaseURL = envOrDefault("PROVIDER_BASE_URL", c.Provider.BaseURL)
	c.Provider.CredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", c.Provider.CredentialsFile)
	c.Provider.Timeout = envDurationOrDefault("PROVIDER_TIMEOUT", c.Provider.Timeout)
	c.Provider.MaxRetries = envIntOrDefault("PROVIDER_MAX_RETRIES", c.Provider.MaxRetries)
	c.Provider.RetryDelay = envDurationOrDefault("PROVIDER_RETRY_DELAY", c.Provider.RetryDelay)
	c.Provider.LanguageCode = envOrDefault("PROVIDER_LANGUAGE_CODE", c.Provider.LanguageCode)
	c.Provider.AudioEncoding = envOrDefault("GOOGLE_AUDIO_ENCODING", c.Provider.AudioEncoding)
	c.Provider.SampleRateHz = envIntOrDefault("GOOGLE_SAMPLE_RATE_HZ", c.Provider.SampleRateHz)

	c.Polling.Interval = envDurationOrDefault("POLL_INTERVAL", c.Polling.Interval)
	c.Polling.MaxAttempts = envIntOrDefault("POLL_MAX_ATTEMPTS", c.Polling.MaxAttempts)

	c.Upload.MaxBytes = envInt64OrDefault("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)

	c.Kafka.Enabled = envBoolOrDefault("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envListOrDefault("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicProgress = envOrDefault("KAFKA_TOPIC_PROGRESS", c.Kafka.TopicProgress)
	c.Kafka.TopicResult = envOrDefault("KAFKA_TOPIC_RESULT", c.Kafka.TopicResult)

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service config: %w", err)
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}
	if err := c.Polling.Validate(); err != nil {
		return fmt.Errorf("polling config: %w", err)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload config: max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka config: brokers cannot be empty when kafka is enabled")
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}
	return nil
}

// Validate validates listener settings.
func (s *ServiceConfig) Validate() error {
	for name, port := range map[string]string{"http_port": s.HTTPPort, "grpc_port": s.GRPCPort} {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %q", name, port)
		}
	}
	if s.MetricsAddr == "" {
		return errors.New("metrics_addr cannot be empty")
	}
	return nil
}

// Validate validates the provider selection and its credential.
func (p *ProviderConfig) Validate() error {
	switch p.Name {
	case ProviderAssemblyAI:
		if strings.TrimSpace(p.APIKey) == "" {
			return errors.New("api_key is required for the assemblyai provider (set ASSEMBLYAI_API_KEY)")
		}
	case ProviderGoogle, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", p.Name)
	}
	if p.MaxRetries < 1 || p.MaxRetries > maxRetries {
		return fmt.Errorf("max_retries must be between 1 and %d, got %d", maxRetries, p.MaxRetries)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative, got %v", p.RetryDelay)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", p.Timeout)
	}
	return nil
}

// Validate validates polling limits.
func (p *PollingConfig) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", p.Interval)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	return nil
}

// Validate validates logging settings.
func (o *ObservabilityConfig) Validate() error {
	switch o.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", o.LogFormat)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envInt64OrDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envListOrDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
