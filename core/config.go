package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline services.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. YAML file, then environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithAppName("producer"),
//	    WithBrokerHost("rabbit.internal"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// App configuration
	App AppConfig `yaml:"app"`

	// Broker connection configuration
	Broker BrokerConfig `yaml:"broker"`

	// Prediction service client configuration
	Prediction PredictionConfig `yaml:"prediction"`

	// Consumer per-destination overrides
	Consumer ConsumerConfig `yaml:"consumer"`

	// Training reporter configuration
	Training TrainingConfig `yaml:"training"`

	// Telemetry exporter configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	logger Logger `yaml:"-"`
}

// AppConfig identifies the service and its HTTP surface.
type AppConfig struct {
	Name             string        `yaml:"name" env:"ROUTEMIND_APP_NAME" validate:"required"`
	Port             int           `yaml:"port" env:"ROUTEMIND_PORT" validate:"gte=1,lte=65535"`
	AutoSendEnabled  bool          `yaml:"auto_send_enabled" env:"ROUTEMIND_AUTO_SEND"`
	AutoSendInterval time.Duration `yaml:"auto_send_interval" env:"ROUTEMIND_AUTO_SEND_INTERVAL" validate:"gt=0"`
}

// BrokerConfig holds the RabbitMQ connection parameters.
type BrokerConfig struct {
	Host  string `yaml:"host" env:"ROUTEMIND_BROKER_HOST" validate:"required"`
	Port  int    `yaml:"port" env:"ROUTEMIND_BROKER_PORT" validate:"gte=1,lte=65535"`
	User  string `yaml:"user" env:"ROUTEMIND_BROKER_USER"`
	Pass  string `yaml:"pass" env:"ROUTEMIND_BROKER_PASS"`
	VHost string `yaml:"vhost" env:"ROUTEMIND_BROKER_VHOST"`
}

// URL assembles the AMQP connection string.
func (b BrokerConfig) URL() string {
	vhost := b.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", b.User, b.Pass, b.Host, b.Port, vhost)
}

// PredictionConfig configures the prediction service client.
type PredictionConfig struct {
	BaseURL      string        `yaml:"base_url" env:"ROUTEMIND_PREDICTION_URL" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" env:"ROUTEMIND_PREDICTION_TIMEOUT" validate:"gt=0"`
	HealthWindow time.Duration `yaml:"health_window" env:"ROUTEMIND_PREDICTION_HEALTH_WINDOW" validate:"gt=0"`
	BatchEnabled bool          `yaml:"batch_enabled" env:"ROUTEMIND_PREDICTION_BATCH"`
	BatchSize    int           `yaml:"batch_size" env:"ROUTEMIND_PREDICTION_BATCH_SIZE" validate:"gte=1,lte=100"`
}

// DestinationPolicy is the consumer policy for one destination.
type DestinationPolicy struct {
	Concurrency int           `yaml:"concurrency" validate:"gte=1"`
	Prefetch    int           `yaml:"prefetch" validate:"gte=1"`
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay  time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// ConsumerConfig holds per-destination policy overrides. Destinations not
// listed use the built-in defaults.
type ConsumerConfig struct {
	Policies map[Destination]DestinationPolicy `yaml:"policies"`
}

// DefaultDestinationPolicies returns the initial per-destination policy
// table.
func DefaultDestinationPolicies() map[Destination]DestinationPolicy {
	return map[Destination]DestinationPolicy{
		DestinationCritical: {Concurrency: 5, Prefetch: 1, MaxRetries: 2, RetryDelay: 1 * time.Second},
		DestinationHigh:     {Concurrency: 3, Prefetch: 2, MaxRetries: 3, RetryDelay: 2 * time.Second},
		DestinationNormal:   {Concurrency: 2, Prefetch: 5, MaxRetries: 3, RetryDelay: 5 * time.Second},
		DestinationLow:      {Concurrency: 1, Prefetch: 10, MaxRetries: 3, RetryDelay: 5 * time.Second},
		DestinationBatch:    {Concurrency: 1, Prefetch: 20, MaxRetries: 5, RetryDelay: 10 * time.Second},
		DestinationAnomaly:  {Concurrency: 2, Prefetch: 1, MaxRetries: 1, RetryDelay: 5 * time.Second},
	}
}

// PolicyFor resolves the effective policy for a destination: the configured
// override when present, else the default.
func (c ConsumerConfig) PolicyFor(d Destination) DestinationPolicy {
	if p, ok := c.Policies[d]; ok {
		return p
	}
	return DefaultDestinationPolicies()[d]
}

// TrainingConfig configures outcome reporting.
type TrainingConfig struct {
	Enabled        bool `yaml:"enabled" env:"ROUTEMIND_TRAINING_ENABLED"`
	ReportFailures bool `yaml:"report_failures" env:"ROUTEMIND_TRAINING_REPORT_FAILURES"`
	QueueSize      int  `yaml:"queue_size" env:"ROUTEMIND_TRAINING_QUEUE_SIZE" validate:"gte=1"`
}

// TelemetryConfig configures trace export and the metrics endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"ROUTEMIND_OTLP_ENDPOINT"`
	MetricsPath  string `yaml:"metrics_path" env:"ROUTEMIND_METRICS_PATH" validate:"required,startswith=/"`
	ServiceName  string `yaml:"service_name" env:"ROUTEMIND_SERVICE_NAME"`
	Insecure     bool   `yaml:"insecure" env:"ROUTEMIND_OTLP_INSECURE"`
}

// LoggingConfig configures the production logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"ROUTEMIND_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"ROUTEMIND_LOG_FORMAT" validate:"oneof=json console"`
	Output string `yaml:"output" env:"ROUTEMIND_LOG_OUTPUT" validate:"oneof=stdout stderr"`
}

// Option is a functional configuration option.
type Option func(*Config) error

// WithAppName sets the service name.
func WithAppName(name string) Option {
	return func(c *Config) error {
		c.App.Name = name
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = name
		}
		return nil
	}
}

// WithPort sets the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) error {
		c.App.Port = port
		return nil
	}
}

// WithBrokerHost sets the broker host.
func WithBrokerHost(host string) Option {
	return func(c *Config) error {
		c.Broker.Host = host
		return nil
	}
}

// WithPredictionURL sets the prediction service base URL.
func WithPredictionURL(url string) Option {
	return func(c *Config) error {
		c.Prediction.BaseURL = url
		return nil
	}
}

// WithLogger sets the logger used during configuration and handed to
// components at wiring time.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithConfigFile loads a YAML file when the option is applied. Options run
// after the environment is read, so the file's values override environment
// variables and earlier options; later options override the file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.loadFile(path)
	}
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:             "routemind",
			Port:             8080,
			AutoSendEnabled:  false,
			AutoSendInterval: 15 * time.Second,
		},
		Broker: BrokerConfig{
			Host:  "localhost",
			Port:  5672,
			User:  "guest",
			Pass:  "guest",
			VHost: "/",
		},
		Prediction: PredictionConfig{
			BaseURL:      "http://localhost:8090",
			Timeout:      10 * time.Second,
			HealthWindow: 30 * time.Second,
			BatchEnabled: true,
			BatchSize:    100,
		},
		Consumer: ConsumerConfig{
			Policies: map[Destination]DestinationPolicy{},
		},
		Training: TrainingConfig{
			Enabled:        true,
			ReportFailures: false,
			QueueSize:      256,
		},
		Telemetry: TelemetryConfig{
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// NewConfig creates configuration with the standard layering: defaults,
// then the optional file named by ROUTEMIND_CONFIG_FILE, then environment
// variables, then functional options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("ROUTEMIND_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.App.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	return cfg, nil
}

// Logger returns the configured logger.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return &NoOpLogger{}
	}
	return c.logger
}

// Validate checks the configuration against its struct tags and the
// destination policy invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for d := range c.Consumer.Policies {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown destination %q in consumer policies", ErrInvalidConfiguration, d)
		}
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv overlays environment variables onto the configuration. Each
// field documents its variable via the env struct tag; the reads here are
// kept in the same order as the struct definitions.
func (c *Config) loadFromEnv() {
	envString(&c.App.Name, "ROUTEMIND_APP_NAME")
	envInt(&c.App.Port, "ROUTEMIND_PORT")
	envBool(&c.App.AutoSendEnabled, "ROUTEMIND_AUTO_SEND")
	envDuration(&c.App.AutoSendInterval, "ROUTEMIND_AUTO_SEND_INTERVAL")

	envString(&c.Broker.Host, "ROUTEMIND_BROKER_HOST")
	envInt(&c.Broker.Port, "ROUTEMIND_BROKER_PORT")
	envString(&c.Broker.User, "ROUTEMIND_BROKER_USER")
	envString(&c.Broker.Pass, "ROUTEMIND_BROKER_PASS")
	envString(&c.Broker.VHost, "ROUTEMIND_BROKER_VHOST")

	envString(&c.Prediction.BaseURL, "ROUTEMIND_PREDICTION_URL")
	envDuration(&c.Prediction.Timeout, "ROUTEMIND_PREDICTION_TIMEOUT")
	envDuration(&c.Prediction.HealthWindow, "ROUTEMIND_PREDICTION_HEALTH_WINDOW")
	envBool(&c.Prediction.BatchEnabled, "ROUTEMIND_PREDICTION_BATCH")
	envInt(&c.Prediction.BatchSize, "ROUTEMIND_PREDICTION_BATCH_SIZE")

	envBool(&c.Training.Enabled, "ROUTEMIND_TRAINING_ENABLED")
	envBool(&c.Training.ReportFailures, "ROUTEMIND_TRAINING_REPORT_FAILURES")
	envInt(&c.Training.QueueSize, "ROUTEMIND_TRAINING_QUEUE_SIZE")

	envString(&c.Telemetry.OTLPEndpoint, "ROUTEMIND_OTLP_ENDPOINT")
	envString(&c.Telemetry.MetricsPath, "ROUTEMIND_METRICS_PATH")
	envString(&c.Telemetry.ServiceName, "ROUTEMIND_SERVICE_NAME")
	envBool(&c.Telemetry.Insecure, "ROUTEMIND_OTLP_INSECURE")

	envString(&c.Logging.Level, "ROUTEMIND_LOG_LEVEL")
	envString(&c.Logging.Format, "ROUTEMIND_LOG_FORMAT")
	envString(&c.Logging.Output, "ROUTEMIND_LOG_OUTPUT")
}

func envString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
