package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Converter ConverterConfig `yaml:"converter"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Recorder  RecorderConfig  `yaml:"recorder"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ConverterConfig holds the converter executable and job execution settings
type ConverterConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	DownloadURL      string        `yaml:"download_url"`
	MinSizeBytes     int64         `yaml:"min_size_bytes"`
	MaxRedirects     int           `yaml:"max_redirects"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	ExpectedSHA256   string        `yaml:"expected_sha256"`
	WorkDir          string        `yaml:"work_dir"`
	DeliveryMode     string        `yaml:"delivery_mode"`
	StderrLines      int           `yaml:"stderr_lines"`
	KillGracePeriod  time.Duration `yaml:"kill_grace_period"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
	ProvisionOnStart bool          `yaml:"provision_on_start"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// RecorderConfig holds recorder service configuration
type RecorderConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ProcessTimeout  time.Duration `yaml:"process_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Converter.DeliveryMode == "" {
		c.Converter.DeliveryMode = "buffered"
	}
	if c.Converter.MaxRedirects <= 0 {
		c.Converter.MaxRedirects = 5
	}
	if c.Converter.DownloadTimeout <= 0 {
		c.Converter.DownloadTimeout = 2 * time.Minute
	}
	if c.Converter.StderrLines <= 0 {
		c.Converter.StderrLines = 20
	}
	if c.Converter.KillGracePeriod <= 0 {
		c.Converter.KillGracePeriod = 5 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.RabbitMQ.Connection.RetryAttempts <= 0 {
		c.RabbitMQ.Connection.RetryAttempts = 1
	}
	if c.RabbitMQ.Publish.Timeout <= 0 {
		c.RabbitMQ.Publish.Timeout = 5 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Recorder.Concurrency <= 0 {
		c.Recorder.Concurrency = 1
	}
	if c.Recorder.ProcessTimeout <= 0 {
		c.Recorder.ProcessTimeout = 10 * time.Second
	}
	if c.Recorder.ShutdownTimeout <= 0 {
		c.Recorder.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateConverterConfig checks the settings every converter entry point needs
func (c *Config) ValidateConverterConfig() error {
	if strings.TrimSpace(c.Converter.ExecutablePath) == "" {
		return fmt.Errorf("converter executable_path is required")
	}

	if strings.TrimSpace(c.Converter.DownloadURL) == "" {
		return fmt.Errorf("converter download_url is required")
	}

	if c.Converter.MinSizeBytes <= 0 {
		return fmt.Errorf("converter min_size_bytes must be greater than 0")
	}

	switch c.Converter.DeliveryMode {
	case "buffered", "direct":
	default:
		return fmt.Errorf("invalid converter delivery_mode: %q (must be buffered or direct)", c.Converter.DeliveryMode)
	}

	if c.Converter.JobTimeout < 0 {
		return fmt.Errorf("converter job_timeout must not be negative")
	}

	return nil
}

// ValidateAPIConfig checks the API service configuration
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.ValidateConverterConfig(); err != nil {
		return err
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRecorderConfig checks the recorder service configuration.
// The recorder always needs both the database and the broker.
func (c *Config) ValidateRecorderConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Recorder.Concurrency <= 0 {
		return fmt.Errorf("recorder concurrency must be greater than 0")
	}

	if c.Recorder.ProcessTimeout <= 0 {
		return fmt.Errorf("recorder process_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
