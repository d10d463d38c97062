package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
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
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Chain     ChainConfig     `yaml:"chain"`
	Contracts ContractsConfig `yaml:"contracts"`
	Funding   FundingConfig   `yaml:"funding"`
	KMS       KMSConfig       `yaml:"kms"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	Database        string        `yaml:"database" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds the job queue connection and topology
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Retry      RetryConfig      `yaml:"retry"`
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
	Name            string `yaml:"name"`
	Durable         bool   `yaml:"durable"`
	AutoDelete      bool   `yaml:"auto_delete"`
	Exclusive       bool   `yaml:"exclusive"`
	RetryQueue      string `yaml:"retry_queue"`
	DeadLetterQueue string `yaml:"dead_letter_queue"`
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
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RetryConfig holds the job redelivery policy: delivery attempts and exponential backoff
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// EventsConfig holds the topic exchange finalized events are published to
type EventsConfig struct {
	Exchange ExchangeConfig `yaml:"exchange"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ClaimLease      time.Duration `yaml:"claim_lease"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChainConfig holds the JSON-RPC endpoint and platform signing keys
type ChainConfig struct {
	RPCURL              string        `yaml:"rpc_url" env:"CHAIN_RPC_URL"`
	ChainID             int64         `yaml:"chain_id" env:"CHAIN_ID"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	AdminPrivateKey     string        `yaml:"-" env:"CHAIN_ADMIN_PRIVATE_KEY"`
	FaucetPrivateKey    string        `yaml:"-" env:"CHAIN_FAUCET_PRIVATE_KEY"`
}

// ContractsConfig holds deployed contract addresses
type ContractsConfig struct {
	OrganizationFactory string `yaml:"organization_factory" env:"CONTRACT_ORGANIZATION_FACTORY"`
	AssetRegistry       string `yaml:"asset_registry" env:"CONTRACT_ASSET_REGISTRY"`
	RevenueDistributor  string `yaml:"revenue_distributor" env:"CONTRACT_REVENUE_DISTRIBUTOR"`
	Stablecoin          string `yaml:"stablecoin" env:"CONTRACT_STABLECOIN"`
	StablecoinDecimals  int32  `yaml:"stablecoin_decimals"`
}

// FundingConfig holds the amounts sent to a freshly funded user wallet
type FundingConfig struct {
	NativeAmount     string `yaml:"native_amount"`
	StablecoinAmount string `yaml:"stablecoin_amount"`
}

// KMSConfig holds the key-management service endpoint
type KMSConfig struct {
	BaseURL  string        `yaml:"base_url" env:"KMS_BASE_URL"`
	APIToken string        `yaml:"-" env:"KMS_API_TOKEN"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Events.Exchange.Name == "" {
		c.Events.Exchange.Name = "blockchain.events"
	}
	if c.Events.Exchange.Type == "" {
		c.Events.Exchange.Type = "topic"
	}
	if c.RabbitMQ.Retry.MaxAttempts <= 0 {
		c.RabbitMQ.Retry.MaxAttempts = 3
	}
	if c.RabbitMQ.Retry.BaseDelay <= 0 {
		c.RabbitMQ.Retry.BaseDelay = 5 * time.Second
	}
	if c.Contracts.StablecoinDecimals == 0 {
		c.Contracts.StablecoinDecimals = 6
	}
	if c.Chain.ReceiptPollInterval <= 0 {
		c.Chain.ReceiptPollInterval = 2 * time.Second
	}
	if c.KMS.Timeout <= 0 {
		c.KMS.Timeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

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

// ValidateAPIConfig checks the settings the api-service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.Validate()
}

// ValidateWorkerConfig checks the settings the worker-service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.ClaimLease > 0 && c.Worker.JobTimeout > 0 && c.Worker.ClaimLease <= c.Worker.JobTimeout {
		return fmt.Errorf("worker claim_lease must be longer than job_timeout")
	}

	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain rpc_url is required")
	}

	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain chain_id must be greater than 0")
	}

	if c.Chain.AdminPrivateKey == "" {
		return fmt.Errorf("chain admin private key is required (CHAIN_ADMIN_PRIVATE_KEY)")
	}

	if c.Chain.FaucetPrivateKey == "" {
		return fmt.Errorf("chain faucet private key is required (CHAIN_FAUCET_PRIVATE_KEY)")
	}

	if c.KMS.BaseURL == "" {
		return fmt.Errorf("kms base_url is required")
	}

	if c.RabbitMQ.Queue.RetryQueue == "" {
		return fmt.Errorf("rabbitmq retry_queue is required")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < MinPort || c.Metrics.Port > MaxPort) {
		return fmt.Errorf("invalid metrics port: %d (must be between %d and %d)", c.Metrics.Port, MinPort, MaxPort)
	}

	return nil
}
