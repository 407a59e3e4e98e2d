package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	S3        S3Config
	Gateway   GatewayConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	SMTP      SMTPConfig
	Refund    RefundConfig
	Payment   PaymentConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string `envconfig:"DB_HOST" default:"localhost"`
	Port            int    `envconfig:"DB_PORT" default:"5432"`
	User            string `envconfig:"DB_USER" default:"postgres"`
	Password        string `envconfig:"DB_PASSWORD"`
	Database        string `envconfig:"DB_NAME" default:"keyvault"`
	MaxConnections  int    `envconfig:"DB_MAX_CONNECTIONS" default:"25"`
	MinConnections  int    `envconfig:"DB_MIN_CONNECTIONS" default:"5"`
	MaxConnLifetime int    `envconfig:"DB_MAX_CONN_LIFETIME" default:"300"` // seconds
	AutoMigrate     bool   `envconfig:"DB_AUTO_MIGRATE" default:"false"`

	StatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"15s"`
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // "json" or "console"
}

// AuthConfig holds the bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	JWTIssuer string `envconfig:"AUTH_JWT_ISSUER"`
}

// S3Config holds refund proof storage configuration. When disabled, proofs
// are written to LocalDir.
type S3Config struct {
	Enabled       bool   `envconfig:"S3_ENABLED" default:"false"`
	Bucket        string `envconfig:"S3_BUCKET"`
	Region        string `envconfig:"S3_REGION" default:"sa-east-1"`
	Endpoint      string `envconfig:"S3_ENDPOINT"`
	Prefix        string `envconfig:"S3_PREFIX" default:"refund-proofs"`
	PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`
	LocalDir      string `envconfig:"PROOF_LOCAL_DIR" default:"data/proofs"`
	LocalBaseURL  string `envconfig:"PROOF_LOCAL_BASE_URL" default:"http://localhost:8080/files"`
}

// GatewayConfig selects and configures the payment processor.
type GatewayConfig struct {
	Provider             string `envconfig:"GATEWAY_PROVIDER" default:"sandbox"` // "stripe" or "sandbox"
	StripeSecretKey      string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	Currency             string `envconfig:"GATEWAY_CURRENCY" default:"brl"`
	SandboxApproveAfter  int    `envconfig:"SANDBOX_APPROVE_AFTER" default:"3"`
	SandboxTicketBaseURL string `envconfig:"SANDBOX_TICKET_BASE_URL" default:"http://localhost:8080/sandbox/boleto"`
}

// RedisConfig holds the redis connection used for idempotency and locks.
type RedisConfig struct {
	Enabled        bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Addr           string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password       string        `envconfig:"REDIS_PASSWORD"`
	DB             int           `envconfig:"REDIS_DB" default:"0"`
	IdempotencyTTL time.Duration `envconfig:"REDIS_IDEMPOTENCY_TTL" default:"72h"`
}

// KafkaConfig holds domain event publishing settings.
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"keyvault.orders"`
}

// SMTPConfig holds outgoing email settings.
type SMTPConfig struct {
	Enabled      bool   `envconfig:"SMTP_ENABLED" default:"false"`
	Host         string `envconfig:"SMTP_HOST"`
	Port         int    `envconfig:"SMTP_PORT" default:"587"`
	Username     string `envconfig:"SMTP_USERNAME"`
	Password     string `envconfig:"SMTP_PASSWORD"`
	From         string `envconfig:"SMTP_FROM" default:"no-reply@keyvault.gg"`
	AdminAddress string `envconfig:"SMTP_ADMIN_ADDRESS"`
}

// RefundConfig holds the refund workflow windows.
type RefundConfig struct {
	EligibilityWindow    time.Duration `envconfig:"REFUND_ELIGIBILITY_WINDOW" default:"48h"`
	SellerResponseWindow time.Duration `envconfig:"REFUND_SELLER_RESPONSE_WINDOW" default:"24h"`
}

// PaymentConfig holds payment status polling settings.
type PaymentConfig struct {
	PollInterval   time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"5s"`
	PollTimeout    time.Duration `envconfig:"PAYMENT_POLL_TIMEOUT" default:"30m"`
	ReconcileAfter time.Duration `envconfig:"PAYMENT_RECONCILE_AFTER" default:"10m"`
}

// SchedulerConfig holds the background worker settings.
type SchedulerConfig struct {
	Interval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"5m"`
	LockKey  string        `envconfig:"SCHEDULER_LOCK_KEY" default:"keyvault:scheduler:lock"`
	LockTTL  time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"10m"`
}

// Load loads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	switch c.Gateway.Provider {
	case "stripe":
		if c.Gateway.StripeSecretKey == "" {
			return fmt.Errorf("stripe secret key is required when the stripe gateway is selected")
		}
	case "sandbox":
	default:
		return fmt.Errorf("invalid gateway provider: %s (must be stripe or sandbox)", c.Gateway.Provider)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when kafka is enabled")
	}

	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return fmt.Errorf("SMTP host is required when email is enabled")
	}

	if c.Refund.EligibilityWindow <= 0 || c.Refund.SellerResponseWindow <= 0 {
		return fmt.Errorf("refund windows must be positive")
	}

	if c.Payment.PollInterval <= 0 {
		return fmt.Errorf("payment poll interval must be positive")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
