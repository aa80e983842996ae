package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	App          AppConfig
	Auth         AuthConfig
	Storage      StorageConfig
	OCR          OCRConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxRequestMB    int
	RateLimitRPS    int
	RateLimitBurst  int
}

// MaxRequestBytes returns the request body limit in bytes
func (s ServerConfig) MaxRequestBytes() int64 {
	return int64(s.MaxRequestMB) << 20
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration. When disabled the request lock and
// the live event hub fall back to single-instance, in-process versions.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level  string
	Format string // json or text
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string
	Version     string
	Name        string
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// StorageConfig selects where uploaded and generated documents live
type StorageConfig struct {
	Backend        string // minio or memory
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// OCRConfig holds the vision model used for scanned documents.
// An empty provider disables OCR.
type OCRConfig struct {
	Provider string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// WorkflowConfig holds approval workflow tunables
type WorkflowConfig struct {
	AmountTolerance      decimal.Decimal
	ProformaTolerance    decimal.Decimal
	EnforceProformaMatch bool
	LockTTL              time.Duration
	MaxUploadMB          int
}

// MaxUploadBytes returns the upload limit in bytes
func (w WorkflowConfig) MaxUploadBytes() int64 {
	return int64(w.MaxUploadMB) << 20
}

// NotificationConfig holds notification service configuration
type NotificationConfig struct {
	BaseURL   string
	QueueSize int
	Email     EmailConfig
	Slack     SlackConfig
}

// EmailConfig holds email notification configuration
type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
}

// SlackConfig holds Slack notification configuration
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsSlice("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			MaxRequestMB:    getEnvAsInt("SERVER_MAX_REQUEST_MB", 12),
			RateLimitRPS:    getEnvAsInt("SERVER_RATE_LIMIT_RPS", 20),
			RateLimitBurst:  getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "procurement"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Name:        getEnv("APP_NAME", "procurement-workflows"),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			AccessTokenTTL: getEnvAsDuration("JWT_ACCESS_TTL", 8*time.Hour),
		},
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", "memory"),
			MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
			MinIOBucket:    getEnv("MINIO_BUCKET", "procurement-documents"),
			MinIOUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		OCR: OCRConfig{
			Provider: getEnv("OCR_PROVIDER", ""),
			APIKey:   getEnv("OCR_API_KEY", ""),
			Model:    getEnv("OCR_MODEL", ""),
			Timeout:  getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
		},
		Workflow: WorkflowConfig{
			AmountTolerance:      getEnvAsDecimal("WORKFLOW_AMOUNT_TOLERANCE", decimal.RequireFromString("0.01")),
			ProformaTolerance:    getEnvAsDecimal("WORKFLOW_PROFORMA_TOLERANCE", decimal.RequireFromString("1.00")),
			EnforceProformaMatch: getEnvAsBool("WORKFLOW_ENFORCE_PROFORMA_MATCH", true),
			LockTTL:              getEnvAsDuration("WORKFLOW_LOCK_TTL", 30*time.Second),
			MaxUploadMB:          getEnvAsInt("WORKFLOW_MAX_UPLOAD_MB", 10),
		},
		Notification: NotificationConfig{
			BaseURL:   getEnv("NOTIFICATION_BASE_URL", "http://localhost:8080"),
			QueueSize: getEnvAsInt("NOTIFICATION_QUEUE_SIZE", 256),
			Email: EmailConfig{
				Enabled:      getEnvAsBool("NOTIFICATION_EMAIL_ENABLED", false),
				SMTPHost:     getEnv("NOTIFICATION_SMTP_HOST", "smtp.gmail.com"),
				SMTPPort:     getEnvAsInt("NOTIFICATION_SMTP_PORT", 587),
				SMTPUser:     getEnv("NOTIFICATION_SMTP_USER", ""),
				SMTPPassword: getEnv("NOTIFICATION_SMTP_PASSWORD", ""),
				FromAddress:  getEnv("NOTIFICATION_FROM_ADDRESS", "noreply@example.com"),
			},
			Slack: SlackConfig{
				Enabled:    getEnvAsBool("NOTIFICATION_SLACK_ENABLED", false),
				WebhookURL: getEnv("NOTIFICATION_SLACK_WEBHOOK_URL", ""),
			},
		},
	}

	if cfg.Auth.JWTSecret == "" && cfg.App.Environment == "development" {
		cfg.Auth.JWTSecret = "development-secret-change-me"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxRequestMB <= 0 {
		return fmt.Errorf("invalid max request size: %d", c.Server.MaxRequestMB)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("jwt secret must be at least 16 characters")
	}

	switch c.Storage.Backend {
	case "memory":
	case "minio":
		if c.Storage.MinIOEndpoint == "" || c.Storage.MinIOBucket == "" {
			return fmt.Errorf("minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("invalid storage backend: %q", c.Storage.Backend)
	}

	switch c.OCR.Provider {
	case "":
	case "anthropic", "openai":
		if c.OCR.APIKey == "" {
			return fmt.Errorf("ocr api key is required for provider %s", c.OCR.Provider)
		}
	default:
		return fmt.Errorf("invalid ocr provider: %q", c.OCR.Provider)
	}

	if c.Workflow.AmountTolerance.IsNegative() || c.Workflow.ProformaTolerance.IsNegative() {
		return fmt.Errorf("workflow tolerances must not be negative")
	}

	if c.Workflow.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d", c.Workflow.MaxUploadMB)
	}

	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// DatabaseURL returns the connection string in URL form, as the
// migration driver expects it
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
