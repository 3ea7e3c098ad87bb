package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port            string
		Env             string
		Timeout         time.Duration
		ShutdownTimeout time.Duration
		BaseURL         string
	}

	// Database configuration. Driver is "sqlite" or "postgres".
	Database struct {
		Driver      string
		Path        string
		Host        string
		Port        string
		User        string
		Password    string
		Name        string
		SSLMode     string
		MaxConns    int
		Timeout     time.Duration
		BusyTimeout time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Chat holds limits applied to submitted messages
	Chat struct {
		MaxAuthorLength  int
		MaxContentLength int
		Topic            string
	}

	// Facilitator configuration
	Facilitator struct {
		Enabled          bool
		ID               string
		Threshold        int
		Model            string
		BaseURL          string
		MaxTokens        int
		Temperature      float64
		Timeout          time.Duration
		ClaimTTL         time.Duration
		ReleaseTimeout   time.Duration
		FailureThreshold uint
		RetryTimeout     time.Duration
	}

	// Vault configuration for the facilitator API key
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		MountPath   string
		SecretsPath string
		CacheTTL    time.Duration
	}

	// Redis change-feed relay
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	// GRPC health endpoint
	GRPC struct {
		Enabled bool
		Port    string
	}

	// Observability settings
	Observability struct {
		ServiceName    string
		TracingEnabled bool
		HealthPeriod   time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads the configuration from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 60*time.Second)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	cfg.Database.Driver = strings.ToLower(getEnvString("DB_DRIVER", "sqlite"))
	cfg.Database.Path = getEnvString("DB_PATH", "chat.db")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "discussion")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.BusyTimeout = getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Chat.MaxAuthorLength = getEnvInt("MAX_AUTHOR_LENGTH", 64)
	cfg.Chat.MaxContentLength = getEnvInt("MAX_CONTENT_LENGTH", 4000)
	cfg.Chat.Topic = getEnvString("DISCUSSION_TOPIC", "Should there be air-conditioning in school classrooms? Why or why not?")

	cfg.Facilitator.Enabled = getEnvBool("FACILITATOR_ENABLED", true)
	cfg.Facilitator.ID = getEnvString("FACILITATOR_ID", "GPT4o")
	cfg.Facilitator.Threshold = getEnvInt("FACILITATOR_THRESHOLD", 10)
	cfg.Facilitator.Model = getEnvString("FACILITATOR_MODEL", "gpt-4o-mini")
	cfg.Facilitator.BaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.Facilitator.MaxTokens = getEnvInt("FACILITATOR_MAX_TOKENS", 800)
	cfg.Facilitator.Temperature = getEnvFloat("FACILITATOR_TEMPERATURE", 0.1)
	cfg.Facilitator.Timeout = getEnvDuration("FACILITATOR_TIMEOUT", 45*time.Second)
	cfg.Facilitator.ClaimTTL = getEnvDuration("FACILITATOR_CLAIM_TTL", 90*time.Second)
	cfg.Facilitator.ReleaseTimeout = getEnvDuration("FACILITATOR_RELEASE_TIMEOUT", 5*time.Second)
	cfg.Facilitator.FailureThreshold = uint(getEnvInt("FACILITATOR_BREAKER_FAILURES", 5))
	cfg.Facilitator.RetryTimeout = getEnvDuration("FACILITATOR_BREAKER_RETRY", 60*time.Second)

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.MountPath = getEnvString("VAULT_MOUNT_PATH", "secret")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "discussion-facilitator")
	cfg.Vault.CacheTTL = getEnvDuration("VAULT_CACHE_TTL", 5*time.Minute)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Channel = getEnvString("REDIS_CHANNEL", "discussion:log")

	cfg.GRPC.Enabled = getEnvBool("GRPC_ENABLED", true)
	cfg.GRPC.Port = getEnvString("GRPC_PORT", "9094")

	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "discussion-facilitator")
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.HealthPeriod = getEnvDuration("HEALTH_CHECK_PERIOD", 30*time.Second)

	return cfg
}

// Validate reports configuration combinations the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.Facilitator.Threshold <= 0 {
		return fmt.Errorf("FACILITATOR_THRESHOLD must be positive, got %d", c.Facilitator.Threshold)
	}
	if strings.TrimSpace(c.Facilitator.ID) == "" {
		return fmt.Errorf("FACILITATOR_ID must not be empty")
	}
	if c.Facilitator.Timeout <= 0 {
		return fmt.Errorf("FACILITATOR_TIMEOUT must be positive")
	}
	// A claim lease must outlive the invocation it guards.
	if c.Facilitator.ClaimTTL <= c.Facilitator.Timeout {
		return fmt.Errorf("FACILITATOR_CLAIM_TTL (%s) must exceed FACILITATOR_TIMEOUT (%s)",
			c.Facilitator.ClaimTTL, c.Facilitator.Timeout)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Chat.MaxAuthorLength <= 0 || c.Chat.MaxContentLength <= 0 {
		return fmt.Errorf("message length limits must be positive")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
