// Package config provides configuration management for Chat Pilot.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/domain"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Rate-limit window backends.
const (
	RateLimitBackendPostgres = "postgres"
	RateLimitBackendRedis    = "redis"
	RateLimitBackendMemory   = "memory"
)

// Completion providers.
const (
	LLMProviderGemini = "gemini"
	LLMProviderStatic = "static"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Security     SecurityConfig     `mapstructure:"security"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Credits      CreditsConfig      `mapstructure:"credits"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BasePath        string        `mapstructure:"base_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins is the CORS allow-list of the dashboard routes. Public
	// widget routes accept any origin and rely on the per-bot gate.
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`

	// ValidateResponses turns on OpenAPI response validation.
	ValidateResponses bool `mapstructure:"validate_responses"`
}

// DatabaseConfig contains PostgreSQL connection settings. One pool is shared
// by the repositories and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RedisConfig contains the optional Redis connection used for rate-limit windows.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects where bots, credits and notifications live.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres or memory
	// BotsFile is a YAML fixture loaded at startup by the memory driver.
	BotsFile string `mapstructure:"bots_file"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains token verification settings.
type SecurityConfig struct {
	// JWTSigningKey is the HS256 secret shared with the identity provider.
	JWTSigningKey       string   `mapstructure:"jwt_signing_key"`
	JWTVerificationKeys []string `mapstructure:"jwt_verification_keys"`
	JWTIssuer           string   `mapstructure:"jwt_issuer"`
	// ServiceTokenHash is the bcrypt hash of the internal service token.
	ServiceTokenHash string `mapstructure:"service_token_hash"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	JournalPoolSize int `mapstructure:"journal_pool_size"`
}

// RateLimitConfig contains per-visitor throttling settings.
type RateLimitConfig struct {
	// Backend defaults to the storage driver when empty.
	Backend        string        `mapstructure:"backend"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	DefaultMessage string        `mapstructure:"default_message"`
	Retention      time.Duration `mapstructure:"retention"`
}

// CreditsConfig contains ledger settings.
type CreditsConfig struct {
	TrialCredits      int64   `mapstructure:"trial_credits"`
	CostPerMessage    int64   `mapstructure:"cost_per_message"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	// AlertThresholds is a subset of {20, 5}; each has a stored sent flag.
	AlertThresholds   []int64 `mapstructure:"alert_thresholds"`
	OutOfCreditsReply string  `mapstructure:"out_of_credits_reply"`
}

// LLMConfig selects and tunes the completion backend.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // gemini or static
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int32         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	StaticReply string        `mapstructure:"static_reply"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NotificationConfig controls inbox retention.
type NotificationConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chat-pilot")

	// No prefix: database.max_conns is read from DATABASE_MAX_CONNS.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// RateLimitBackend resolves the effective window store.
func (c *Config) RateLimitBackend() string {
	if c.RateLimit.Backend != "" {
		return c.RateLimit.Backend
	}
	if c.Storage.Driver == StorageDriverMemory {
		return RateLimitBackendMemory
	}
	return RateLimitBackendPostgres
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be postgres or memory", c.Storage.Driver))
	}

	switch backend := c.RateLimitBackend(); backend {
	case RateLimitBackendMemory:
	case RateLimitBackendPostgres:
		if c.Storage.Driver != StorageDriverPostgres {
			errs = append(errs, fmt.Errorf("ratelimit.backend postgres requires storage.driver postgres"))
		}
	case RateLimitBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("ratelimit.backend redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend %q must be postgres, redis or memory", backend))
	}
	if c.RateLimit.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.default_limit must be positive"))
	}

	if c.Credits.TrialCredits < 0 {
		errs = append(errs, fmt.Errorf("credits.trial_credits must not be negative"))
	}
	if c.Credits.CostPerMessage <= 0 {
		errs = append(errs, fmt.Errorf("credits.cost_per_message must be positive"))
	}
	if c.Credits.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("credits.max_attempts must be positive"))
	}
	for _, t := range c.Credits.AlertThresholds {
		if t != domain.AlertThresholdLow && t != domain.AlertThresholdCritical {
			errs = append(errs, fmt.Errorf("credits.alert_thresholds supports only %d and %d, got %d",
				domain.AlertThresholdLow, domain.AlertThresholdCritical, t))
		}
	}

	switch c.LLM.Provider {
	case LLMProviderGemini:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required for the gemini provider"))
		}
	case LLMProviderStatic:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q must be gemini or static", c.LLM.Provider))
	}

	if len(c.Security.JWTSigningKey) < 32 {
		errs = append(errs, fmt.Errorf("security.jwt_signing_key must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

// ensureSecrets generates a signing key when none is configured so local
// runs boot. Tokens from the identity provider will not verify until the
// shared key is set.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt signing key: %w", err)
		}
		c.Security.JWTSigningKey = secret
		logBootstrapWarn(
			"auto-generated jwt_signing_key; set SECURITY_JWT_SIGNING_KEY to the identity provider secret",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/api/v1")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)
	v.SetDefault("server.validate_responses", false)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chatpilot")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "chatpilot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Redis
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "chatpilot:ratelimit")

	// Storage
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.bots_file", "")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_verification_keys", []string{})
	v.SetDefault("security.jwt_issuer", "")
	v.SetDefault("security.service_token_hash", "")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 64)
	v.SetDefault("worker.journal_pool_size", 32)

	// Rate limiting
	v.SetDefault("ratelimit.backend", "")
	v.SetDefault("ratelimit.default_limit", 20)
	v.SetDefault("ratelimit.default_message", "You're sending messages too quickly. Please wait a minute and try again.")
	v.SetDefault("ratelimit.retention", "10m")

	// Credits
	v.SetDefault("credits.trial_credits", 50)
	v.SetDefault("credits.cost_per_message", 1)
	v.SetDefault("credits.max_attempts", 5)
	v.SetDefault("credits.alert_thresholds", []int64{20, 5})
	v.SetDefault("credits.out_of_credits_reply", "This assistant is temporarily unavailable. Please try again later.")

	// Completion backend
	v.SetDefault("llm.provider", LLMProviderStatic)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.static_reply", "Thanks for your message! This is a development reply.")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Notifications
	v.SetDefault("notification.retention", "2160h")
}
