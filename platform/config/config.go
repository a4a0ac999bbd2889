// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetMigrationsEnabled() bool
}

// RedisConfig provides settings for the redis-backed key-value store.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq follow-up scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// FlowConfig provides settings for the flow executor and conversation store.
type FlowConfig interface {
	GetFlowTemplatesDir() string
	GetKVBackend() string
	GetConversationRetention() time.Duration
	GetConversationSweepInterval() time.Duration
	GetConversationSweepDelay() time.Duration
	GetFollowUpDelay() time.Duration
}

// SyncConfig provides timings for the cross-surface sync engine.
type SyncConfig interface {
	GetSyncDrainInterval() time.Duration
	GetSyncRefreshThrottle() time.Duration
}

// StageConfig provides settings for the stage normalization and counting service.
type StageConfig interface {
	GetStageCacheTTL() time.Duration
	GetStageWriteBack() bool
}

// AIConfig provides settings for the AI-response step backend.
type AIConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	IsAIEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	DatabaseURL               string
	MigrationsEnabled         bool
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	CORSOrigins               []string
	KVBackend                 string
	FlowTemplatesDir          string
	ConversationRetention     time.Duration
	ConversationSweepInterval time.Duration
	ConversationSweepDelay    time.Duration
	FollowUpDelay             time.Duration
	SyncDrainInterval         time.Duration
	SyncRefreshThrottle       time.Duration
	StageCacheTTL             time.Duration
	StageWriteBack            bool
	EmailEnabled              bool
	SMTPHost                  string
	SMTPPort                  int
	SMTPUsername              string
	SMTPPassword              string
	EmailFromName             string
	EmailFromAddress          string
	MoonshotAPIKey            string
	MoonshotModel             string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string      { return c.DatabaseURL }
func (c *Config) GetMigrationsEnabled() bool { return c.MigrationsEnabled }

// RedisConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// FlowConfig implementation
func (c *Config) GetFlowTemplatesDir() string { return c.FlowTemplatesDir }
func (c *Config) GetKVBackend() string        { return c.KVBackend }
func (c *Config) GetConversationRetention() time.Duration {
	return c.ConversationRetention
}
func (c *Config) GetConversationSweepInterval() time.Duration {
	return c.ConversationSweepInterval
}
func (c *Config) GetConversationSweepDelay() time.Duration {
	return c.ConversationSweepDelay
}
func (c *Config) GetFollowUpDelay() time.Duration { return c.FollowUpDelay }

// SyncConfig implementation
func (c *Config) GetSyncDrainInterval() time.Duration   { return c.SyncDrainInterval }
func (c *Config) GetSyncRefreshThrottle() time.Duration { return c.SyncRefreshThrottle }

// StageConfig implementation
func (c *Config) GetStageCacheTTL() time.Duration { return c.StageCacheTTL }
func (c *Config) GetStageWriteBack() bool         { return c.StageWriteBack }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string  { return c.MoonshotModel }
func (c *Config) IsAIEnabled() bool         { return c.MoonshotAPIKey != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Env:                       getEnv("APP_ENV", "development"),
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		MigrationsEnabled:         strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisTLSInsecure:          strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:          mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CORSOrigins:               splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		KVBackend:                 strings.ToLower(getEnv("KV_BACKEND", "memory")),
		FlowTemplatesDir:          getEnv("FLOW_TEMPLATES_DIR", "flows"),
		ConversationRetention:     mustDuration(getEnv("CONVERSATION_RETENTION", "720h")),
		ConversationSweepInterval: mustDuration(getEnv("CONVERSATION_SWEEP_INTERVAL", "1h")),
		ConversationSweepDelay:    mustDuration(getEnv("CONVERSATION_SWEEP_DELAY", "30s")),
		FollowUpDelay:             mustDuration(getEnv("FOLLOW_UP_DELAY", "24h")),
		SyncDrainInterval:         mustDuration(getEnv("SYNC_DRAIN_INTERVAL", "2s")),
		SyncRefreshThrottle:       mustDuration(getEnv("SYNC_REFRESH_THROTTLE", "5s")),
		StageCacheTTL:             mustDuration(getEnv("STAGE_CACHE_TTL", "60s")),
		StageWriteBack:            strings.EqualFold(getEnv("STAGE_WRITE_BACK", "false"), "true"),
		EmailEnabled:              emailEnabled && smtpHost != "",
		SMTPHost:                  smtpHost,
		SMTPPort:                  mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:              getEnv("SMTP_USERNAME", ""),
		SMTPPassword:              getEnv("SMTP_PASSWORD", ""),
		EmailFromName:             getEnv("EMAIL_FROM_NAME", "Leadflow"),
		EmailFromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
		MoonshotAPIKey:            getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:             getEnv("MOONSHOT_MODEL", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.KVBackend {
	case "memory", "noop":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when KV_BACKEND is redis")
		}
	default:
		return fmt.Errorf("KV_BACKEND must be one of memory, redis, noop (got %q)", c.KVBackend)
	}
	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if c.ConversationRetention <= 0 {
		return fmt.Errorf("CONVERSATION_RETENTION must be a positive duration")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
