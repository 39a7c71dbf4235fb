package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Processor ProcessorConfig `mapstructure:"processor"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// WebhookConfig covers the ingress trust boundary and the durable queue
// layout.
type WebhookConfig struct {
	Secret              string        `mapstructure:"secret"` // hex; generated at startup when empty
	DedupTTL            time.Duration `mapstructure:"dedup_ttl"`
	MaxQueueSize        int           `mapstructure:"max_queue_size"`
	QueueKey            string        `mapstructure:"queue_key"`
	DeadLetterKey       string        `mapstructure:"dead_letter_key"`
	DeadLetterRetention time.Duration `mapstructure:"dead_letter_retention"`
	NotifyURL           string        `mapstructure:"notify_url"` // URL the CRM delivers to
	AutoRegister        bool          `mapstructure:"auto_register"`
	AllowLocalFallback  bool          `mapstructure:"allow_local_fallback"`
}

type ProcessorConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

type CRMConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type MemoryConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"` // empty disables the admin API
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CSP_ (CRM Sync Pipeline).
// Nested keys use underscore: CSP_REDIS_HOST, CSP_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.dedup_ttl", "1h")
	v.SetDefault("webhook.max_queue_size", 10000)
	v.SetDefault("webhook.queue_key", "webhook:queue")
	v.SetDefault("webhook.dead_letter_key", "webhook:dead_letter")
	v.SetDefault("webhook.dead_letter_retention", "168h")
	v.SetDefault("webhook.notify_url", "")
	v.SetDefault("webhook.auto_register", false)
	v.SetDefault("webhook.allow_local_fallback", false)
	v.SetDefault("processor.workers", 5)
	v.SetDefault("processor.batch_size", 10)
	v.SetDefault("processor.batch_timeout", "5s")
	v.SetDefault("processor.max_retries", 3)
	v.SetDefault("processor.base_backoff", "2s")
	v.SetDefault("processor.max_backoff", "30s")
	v.SetDefault("crm.base_url", "")
	v.SetDefault("crm.auth_token", "")
	v.SetDefault("crm.timeout", "10s")
	v.SetDefault("memory.base_url", "")
	v.SetDefault("memory.auth_token", "")
	v.SetDefault("memory.timeout", "10s")
	v.SetDefault("admin.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CSP_REDIS_HOST -> redis.host
	v.SetEnvPrefix("CSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
