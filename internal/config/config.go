package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Tables     TablesConfig     `mapstructure:"tables"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Orders     OrdersConfig     `mapstructure:"orders"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Events     EventsConfig     `mapstructure:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	RunLocal bool   `mapstructure:"run_local"`
}

type AWSConfig struct {
	Region           string `mapstructure:"region"`
	EndpointOverride string `mapstructure:"endpoint_override"`
}

// TablesConfig names the DynamoDB tables backing each logical collection.
type TablesConfig struct {
	Orders          string `mapstructure:"orders"`
	Products        string `mapstructure:"products"`
	Idempotency     string `mapstructure:"idempotency"`
	ManualDecisions string `mapstructure:"manual_decisions"`
	SystemSettings  string `mapstructure:"system_settings"`
	Blacklist       string `mapstructure:"blacklist"`
	AuditLogs       string `mapstructure:"audit_logs"`
}

type QueueConfig struct {
	OrderEventsURL string `mapstructure:"order_events_url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	OrdersLimit  int           `mapstructure:"orders_limit"`
	OrdersWindow time.Duration `mapstructure:"orders_window"`
	EdgeLimit    int           `mapstructure:"edge_limit"`
	EdgeWindow   time.Duration `mapstructure:"edge_window"`
}

type OrdersConfig struct {
	PaymentWindow time.Duration `mapstructure:"payment_window"`
	// IdempotencyTTL is how long a client key dedupes retries; 0 never expires.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// AllowPostDeliveryReturn lifts terminal immutability from DELIVERED and
	// RETURNED so the return flow of the transition table becomes reachable.
	AllowPostDeliveryReturn bool `mapstructure:"allow_post_delivery_return"`
}

type GovernanceConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type EventsConfig struct {
	Workers      int           `mapstructure:"workers"`
	Buffer       int           `mapstructure:"buffer"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// PublishTimeout bounds one SQS send. In Lambda mode sends run inside
	// the request, so keep it short.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Enabled   bool   `mapstructure:"enabled"`
}

// legacyEnv maps config keys to the environment variable names used by the
// Lambda deployment templates.
var legacyEnv = map[string]string{
	"tables.orders":          "ORDERS_TABLE",
	"tables.idempotency":     "IDEMPOTENCY_TABLE",
	"queue.order_events_url": "ORDERS_QUEUE_URL",
	"aws.region":             "AWS_REGION",
	"aws.endpoint_override":  "AWS_ENDPOINT_OVERRIDE",
	"server.run_local":       "RUN_LOCAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "meatshop-orderflow")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.run_local", false)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("tables.orders", "orders")
	v.SetDefault("tables.products", "products")
	v.SetDefault("tables.idempotency", "idempotency")
	v.SetDefault("tables.manual_decisions", "manual_decisions")
	v.SetDefault("tables.system_settings", "system_settings")
	v.SetDefault("tables.blacklist", "blacklist")
	v.SetDefault("tables.audit_logs", "audit_logs")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.orders_limit", 5)
	v.SetDefault("ratelimit.orders_window", time.Hour)
	v.SetDefault("ratelimit.edge_limit", 100)
	v.SetDefault("ratelimit.edge_window", time.Minute)
	v.SetDefault("orders.payment_window", time.Hour)
	v.SetDefault("orders.idempotency_ttl", 48*time.Hour)
	v.SetDefault("orders.allow_post_delivery_return", false)
	v.SetDefault("governance.cache_ttl", 30*time.Second)
	v.SetDefault("events.workers", 2)
	v.SetDefault("events.buffer", 256)
	v.SetDefault("events.max_attempts", 3)
	v.SetDefault("events.retry_backoff", 200*time.Millisecond)
	v.SetDefault("events.publish_timeout", 2*time.Second)
	v.SetDefault("metrics.namespace", "MeatshopOrderflow")
	v.SetDefault("metrics.enabled", true)
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables use the upper-cased key with dots replaced by
// underscores (tables.orders -> TABLES_ORDERS).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	tables := map[string]string{
		"tables.orders":           c.Tables.Orders,
		"tables.products":         c.Tables.Products,
		"tables.idempotency":      c.Tables.Idempotency,
		"tables.manual_decisions": c.Tables.ManualDecisions,
		"tables.system_settings":  c.Tables.SystemSettings,
		"tables.blacklist":        c.Tables.Blacklist,
		"tables.audit_logs":       c.Tables.AuditLogs,
	}
	for key, name := range tables {
		if name == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.RateLimit.OrdersLimit <= 0 || c.RateLimit.EdgeLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}
