package config

import (
	"time"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `mapstructure:"environment" yaml:"environment" json:"environment" validate:"required"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server" json:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database" json:"database"`
	Redis        RedisConfig        `mapstructure:"redis" yaml:"redis" json:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka" yaml:"kafka" json:"kafka"`
	Webhook      WebhookConfig      `mapstructure:"webhook" yaml:"webhook" json:"webhook"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache" json:"cache"`
	Auth         AuthConfig         `mapstructure:"auth" yaml:"auth" json:"-"`
	Engine       EngineConfig       `mapstructure:"engine" yaml:"engine" json:"engine"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification" json:"notification"`
	Audit        AuditConfig        `mapstructure:"audit" yaml:"audit" json:"audit"`
	Log          LogConfig          `mapstructure:"log" yaml:"log" json:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	EnableSwagger   bool          `mapstructure:"enable_swagger" yaml:"enable_swagger" json:"enable_swagger"`
}

// DatabaseConfig represents the ledger database connection
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver" json:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" yaml:"-" json:"-" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=silent error warn info"`
}

// RedisConfig backs the notification stream publisher and the redis stats cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address  string `mapstructure:"address" yaml:"address" json:"address" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password" yaml:"-" json:"-"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`
}

// CacheConfig selects where stats summaries are cached. BadgerPath empty
// keeps the badger store in memory.
type CacheConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend" json:"backend" validate:"oneof=none redis badger"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	BadgerPath string        `mapstructure:"badger_path" yaml:"badger_path" json:"badger_path"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers" json:"brokers" validate:"required_if=Enabled true"`
}

type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	URL     string        `mapstructure:"url" yaml:"url" json:"url" validate:"required_if=Enabled true,omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// AuthConfig verifies operator bearer tokens
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"-" json:"-" validate:"required,min=16"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer" json:"issuer" validate:"required"`
	Audience  string `mapstructure:"audience" yaml:"audience" json:"audience" validate:"required"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" json:"token_ttl"`
}

// EngineConfig tunes aggregation and moderation
type EngineConfig struct {
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size" validate:"min=0"`
	AdapterTimeout    time.Duration `mapstructure:"adapter_timeout" yaml:"adapter_timeout" json:"adapter_timeout"`
	DegradeMode       string        `mapstructure:"degrade_mode" yaml:"degrade_mode" json:"degrade_mode" validate:"oneof=strict partial"`
	MaxPageLimit      int           `mapstructure:"max_page_limit" yaml:"max_page_limit" json:"max_page_limit" validate:"min=1,max=1000"`
	DefaultPageLimit  int           `mapstructure:"default_page_limit" yaml:"default_page_limit" json:"default_page_limit" validate:"min=1"`
	ExportLimit       int           `mapstructure:"export_limit" yaml:"export_limit" json:"export_limit" validate:"min=1"`
	BulkWorkers       int           `mapstructure:"bulk_workers" yaml:"bulk_workers" json:"bulk_workers" validate:"min=1"`
	MaxBulkItems      int           `mapstructure:"max_bulk_items" yaml:"max_bulk_items" json:"max_bulk_items" validate:"min=1"`
	StrictTransitions bool          `mapstructure:"strict_transitions" yaml:"strict_transitions" json:"strict_transitions"`
}

type NotificationConfig struct {
	Workers    int           `mapstructure:"workers" yaml:"workers" json:"workers" validate:"min=1"`
	QueueSize  int           `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size" validate:"min=1"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Topic      string        `mapstructure:"topic" yaml:"topic" json:"topic"`
	Permission string        `mapstructure:"permission" yaml:"permission" json:"permission"`
	// Stream enables the WebSocket feed for connected consoles
	Stream       bool `mapstructure:"stream" yaml:"stream" json:"stream"`
	StreamReplay int  `mapstructure:"stream_replay" yaml:"stream_replay" json:"stream_replay" validate:"min=0"`
}

type AuditConfig struct {
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size" validate:"min=1"`
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size" validate:"min=1"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval" json:"flush_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
}

// TracingConfig controls the OpenTelemetry stdout exporters.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Metrics     bool   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
}
