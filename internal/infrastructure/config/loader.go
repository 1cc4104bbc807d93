package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TXCONSOLE_DATABASE_DSN
const EnvPrefix = "TXCONSOLE"

// DefaultPaths are searched when no explicit config file is given
var DefaultPaths = []string{
	"./config.yaml",
	"./configs/config.yaml",
	"/etc/txconsole/config.yaml",
}

// Loader reads configuration from YAML files and the environment
type Loader struct {
	viper  *viper.Viper
	logger *zap.Logger
	files  []string

	mu     sync.RWMutex
	config *Config
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{viper: viper.New(), logger: logger}
}

// Load is a shortcut for NewLoader(zap.NewNop()).Load(paths...)
func Load(paths ...string) (*Config, error) {
	return NewLoader(zap.NewNop()).Load(paths...)
}

// Load merges every existing file in paths (DefaultPaths when empty), applies
// environment overrides and validates the result.
func (l *Loader) Load(paths ...string) (*Config, error) {
	l.setupViper()
	setDefaults(l.viper)

	if err := l.loadConfigFiles(paths...); err != nil {
		return nil, fmt.Errorf("failed to load config files: %w", err)
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()

	l.logger.Info("Configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.Strings("files", l.files))
	return cfg, nil
}

// Current returns the last successfully loaded configuration
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch reloads the configuration when a loaded file changes. Invalid
// revisions are logged and ignored; onChange only sees valid ones.
func (l *Loader) Watch(onChange func(*Config)) {
	if len(l.files) == 0 {
		return
	}
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := l.loadConfigFiles(l.files...); err != nil {
			l.logger.Warn("Config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("Reloaded config rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		l.mu.Lock()
		l.config = cfg
		l.mu.Unlock()
		l.logger.Info("Configuration reloaded", zap.String("file", e.Name), zap.Time("at", time.Now()))
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.viper.WatchConfig()
}

func (l *Loader) setupViper() {
	l.viper.SetConfigType("yaml")
	l.viper.AutomaticEnv()
	l.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.viper.SetEnvPrefix(EnvPrefix)
}

func (l *Loader) loadConfigFiles(paths ...string) error {
	explicit := len(paths) > 0
	if !explicit {
		paths = DefaultPaths
	}

	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if explicit {
				return fmt.Errorf("config file %s: %w", path, err)
			}
			continue
		}
		l.viper.SetConfigFile(path)
		if err := l.viper.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to merge config file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	l.files = loaded
	return nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.enable_swagger", true)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("cache.badger_path", "")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 5*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "txconsole")
	v.SetDefault("auth.audience", "txconsole-api")
	v.SetDefault("auth.token_ttl", 8*time.Hour)

	v.SetDefault("engine.batch_size", 0)
	v.SetDefault("engine.adapter_timeout", 5*time.Second)
	v.SetDefault("engine.degrade_mode", "strict")
	v.SetDefault("engine.max_page_limit", 100)
	v.SetDefault("engine.default_page_limit", 20)
	v.SetDefault("engine.export_limit", 10000)
	v.SetDefault("engine.bulk_workers", 4)
	v.SetDefault("engine.max_bulk_items", 500)
	v.SetDefault("engine.strict_transitions", true)

	v.SetDefault("notification.workers", 2)
	v.SetDefault("notification.queue_size", 256)
	v.SetDefault("notification.timeout", 5*time.Second)
	v.SetDefault("notification.topic", "transactions.moderation")
	v.SetDefault("notification.permission", "transactions.moderate")
	v.SetDefault("notification.stream", true)
	v.SetDefault("notification.stream_replay", 256)

	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.batch_size", 50)
	v.SetDefault("audit.flush_interval", 2*time.Second)

	v.SetDefault("log.level", "info")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.metrics", false)
	v.SetDefault("tracing.service_name", "txconsole")
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if cfg.Cache.Backend == "redis" && !cfg.Redis.Enabled {
		return fmt.Errorf("cache.backend redis requires redis.enabled")
	}
	if cfg.Engine.DefaultPageLimit > cfg.Engine.MaxPageLimit {
		return fmt.Errorf("engine.default_page_limit (%d) exceeds engine.max_page_limit (%d)",
			cfg.Engine.DefaultPageLimit, cfg.Engine.MaxPageLimit)
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) exceeds database.max_open_conns (%d)",
			cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	}
	return nil
}

// YAML renders the configuration with secrets omitted
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
