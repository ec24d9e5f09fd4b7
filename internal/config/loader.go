package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRACKD_SERVER_PORT.
const EnvPrefix = "TRACKD"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

func defaultHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".trackd"), nil
}

// newViper registers every key of the default config so that environment
// overrides apply even without a config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite.path", d.Storage.SQLite.Path)
	v.SetDefault("storage.mongo.uri", d.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.sessions_database", d.Storage.Mongo.SessionsDatabase)
	v.SetDefault("storage.mongo.sessions_collection", d.Storage.Mongo.SessionsCollection)
	v.SetDefault("storage.mongo.metrics_database", d.Storage.Mongo.MetricsDatabase)
	v.SetDefault("storage.mongo.metrics_collection", d.Storage.Mongo.MetricsCollection)
	v.SetDefault("storage.mongo.connect_timeout_seconds", d.Storage.Mongo.ConnectTimeoutSeconds)
	v.SetDefault("cache.driver", d.Cache.Driver)
	v.SetDefault("cache.servers", d.Cache.Servers)
	v.SetDefault("cache.key", d.Cache.Key)
	v.SetDefault("cache.timeout_ms", d.Cache.TimeoutMs)
	v.SetDefault("aggregation.enabled", d.Aggregation.Enabled)
	v.SetDefault("aggregation.schedule", d.Aggregation.Schedule)
	v.SetDefault("aggregation.run_on_start", d.Aggregation.RunOnStart)
	v.SetDefault("aggregation.run_timeout_seconds", d.Aggregation.RunTimeoutSeconds)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.audit_file", d.Logging.AuditFile)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("data_dir", d.DataDir)

	return v
}

// Load loads the configuration from file, falling back to defaults when
// the file does not exist. Environment overrides apply either way.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	v := newViper()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := defaultHome()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = home
	}

	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = filepath.Join(cfg.DataDir, "trackd.db")
	}

	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("storage", cfg.Storage)
	v.Set("cache", cfg.Cache)
	v.Set("aggregation", cfg.Aggregation)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := defaultHome()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "trackd.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
