package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Storage drivers
const (
	StorageSQLite = "sqlite"
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Cache drivers
const (
	CacheMemory    = "memory"
	CacheMemcached = "memcached"
)

// Config represents the main trackd configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Session, event and snapshot storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Snapshot cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Aggregation job schedule
	Aggregation AggregationConfig `json:"aggregation" mapstructure:"aggregation"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `json:"host" mapstructure:"host"`
	Port           int      `json:"port" mapstructure:"port"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// StorageConfig selects and configures the store backend
type StorageConfig struct {
	Driver string       `json:"driver" mapstructure:"driver"` // sqlite, mongo, memory
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	Mongo  MongoConfig  `json:"mongo" mapstructure:"mongo"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// MongoConfig holds MongoDB settings
type MongoConfig struct {
	URI                   string `json:"uri" mapstructure:"uri"`
	SessionsDatabase      string `json:"sessions_database" mapstructure:"sessions_database"`
	SessionsCollection    string `json:"sessions_collection" mapstructure:"sessions_collection"`
	MetricsDatabase       string `json:"metrics_database" mapstructure:"metrics_database"`
	MetricsCollection     string `json:"metrics_collection" mapstructure:"metrics_collection"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" mapstructure:"connect_timeout_seconds"`
}

// CacheConfig selects and configures the snapshot cache
type CacheConfig struct {
	Driver    string   `json:"driver" mapstructure:"driver"` // memory, memcached
	Servers   []string `json:"servers" mapstructure:"servers"`
	Key       string   `json:"key" mapstructure:"key"`
	TimeoutMs int      `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// AggregationConfig holds the metrics job settings
type AggregationConfig struct {
	Enabled           bool   `json:"enabled" mapstructure:"enabled"`
	Schedule          string `json:"schedule" mapstructure:"schedule"`
	RunOnStart        bool   `json:"run_on_start" mapstructure:"run_on_start"`
	RunTimeoutSeconds int    `json:"run_timeout_seconds" mapstructure:"run_timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings. An empty Endpoint keeps spans
// in process; otherwise they are exported to that OTLP gRPC collector.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`
	Insecure    bool   `json:"insecure" mapstructure:"insecure"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Mongo: MongoConfig{
				URI:                   "mongodb://localhost:27017",
				SessionsDatabase:      "tracking-service-data",
				SessionsCollection:    "trackingsessions",
				MetricsDatabase:       "analytics-service-data",
				MetricsCollection:     "metrics",
				ConnectTimeoutSeconds: 10,
			},
		},
		Cache: CacheConfig{
			Driver:    CacheMemory,
			Servers:   []string{"localhost:11211"},
			Key:       "metrics",
			TimeoutMs: 500,
		},
		Aggregation: AggregationConfig{
			Enabled:           true,
			Schedule:          "@every 1m",
			RunOnStart:        true,
			RunTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "trackd",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CacheTimeout returns the cache round-trip timeout.
func (c *Config) CacheTimeout() time.Duration {
	return time.Duration(c.Cache.TimeoutMs) * time.Millisecond
}

// RunTimeout returns the per-run aggregation timeout, zero for none.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Aggregation.RunTimeoutSeconds) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case StorageMongo:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required for the mongo driver")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage driver: %s (must be: sqlite, mongo, memory)", c.Storage.Driver)
	}

	switch c.Cache.Driver {
	case CacheMemory:
	case CacheMemcached:
		if len(c.Cache.Servers) == 0 {
			return fmt.Errorf("cache.servers is required for the memcached driver")
		}
	default:
		return fmt.Errorf("invalid cache driver: %s (must be: memory, memcached)", c.Cache.Driver)
	}

	if c.Cache.Key == "" {
		return fmt.Errorf("cache.key cannot be empty")
	}

	if c.Aggregation.Enabled && c.Aggregation.Schedule == "" {
		return fmt.Errorf("aggregation.schedule is required when aggregation is enabled")
	}

	return nil
}
