package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "tracking-service-data", cfg.Storage.Mongo.SessionsDatabase)
	assert.Equal(t, "trackingsessions", cfg.Storage.Mongo.SessionsCollection)
	assert.Equal(t, "analytics-service-data", cfg.Storage.Mongo.MetricsDatabase)
	assert.Equal(t, "metrics", cfg.Storage.Mongo.MetricsCollection)
	assert.Equal(t, CacheMemory, cfg.Cache.Driver)
	assert.Equal(t, "metrics", cfg.Cache.Key)
	assert.True(t, cfg.Aggregation.Enabled)
	assert.Equal(t, "@every 1m", cfg.Aggregation.Schedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "trackd", cfg.Tracing.ServiceName)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.False(t, cfg.Tracing.Insecure)
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 500*time.Millisecond, cfg.CacheTimeout())
	assert.Equal(t, 30*time.Second, cfg.RunTimeout())
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.SQLite.Path = "/tmp/trackd.db"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory storage", mutate: func(c *Config) { c.Storage.Driver = StorageMemory; c.Storage.SQLite.Path = "" }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "invalid storage driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.SQLite.Path = "" }, wantErr: "storage.sqlite.path"},
		{name: "mongo without uri", mutate: func(c *Config) { c.Storage.Driver = StorageMongo; c.Storage.Mongo.URI = "" }, wantErr: "storage.mongo.uri"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Driver = "redis" }, wantErr: "invalid cache driver"},
		{name: "memcached without servers", mutate: func(c *Config) { c.Cache.Driver = CacheMemcached; c.Cache.Servers = nil }, wantErr: "cache.servers"},
		{name: "empty cache key", mutate: func(c *Config) { c.Cache.Key = "" }, wantErr: "cache.key"},
		{name: "enabled without schedule", mutate: func(c *Config) { c.Aggregation.Schedule = "" }, wantErr: "aggregation.schedule"},
		{name: "disabled without schedule", mutate: func(c *Config) { c.Aggregation.Enabled = false; c.Aggregation.Schedule = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"schedule": "@every 1m"`)
	assert.Contains(t, s, `"driver": "sqlite"`)
}
