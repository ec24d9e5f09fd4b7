package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron expression or descriptor
func (v *Validator) ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateOrigin validates a CORS origin. "*" allows any origin.
func (v *Validator) ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid allowed origin: %q", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("allowed origin %q must not contain a path", origin)
	}
	return nil
}

// ValidateMongoURI validates a MongoDB connection string
func (v *Validator) ValidateMongoURI(uri string) error {
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		return fmt.Errorf("invalid mongo uri (should start with mongodb:// or mongodb+srv://)")
	}
	return nil
}

// ValidateServer validates a host:port cache server address
func (v *Validator) ValidateServer(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid cache server %q: %w", addr, err)
	}
	if host == "" || port == "" {
		return fmt.Errorf("invalid cache server %q", addr)
	}
	return nil
}

// ValidateOTLPEndpoint validates a collector endpoint, either host:port or an
// http(s) URL
func (v *Validator) ValidateOTLPEndpoint(endpoint string) error {
	raw := endpoint
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid tracing endpoint: %q", endpoint)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		if err := v.ValidateOrigin(origin); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Storage.Driver == StorageMongo {
		if err := v.ValidateMongoURI(cfg.Storage.Mongo.URI); err != nil {
			errors = append(errors, err)
		}
		if cfg.Storage.Mongo.ConnectTimeoutSeconds < 0 {
			errors = append(errors, fmt.Errorf("storage.mongo.connect_timeout_seconds must be >= 0"))
		}
	}

	if cfg.Cache.Driver == CacheMemcached {
		for _, server := range cfg.Cache.Servers {
			if err := v.ValidateServer(server); err != nil {
				errors = append(errors, err)
			}
		}
	}
	if cfg.Cache.TimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("cache.timeout_ms must be >= 0"))
	}

	if cfg.Aggregation.Enabled {
		if err := v.ValidateSchedule(cfg.Aggregation.Schedule); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Aggregation.RunTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("aggregation.run_timeout_seconds must be >= 0"))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint != "" {
		if err := v.ValidateOTLPEndpoint(cfg.Tracing.Endpoint); err != nil {
			errors = append(errors, err)
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
