package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "platform.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PLATFORM_PORT")
	setString(&cfg.Server.CORSOrigin, "PLATFORM_CORS_ORIGIN")

	setUpstream(cfg, "user-management", "USER_MANAGEMENT_SERVICE_URL")
	setUpstream(cfg, "tenant-directory", "TENANT_DIRECTORY_SERVICE_URL")
	setUpstream(cfg, "project-service", "PROJECT_SERVICE_URL")
	setUpstream(cfg, "url-shortener", "URL_SHORTENER_SERVICE_URL")
	setUpstream(cfg, "analytics", "ANALYTICS_SERVICE_URL")
	setDuration(&cfg.Gateway.RequestTimeout, "PLATFORM_SERVICE_TIMEOUT")
	setString(&cfg.Gateway.ResolverURL, "TENANT_DIRECTORY_SERVICE_URL")
	setDuration(&cfg.Gateway.ResolveTimeout, "PLATFORM_RESOLVE_TIMEOUT")
	setInt64(&cfg.Gateway.CacheMaxBytes, "PLATFORM_TENANT_CACHE_BYTES")

	setInt(&cfg.Rate.Limit, "PLATFORM_RATE_LIMIT")
	setDuration(&cfg.Rate.Window, "PLATFORM_RATE_WINDOW")
	setString(&cfg.Rate.Backend, "PLATFORM_RATE_BACKEND")
	setString(&cfg.Rate.Bucket, "PLATFORM_RATE_BUCKET")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.Algorithm, "JWT_ALGORITHM")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PLATFORM_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PLATFORM_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PLATFORM_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PLATFORM_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PLATFORM_PG_HEALTH_CHECK")

	setString(&cfg.Provision.AdminDSN, "PROVISION_ADMIN_DSN")
	setString(&cfg.Provision.TenantHost, "PROVISION_TENANT_HOST")
	setString(&cfg.Provision.TenantPort, "PROVISION_TENANT_PORT")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt(&cfg.Breaker.MaxFailures, "PLATFORM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PLATFORM_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "PLATFORM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PLATFORM_LOG_SERVICE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Rate.Limit < 1 {
		return errors.New("rate.limit must be >= 1")
	}
	if cfg.Rate.Window <= 0 {
		return errors.New("rate.window must be positive")
	}
	if cfg.Rate.Backend != "local" && cfg.Rate.Backend != "shared" {
		return fmt.Errorf("rate.backend must be \"local\" or \"shared\", got %q", cfg.Rate.Backend)
	}
	switch cfg.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("auth.algorithm must be HS256, HS384 or HS512, got %q", cfg.Auth.Algorithm)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setUpstream(cfg *Config, name, key string) {
	if v := os.Getenv(key); v != "" {
		if cfg.Gateway.Upstreams == nil {
			cfg.Gateway.Upstreams = make(map[string]string)
		}
		cfg.Gateway.Upstreams[name] = v
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
