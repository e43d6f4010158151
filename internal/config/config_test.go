package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/n3tuk/redis-console/internal/console"
	"github.com/n3tuk/redis-console/internal/model"
	"github.com/n3tuk/redis-console/internal/session"
	"github.com/n3tuk/redis-console/internal/store"
)

func TestLoad(t *testing.T) {
	// Reset viper state before each test
	defer viper.Reset()

	tests := []struct {
		name    string
		setup   func()
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			setup: func() {
				viper.Reset()
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.APIPort != 8080 {
					t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
				}
				if cfg.ProbePort != 8081 {
					t.Errorf("ProbePort = %d, want 8081", cfg.ProbePort)
				}
				if cfg.MetricsPort != 9090 {
					t.Errorf("MetricsPort = %d, want 9090", cfg.MetricsPort)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
				}
				if cfg.ShutdownTimeout != 30*time.Second {
					t.Errorf("ShutdownTimeout = %s, want 30s", cfg.ShutdownTimeout)
				}
				if cfg.MetricsNamespace != "redis_console" {
					t.Errorf("MetricsNamespace = %s, want redis_console", cfg.MetricsNamespace)
				}
				if cfg.ProfileBackend != BackendOlric {
					t.Errorf("ProfileBackend = %s, want %s", cfg.ProfileBackend, BackendOlric)
				}
				if cfg.Olric.LogLevel != "INFO" {
					t.Errorf("Olric.LogLevel = %s, want INFO (follows log level)", cfg.Olric.LogLevel)
				}
				if cfg.Olric.BindPort != store.DefaultBindPort {
					t.Errorf("Olric.BindPort = %d, want %d", cfg.Olric.BindPort, store.DefaultBindPort)
				}
				if cfg.Redis != session.DefaultOptions() {
					t.Errorf("Redis = %+v, want defaults", cfg.Redis)
				}
				if cfg.Keys != console.DefaultKeyOptions() {
					t.Errorf("Keys = %+v, want defaults", cfg.Keys)
				}
				if len(cfg.Connections) != 0 {
					t.Errorf("Connections = %v, want none", cfg.Connections)
				}
			},
		},
		{
			name: "custom configuration via viper",
			setup: func() {
				viper.Reset()
				viper.Set("api.port", 9000)
				viper.Set("probe.port", 9001)
				viper.Set("metrics.port", 9002)
				viper.Set("log.level", "debug")
				viper.Set("log.format", "console")
				viper.Set("shutdown.timeout", "60s")
				viper.Set("redis.dial_timeout", "2s")
				viper.Set("redis.max_reconnect_attempts", 0)
				viper.Set("keys.max_results", 50)
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.APIPort != 9000 {
					t.Errorf("APIPort = %d, want 9000", cfg.APIPort)
				}
				if cfg.LogFormat != "console" {
					t.Errorf("LogFormat = %s, want console", cfg.LogFormat)
				}
				if cfg.ShutdownTimeout != 60*time.Second {
					t.Errorf("ShutdownTimeout = %s, want 60s", cfg.ShutdownTimeout)
				}
				if cfg.Redis.DialTimeout != 2*time.Second {
					t.Errorf("Redis.DialTimeout = %s, want 2s", cfg.Redis.DialTimeout)
				}
				if cfg.Redis.MaxReconnectAttempts != 0 {
					t.Errorf("Redis.MaxReconnectAttempts = %d, want 0", cfg.Redis.MaxReconnectAttempts)
				}
				if cfg.Keys.MaxResults != 50 {
					t.Errorf("Keys.MaxResults = %d, want 50", cfg.Keys.MaxResults)
				}
				if cfg.Olric.LogLevel != "DEBUG" {
					t.Errorf("Olric.LogLevel = %s, want DEBUG", cfg.Olric.LogLevel)
				}
			},
		},
		{
			name: "memory backend skips olric validation",
			setup: func() {
				viper.Reset()
				viper.Set("profiles.backend", "Memory")
				viper.Set("olric.port", 0)
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.ProfileBackend != BackendMemory {
					t.Errorf("ProfileBackend = %s, want %s", cfg.ProfileBackend, BackendMemory)
				}
			},
		},
		{
			name: "connections",
			setup: func() {
				viper.Reset()
				viper.Set("connections", []map[string]any{
					{"id": "cache", "name": "Cache", "host": "cache.internal", "port": 6379, "password": "pw", "db": 1},
				})
			},
			check: func(t *testing.T, cfg *Config) {
				want := []model.ConnectionConfig{{
					ID: "cache", Name: "Cache", Host: "cache.internal", Port: 6379,
					Password: "pw", DB: 1, Source: model.SourceEnvironment,
				}}
				if len(cfg.Connections) != 1 || cfg.Connections[0] != want[0] {
					t.Errorf("Connections = %+v, want %+v", cfg.Connections, want)
				}
			},
		},
		{
			name: "TLS configuration",
			setup: func() {
				viper.Reset()
				viper.Set("tls.enabled", true)
				viper.Set("tls.cert", "/path/to/cert.pem")
				viper.Set("tls.key", "/path/to/key.pem")
			},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.TLSEnabled {
					t.Error("TLSEnabled = false, want true")
				}
				if cfg.TLSCert != "/path/to/cert.pem" {
					t.Errorf("TLSCert = %s, want /path/to/cert.pem", cfg.TLSCert)
				}
			},
		},
		{
			name: "invalid shutdown timeout",
			setup: func() {
				viper.Reset()
				viper.Set("shutdown.timeout", "invalid")
			},
			wantErr: true,
		},
		{
			name: "invalid redis backoff",
			setup: func() {
				viper.Reset()
				viper.Set("redis.min_retry_backoff", "5s")
				viper.Set("redis.max_retry_backoff", "1s")
			},
			wantErr: true,
		},
		{
			name: "unknown backend",
			setup: func() {
				viper.Reset()
				viper.Set("profiles.backend", "etcd")
			},
			wantErr: true,
		},
		{
			name: "connection without host",
			setup: func() {
				viper.Reset()
				viper.Set("connections", []map[string]any{{"id": "broken", "port": 6379}})
			},
			wantErr: true,
		},
		{
			name: "duplicate connection ids",
			setup: func() {
				viper.Reset()
				viper.Set("connections", []map[string]any{
					{"id": "a", "host": "one", "port": 6379},
					{"id": "a", "host": "two", "port": 6379},
				})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err == nil && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		APIPort:                  8080,
		ProbePort:                8081,
		MetricsPort:              9090,
		LogLevel:                 "info",
		LogFormat:                "json",
		ShutdownTimeout:          30 * time.Second,
		HealthCheckTimeout:       5 * time.Second,
		HealthCheckCacheDuration: 10 * time.Second,
		MetricsNamespace:         "redis_console",
		ProfileBackend:           BackendOlric,
		Olric:                    store.NewDefaultOlricConfig(),
		Redis:                    session.DefaultOptions(),
		QuitTimeout:              2 * time.Second,
		Keys:                     console.DefaultKeyOptions(),
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(c *Config) {}},
		{name: "invalid API port - too low", mutate: func(c *Config) { c.APIPort = 0 }, wantErr: true},
		{name: "invalid API port - too high", mutate: func(c *Config) { c.APIPort = 65536 }, wantErr: true},
		{name: "invalid probe port", mutate: func(c *Config) { c.ProbePort = -1 }, wantErr: true},
		{name: "invalid metrics port", mutate: func(c *Config) { c.MetricsPort = 70000 }, wantErr: true},
		{
			name:    "TLS enabled but no cert",
			mutate:  func(c *Config) { c.TLSEnabled, c.TLSKey = true, "/path/to/key" },
			wantErr: true,
		},
		{
			name:    "TLS enabled but no key",
			mutate:  func(c *Config) { c.TLSEnabled, c.TLSCert = true, "/path/to/cert" },
			wantErr: true,
		},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "invalid" }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.LogFormat = "invalid" }, wantErr: true},
		{name: "negative shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = -time.Second }, wantErr: true},
		{name: "zero health check timeout", mutate: func(c *Config) { c.HealthCheckTimeout = 0 }, wantErr: true},
		{name: "zero cache duration disables caching", mutate: func(c *Config) { c.HealthCheckCacheDuration = 0 }},
		{name: "invalid olric config", mutate: func(c *Config) { c.Olric.BindAddr = "not-an-ip" }, wantErr: true},
		{name: "missing olric config", mutate: func(c *Config) { c.Olric = nil }, wantErr: true},
		{
			name:   "memory backend ignores olric config",
			mutate: func(c *Config) { c.ProfileBackend, c.Olric = BackendMemory, nil },
		},
		{name: "zero dial timeout", mutate: func(c *Config) { c.Redis.DialTimeout = 0 }, wantErr: true},
		{name: "zero pool size", mutate: func(c *Config) { c.Redis.PoolSize = 0 }, wantErr: true},
		{name: "retries disabled", mutate: func(c *Config) { c.Redis.MaxRetries = -1 }},
		{name: "invalid max retries", mutate: func(c *Config) { c.Redis.MaxRetries = -2 }, wantErr: true},
		{name: "negative reconnect attempts", mutate: func(c *Config) { c.Redis.MaxReconnectAttempts = -1 }, wantErr: true},
		{name: "zero quit timeout", mutate: func(c *Config) { c.QuitTimeout = 0 }, wantErr: true},
		{name: "zero scan count", mutate: func(c *Config) { c.Keys.ScanCount = 0 }, wantErr: true},
		{name: "zero max results", mutate: func(c *Config) { c.Keys.MaxResults = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Keys.Concurrency = 0 }, wantErr: true},
		{
			name: "valid connection",
			mutate: func(c *Config) {
				c.Connections = []model.ConnectionConfig{{ID: "a", Host: "h", Port: 6379, Source: model.SourceEnvironment}}
			},
		},
		{
			name: "connection with bad port",
			mutate: func(c *Config) {
				c.Connections = []model.ConnectionConfig{{ID: "a", Host: "h", Port: 0}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	defer viper.Reset()

	envVars := map[string]string{
		"CONSOLE_API_PORT":               "9000",
		"CONSOLE_PROBE_PORT":             "9001",
		"CONSOLE_METRICS_PORT":           "9002",
		"CONSOLE_LOG_LEVEL":              "debug",
		"CONSOLE_LOG_FORMAT":             "console",
		"CONSOLE_TLS_ENABLED":            "true",
		"CONSOLE_TLS_CERT":               "/test/cert.pem",
		"CONSOLE_TLS_KEY":                "/test/key.pem",
		"CONSOLE_SHUTDOWN_TIMEOUT":       "45s",
		"CONSOLE_PROFILES_BACKEND":       "memory",
		"CONSOLE_REDIS_POOL_SIZE":        "25",
		"CONSOLE_KEYS_CONCURRENCY":       "4",
		"CONSOLE_OLRIC_REPLICATION_MODE": "sync",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	viper.Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != 9000 {
		t.Errorf("APIPort = %d, want 9000", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if !cfg.TLSEnabled {
		t.Error("TLSEnabled = false, want true")
	}
	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 45s", cfg.ShutdownTimeout)
	}
	if cfg.ProfileBackend != BackendMemory {
		t.Errorf("ProfileBackend = %s, want memory", cfg.ProfileBackend)
	}
	if cfg.Redis.PoolSize != 25 {
		t.Errorf("Redis.PoolSize = %d, want 25", cfg.Redis.PoolSize)
	}
	if cfg.Keys.Concurrency != 4 {
		t.Errorf("Keys.Concurrency = %d, want 4", cfg.Keys.Concurrency)
	}
	if cfg.Olric.ReplicationMode != "sync" {
		t.Errorf("Olric.ReplicationMode = %s, want sync", cfg.Olric.ReplicationMode)
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	defer viper.Reset()

	dir := t.TempDir()
	contents := `
api:
  port: 7000
profiles:
  backend: memory
redis:
  read_timeout: 750ms
connections:
  - id: primary
    name: Primary
    host: redis-primary
    port: 6380
    tls: true
  - id: replica
    host: redis-replica
    port: 6379
    db: 2
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()

	viper.Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != 7000 {
		t.Errorf("APIPort = %d, want 7000", cfg.APIPort)
	}
	if cfg.Redis.ReadTimeout != 750*time.Millisecond {
		t.Errorf("Redis.ReadTimeout = %s, want 750ms", cfg.Redis.ReadTimeout)
	}
	if len(cfg.Connections) != 2 {
		t.Fatalf("Connections = %d, want 2", len(cfg.Connections))
	}
	if !cfg.Connections[0].TLS || cfg.Connections[0].Port != 6380 {
		t.Errorf("Connections[0] = %+v", cfg.Connections[0])
	}
	if cfg.Connections[1].DB != 2 || cfg.Connections[1].Source != model.SourceEnvironment {
		t.Errorf("Connections[1] = %+v", cfg.Connections[1])
	}
}

func TestLoadRejectsBrokenConfigFile(t *testing.T) {
	defer viper.Reset()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()

	viper.Reset()

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}
