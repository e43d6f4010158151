// Package config loads the service configuration from flags, environment
// variables and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/n3tuk/redis-console/internal/console"
	"github.com/n3tuk/redis-console/internal/model"
	"github.com/n3tuk/redis-console/internal/registry"
	"github.com/n3tuk/redis-console/internal/session"
	"github.com/n3tuk/redis-console/internal/store"
)

// Profile store backends.
const (
	BackendOlric  = "olric"
	BackendMemory = "memory"
)

// Config holds all configuration for the service.
type Config struct {
	// API server settings
	APIPort int
	APIHost string

	// Probe server settings
	ProbePort int
	ProbeHost string

	// Metrics server settings
	MetricsPort int
	MetricsHost string

	// TLS settings
	TLSEnabled bool
	TLSCert    string
	TLSKey     string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Health check settings
	HealthCheckTimeout       time.Duration
	HealthCheckCacheDuration time.Duration

	// Metrics settings
	MetricsNamespace string

	// ProfileBackend selects where saved connection profiles live:
	// BackendOlric or BackendMemory.
	ProfileBackend string
	Olric          *store.OlricConfig

	// Redis holds the transport and retry policy of every store session.
	Redis session.Options

	// QuitTimeout bounds the graceful QUIT sent when a connection is released.
	QuitTimeout time.Duration

	// Keys bounds key listings.
	Keys console.KeyOptions

	// Connections are environment connections declared in the config file.
	// They are merged with those discovered from REDIS_* variables.
	Connections []model.ConnectionConfig
}

// setDefaults registers the default for every key.
func setDefaults() {
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("probe.port", 8081)
	viper.SetDefault("probe.host", "0.0.0.0")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.host", "0.0.0.0")
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cert", "")
	viper.SetDefault("tls.key", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("shutdown.timeout", "30s")
	viper.SetDefault("health.check_timeout", "5s")
	viper.SetDefault("health.cache_duration", "10s")

	viper.SetDefault("profiles.backend", BackendOlric)
	viper.SetDefault("olric.host", store.DefaultBindAddr)
	viper.SetDefault("olric.port", store.DefaultBindPort)
	viper.SetDefault("olric.memberlist_port", 0)
	viper.SetDefault("olric.join_addrs", []string{})
	viper.SetDefault("olric.replication_mode", store.DefaultReplicationMode)
	viper.SetDefault("olric.replication_factor", store.DefaultReplicationFactor)
	viper.SetDefault("olric.partition_count", store.DefaultPartitionCount)
	viper.SetDefault("olric.member_count_quorum", store.DefaultMemberCountQuorum)
	viper.SetDefault("olric.join_retry_interval", store.DefaultJoinRetryInterval.String())
	viper.SetDefault("olric.max_join_attempts", store.DefaultMaxJoinAttempts)
	viper.SetDefault("olric.log_level", "")
	viper.SetDefault("olric.keep_alive_period", store.DefaultKeepAlivePeriod.String())
	viper.SetDefault("olric.bootstrap_timeout", store.DefaultBootstrapTimeout.String())
	viper.SetDefault("olric.dmap_name", store.DefaultDMapName)

	redis := session.DefaultOptions()
	viper.SetDefault("redis.dial_timeout", redis.DialTimeout.String())
	viper.SetDefault("redis.read_timeout", redis.ReadTimeout.String())
	viper.SetDefault("redis.write_timeout", redis.WriteTimeout.String())
	viper.SetDefault("redis.pool_size", redis.PoolSize)
	viper.SetDefault("redis.max_retries", redis.MaxRetries)
	viper.SetDefault("redis.min_retry_backoff", redis.MinRetryBackoff.String())
	viper.SetDefault("redis.max_retry_backoff", redis.MaxRetryBackoff.String())
	viper.SetDefault("redis.max_reconnect_attempts", redis.MaxReconnectAttempts)
	viper.SetDefault("redis.quit_timeout", registry.DefaultQuitTimeout.String())

	keys := console.DefaultKeyOptions()
	viper.SetDefault("keys.scan_count", keys.ScanCount)
	viper.SetDefault("keys.max_results", keys.MaxResults)
	viper.SetDefault("keys.concurrency", keys.Concurrency)
}

// Load reads configuration from environment variables, config file, and flags.
func Load() (*Config, error) {
	setDefaults()

	// Enable environment variable support with automatic replacement
	viper.SetEnvPrefix("CONSOLE")
	viper.AutomaticEnv()
	// Replace . with _ in environment variable names (e.g., api.port -> CONSOLE_API_PORT)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/redis-console/")

	// Reading config file is optional, but a broken one is not
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		APIPort:          viper.GetInt("api.port"),
		APIHost:          viper.GetString("api.host"),
		ProbePort:        viper.GetInt("probe.port"),
		ProbeHost:        viper.GetString("probe.host"),
		MetricsPort:      viper.GetInt("metrics.port"),
		MetricsHost:      viper.GetString("metrics.host"),
		TLSEnabled:       viper.GetBool("tls.enabled"),
		TLSCert:          viper.GetString("tls.cert"),
		TLSKey:           viper.GetString("tls.key"),
		LogLevel:         viper.GetString("log.level"),
		LogFormat:        viper.GetString("log.format"),
		MetricsNamespace: "redis_console", // Fixed value, not configurable
		ProfileBackend:   strings.ToLower(viper.GetString("profiles.backend")),
	}

	p := parser{}
	cfg.ShutdownTimeout = p.duration("shutdown.timeout", "shutdown timeout")
	cfg.HealthCheckTimeout = p.duration("health.check_timeout", "health check timeout")
	cfg.HealthCheckCacheDuration = p.duration("health.cache_duration", "health check cache duration")

	cfg.Olric = loadOlric(&p, cfg.LogLevel)
	cfg.Redis = session.Options{
		DialTimeout:          p.duration("redis.dial_timeout", "redis dial timeout"),
		ReadTimeout:          p.duration("redis.read_timeout", "redis read timeout"),
		WriteTimeout:         p.duration("redis.write_timeout", "redis write timeout"),
		PoolSize:             viper.GetInt("redis.pool_size"),
		MaxRetries:           viper.GetInt("redis.max_retries"),
		MinRetryBackoff:      p.duration("redis.min_retry_backoff", "redis min retry backoff"),
		MaxRetryBackoff:      p.duration("redis.max_retry_backoff", "redis max retry backoff"),
		MaxReconnectAttempts: viper.GetInt("redis.max_reconnect_attempts"),
	}
	cfg.QuitTimeout = p.duration("redis.quit_timeout", "redis quit timeout")
	cfg.Keys = console.KeyOptions{
		ScanCount:   viper.GetInt64("keys.scan_count"),
		MaxResults:  viper.GetInt("keys.max_results"),
		Concurrency: viper.GetInt("keys.concurrency"),
	}

	if p.err != nil {
		return nil, p.err
	}

	if err := viper.UnmarshalKey("connections", &cfg.Connections); err != nil {
		return nil, fmt.Errorf("invalid connections: %w", err)
	}
	for i := range cfg.Connections {
		cfg.Connections[i].Source = model.SourceEnvironment
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadOlric reads the olric section. The Olric log level follows the
// service log level unless set explicitly.
func loadOlric(p *parser, logLevel string) *store.OlricConfig {
	level := strings.ToUpper(viper.GetString("olric.log_level"))
	if level == "" {
		level = strings.ToUpper(logLevel)
	}

	return &store.OlricConfig{
		BindAddr:           viper.GetString("olric.host"),
		BindPort:           viper.GetInt("olric.port"),
		MemberlistBindPort: viper.GetInt("olric.memberlist_port"),
		JoinAddrs:          viper.GetStringSlice("olric.join_addrs"),
		ReplicationMode:    viper.GetString("olric.replication_mode"),
		ReplicationFactor:  viper.GetInt("olric.replication_factor"),
		PartitionCount:     viper.GetUint64("olric.partition_count"),
		MemberCountQuorum:  viper.GetInt("olric.member_count_quorum"),
		JoinRetryInterval:  p.duration("olric.join_retry_interval", "olric join retry interval"),
		MaxJoinAttempts:    viper.GetInt("olric.max_join_attempts"),
		LogLevel:           level,
		KeepAlivePeriod:    p.duration("olric.keep_alive_period", "olric keep alive period"),
		BootstrapTimeout:   p.duration("olric.bootstrap_timeout", "olric bootstrap timeout"),
		DMapName:           viper.GetString("olric.dmap_name"),
	}
}

// parser reads durations and keeps the first parse error.
type parser struct {
	err error
}

func (p *parser) duration(key, name string) time.Duration {
	if p.err != nil {
		return 0
	}
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return d
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", c.APIPort)
	}
	if c.ProbePort < 1 || c.ProbePort > 65535 {
		return fmt.Errorf("invalid probe port: %d", c.ProbePort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}

	if c.TLSEnabled {
		if c.TLSCert == "" {
			return fmt.Errorf("TLS enabled but no certificate path provided")
		}
		if c.TLSKey == "" {
			return fmt.Errorf("TLS enabled but no key path provided")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s (must be positive)", c.ShutdownTimeout)
	}

	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("invalid health check timeout: %s (must be positive)", c.HealthCheckTimeout)
	}

	if c.HealthCheckCacheDuration < 0 {
		return fmt.Errorf("invalid health check cache duration: %s (must be non-negative, zero disables caching)", c.HealthCheckCacheDuration)
	}

	if c.MetricsNamespace == "" {
		return fmt.Errorf("metrics namespace cannot be empty")
	}

	switch c.ProfileBackend {
	case BackendMemory:
	case BackendOlric:
		if c.Olric == nil {
			return fmt.Errorf("olric configuration missing")
		}
		if err := c.Olric.Validate(); err != nil {
			return fmt.Errorf("invalid olric configuration: %w", err)
		}
	default:
		return fmt.Errorf("invalid profiles backend: %s (must be olric or memory)", c.ProfileBackend)
	}

	if err := validateRedis(c.Redis, c.QuitTimeout); err != nil {
		return err
	}

	if err := validateKeys(c.Keys); err != nil {
		return err
	}

	return validateConnections(c.Connections)
}

func validateRedis(o session.Options, quitTimeout time.Duration) error {
	if o.DialTimeout <= 0 {
		return fmt.Errorf("invalid redis dial timeout: %s (must be positive)", o.DialTimeout)
	}
	if o.ReadTimeout < 0 || o.WriteTimeout < 0 {
		return fmt.Errorf("invalid redis read/write timeout (must be non-negative)")
	}
	if o.PoolSize < 1 {
		return fmt.Errorf("invalid redis pool size: %d (must be at least 1)", o.PoolSize)
	}
	if o.MaxRetries < -1 {
		return fmt.Errorf("invalid redis max retries: %d (-1 disables retries)", o.MaxRetries)
	}
	if o.MinRetryBackoff < 0 || o.MaxRetryBackoff < o.MinRetryBackoff {
		return fmt.Errorf("invalid redis retry backoff: min %s, max %s", o.MinRetryBackoff, o.MaxRetryBackoff)
	}
	if o.MaxReconnectAttempts < 0 {
		return fmt.Errorf("invalid redis max reconnect attempts: %d (zero means never give up)", o.MaxReconnectAttempts)
	}
	if quitTimeout <= 0 {
		return fmt.Errorf("invalid redis quit timeout: %s (must be positive)", quitTimeout)
	}
	return nil
}

func validateKeys(k console.KeyOptions) error {
	if k.ScanCount < 1 {
		return fmt.Errorf("invalid keys scan count: %d (must be at least 1)", k.ScanCount)
	}
	if k.MaxResults < 1 {
		return fmt.Errorf("invalid keys max results: %d (must be at least 1)", k.MaxResults)
	}
	if k.Concurrency < 1 {
		return fmt.Errorf("invalid keys concurrency: %d (must be at least 1)", k.Concurrency)
	}
	return nil
}

func validateConnections(conns []model.ConnectionConfig) error {
	seen := make(map[string]bool, len(conns))
	for i, c := range conns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid connection %d: %w", i, err)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate connection id: %s", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}
