package main

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/n3tuk/redis-console/internal/config"
	"github.com/n3tuk/redis-console/internal/console"
	"github.com/n3tuk/redis-console/internal/registry"
	"github.com/n3tuk/redis-console/internal/session"
	"github.com/n3tuk/redis-console/internal/store"
)

// flag binds a command line flag to a configuration key. The flag's default
// only applies when neither the config file nor the environment sets the key.
type flag struct {
	name  string
	key   string
	value any
	usage string
}

func flags() []flag {
	redis := session.DefaultOptions()
	keys := console.DefaultKeyOptions()

	return []flag{
		{"api-port", "api.port", 8080, "API server port"},
		{"api-host", "api.host", "0.0.0.0", "API server host"},
		{"probe-port", "probe.port", 8081, "Probe server port"},
		{"probe-host", "probe.host", "0.0.0.0", "Probe server host"},
		{"metrics-port", "metrics.port", 9090, "Metrics server port"},
		{"metrics-host", "metrics.host", "0.0.0.0", "Metrics server host"},
		{"tls-enabled", "tls.enabled", false, "Enable TLS for API server"},
		{"tls-cert", "tls.cert", "", "Path to TLS certificate"},
		{"tls-key", "tls.key", "", "Path to TLS key"},
		{"log-level", "log.level", "info", "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", "json", "Log format (json, console)"},
		{"shutdown-timeout", "shutdown.timeout", 30 * time.Second, "Graceful shutdown timeout (e.g., 30s)"},
		{"health-check-timeout", "health.check_timeout", 5 * time.Second, "Health check timeout (e.g., 5s)"},
		{"health-cache-duration", "health.cache_duration", 10 * time.Second, "Health check cache duration (e.g., 10s)"},

		{"profiles-backend", "profiles.backend", config.BackendOlric, "Saved profile store (olric, memory)"},

		{"olric-host", "olric.host", store.DefaultBindAddr, "Olric bind host"},
		{"olric-port", "olric.port", store.DefaultBindPort, "Olric bind port"},
		{"olric-memberlist-port", "olric.memberlist_port", 0, "Olric memberlist port (0 keeps the Olric default)"},
		{"olric-join-addrs", "olric.join_addrs", []string{}, "Olric cluster join addresses"},
		{"olric-replication-mode", "olric.replication_mode", store.DefaultReplicationMode, "Olric replication mode (sync/async)"},
		{"olric-replication-factor", "olric.replication_factor", store.DefaultReplicationFactor, "Olric replication factor"},
		{"olric-partition-count", "olric.partition_count", int(store.DefaultPartitionCount), "Olric partition count"},
		{"olric-member-count-quorum", "olric.member_count_quorum", store.DefaultMemberCountQuorum, "Olric member count quorum"},
		{"olric-join-retry-interval", "olric.join_retry_interval", store.DefaultJoinRetryInterval, "Olric join retry interval"},
		{"olric-max-join-attempts", "olric.max_join_attempts", store.DefaultMaxJoinAttempts, "Olric max join attempts"},
		{"olric-log-level", "olric.log_level", "", "Olric log level (DEBUG/INFO/WARN/ERROR, defaults to main log level)"},
		{"olric-keep-alive-period", "olric.keep_alive_period", store.DefaultKeepAlivePeriod, "Olric keep alive period"},
		{"olric-bootstrap-timeout", "olric.bootstrap_timeout", store.DefaultBootstrapTimeout, "Olric bootstrap timeout"},
		{"olric-dmap-name", "olric.dmap_name", store.DefaultDMapName, "Olric DMap name"},

		{"redis-dial-timeout", "redis.dial_timeout", redis.DialTimeout, "Redis dial timeout"},
		{"redis-read-timeout", "redis.read_timeout", redis.ReadTimeout, "Redis read timeout"},
		{"redis-write-timeout", "redis.write_timeout", redis.WriteTimeout, "Redis write timeout"},
		{"redis-pool-size", "redis.pool_size", redis.PoolSize, "Redis connection pool size per session"},
		{"redis-max-retries", "redis.max_retries", redis.MaxRetries, "Redis command retries (-1 disables)"},
		{"redis-min-retry-backoff", "redis.min_retry_backoff", redis.MinRetryBackoff, "Minimum Redis retry backoff"},
		{"redis-max-retry-backoff", "redis.max_retry_backoff", redis.MaxRetryBackoff, "Maximum Redis retry backoff"},
		{"redis-max-reconnect-attempts", "redis.max_reconnect_attempts", redis.MaxReconnectAttempts, "Reconnect attempts before a session is marked failed"},
		{"redis-quit-timeout", "redis.quit_timeout", registry.DefaultQuitTimeout, "Graceful QUIT timeout when releasing a connection"},

		{"keys-scan-count", "keys.scan_count", keys.ScanCount, "SCAN COUNT hint for key listings"},
		{"keys-max-results", "keys.max_results", keys.MaxResults, "Maximum keys returned by one listing"},
		{"keys-concurrency", "keys.concurrency", keys.Concurrency, "Concurrent metadata lookups per listing"},
	}
}

// registerFlags defines every flag on fs and binds it to viper.
func registerFlags(fs *pflag.FlagSet) {
	for _, f := range flags() {
		switch v := f.value.(type) {
		case int:
			fs.Int(f.name, v, f.usage)
		case int64:
			fs.Int64(f.name, v, f.usage)
		case bool:
			fs.Bool(f.name, v, f.usage)
		case string:
			fs.String(f.name, v, f.usage)
		case []string:
			fs.StringSlice(f.name, v, f.usage)
		case time.Duration:
			fs.Duration(f.name, v, f.usage)
		default:
			panic("unsupported flag type for " + f.name)
		}
		_ = viper.BindPFlag(f.key, fs.Lookup(f.name))
	}
}
