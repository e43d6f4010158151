package info

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxClients = 10000
	unknown           = "unknown"
)

// Snapshot is a point-in-time view of server status. It is built fresh for
// every request and never modified afterwards.
type Snapshot struct {
	Memory     Memory       `json:"memory"`
	Clients    Clients      `json:"clients"`
	Stats      Stats        `json:"stats"`
	Server     Server       `json:"server"`
	Keyspace   []KeyspaceDB `json:"keyspace"`
	CapturedAt time.Time    `json:"capturedAt"`
}

// Memory holds memory usage in megabytes.
type Memory struct {
	Used          float64 `json:"used"`
	Peak          float64 `json:"peak"`
	RSS           float64 `json:"rss"`
	Fragmentation float64 `json:"fragmentation"`
}

// Clients holds client connection counts.
type Clients struct {
	Connected  int64 `json:"connected"`
	Blocked    int64 `json:"blocked"`
	MaxClients int64 `json:"maxClients"`
}

// Stats holds server-wide counters.
type Stats struct {
	TotalConnections int64      `json:"totalConnections"`
	TotalCommands    int64      `json:"totalCommands"`
	OpsPerSec        int64      `json:"opsPerSec"`
	HitRate          int        `json:"hitRate"`
	Keyspace         KeyspaceDB `json:"keyspace"`
}

// Server describes the server process.
type Server struct {
	Version         string `json:"version"`
	Mode            string `json:"mode"`
	OS              string `json:"os"`
	Uptime          int64  `json:"uptime"`
	UptimeFormatted string `json:"uptimeFormatted"`
}

// dbIndex returns the numeric index of a keyspace name such as "db10".
// Names without one sort after every numbered database.
func dbIndex(name string) int64 {
	n, err := strconv.ParseInt(strings.TrimPrefix(name, "db"), 10, 64)
	if err != nil || !strings.HasPrefix(name, "db") {
		return math.MaxInt64
	}
	return n
}

// BuildSnapshot derives a Snapshot from a parsed INFO report.
func BuildSnapshot(s Sections, now time.Time) Snapshot {
	keyspace := make([]KeyspaceDB, 0, len(s["keyspace"]))
	for db, line := range s["keyspace"] {
		keyspace = append(keyspace, ParseKeyspaceLine(db, line))
	}
	sort.Slice(keyspace, func(i, j int) bool {
		a, b := dbIndex(keyspace[i].DB), dbIndex(keyspace[j].DB)
		if a != b {
			return a < b
		}
		return keyspace[i].DB < keyspace[j].DB
	})

	var first KeyspaceDB
	if len(keyspace) > 0 {
		first = keyspace[0]
	}

	uptime := parseInt(s.Get("server", "uptime_in_seconds"), 0)

	return Snapshot{
		Memory: Memory{
			Used:          ParseMemoryScalar(s.Get("memory", "used_memory_human")),
			Peak:          ParseMemoryScalar(s.Get("memory", "used_memory_peak_human")),
			RSS:           ParseMemoryScalar(s.Get("memory", "used_memory_rss_human")),
			Fragmentation: parseFloat(s.Get("memory", "mem_fragmentation_ratio")),
		},
		Clients: Clients{
			Connected:  parseInt(s.Get("clients", "connected_clients"), 0),
			Blocked:    parseInt(s.Get("clients", "blocked_clients"), 0),
			MaxClients: parseInt(s.Get("clients", "maxclients"), defaultMaxClients),
		},
		Stats: Stats{
			TotalConnections: parseInt(s.Get("stats", "total_connections_received"), 0),
			TotalCommands:    parseInt(s.Get("stats", "total_commands_processed"), 0),
			OpsPerSec:        parseInt(s.Get("stats", "instantaneous_ops_per_sec"), 0),
			HitRate: DeriveHitRate(
				parseInt(s.Get("stats", "keyspace_hits"), 0),
				parseInt(s.Get("stats", "keyspace_misses"), 0),
			),
			Keyspace: first,
		},
		Server: Server{
			Version:         orDefault(s.Get("server", "redis_version"), unknown),
			Mode:            orDefault(s.Get("server", "redis_mode"), "standalone"),
			OS:              orDefault(s.Get("server", "os"), unknown),
			Uptime:          uptime,
			UptimeFormatted: FormatUptime(uptime),
		},
		Keyspace:   keyspace,
		CapturedAt: now,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
