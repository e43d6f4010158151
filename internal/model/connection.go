package model

import (
	"net"
	"strconv"
	"strings"

	"github.com/n3tuk/redis-console/internal/apperr"
)

// Source identifies where a connection configuration came from.
type Source string

const (
	// SourceEnvironment marks connections discovered from the process
	// environment or the service configuration file. They are read-only.
	SourceEnvironment Source = "environment"

	// SourceUser marks connections registered through the API.
	SourceUser Source = "user"
)

// ConnectionConfig describes how to reach a single key-value store.
type ConnectionConfig struct {
	// ID uniquely identifies the connection.
	ID string `json:"id" mapstructure:"id"`

	// Name is the display name shown in the console.
	Name string `json:"name" mapstructure:"name"`

	// Host is the hostname or IP address of the store.
	Host string `json:"host" mapstructure:"host"`

	// Port is the TCP port of the store (1-65535).
	Port int `json:"port" mapstructure:"port"`

	// Username is used for ACL authentication when set.
	Username string `json:"username,omitempty" mapstructure:"username"`

	// Password is used for authentication when set.
	Password string `json:"password,omitempty" mapstructure:"password"`

	// TLS enables TLS for the connection.
	TLS bool `json:"tls,omitempty" mapstructure:"tls"`

	// DB is the logical database index selected after connecting.
	DB int `json:"db,omitempty" mapstructure:"db"`

	// Source is where this configuration came from.
	Source Source `json:"source" mapstructure:"source"`
}

// Addr returns the host:port address of the store.
func (c ConnectionConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DisplayName returns the name, falling back to the address.
func (c ConnectionConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Addr()
}

// SameEndpoint reports whether both configurations point at the same host and port.
func (c ConnectionConfig) SameEndpoint(o ConnectionConfig) bool {
	return strings.EqualFold(c.Host, o.Host) && c.Port == o.Port
}

// SameSession reports whether a session built for c can serve o unchanged.
// Display-only fields such as Name and Source are ignored.
func (c ConnectionConfig) SameSession(o ConnectionConfig) bool {
	return c.ID == o.ID &&
		c.SameEndpoint(o) &&
		c.Username == o.Username &&
		c.Password == o.Password &&
		c.TLS == o.TLS &&
		c.DB == o.DB
}

// IsEnvironment reports whether the configuration is environment-sourced.
func (c ConnectionConfig) IsEnvironment() bool {
	return c.Source == SourceEnvironment
}

// Redacted returns a copy without credentials, safe to hand to the browser.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	c.Password = ""
	return c
}

// Validate checks the fields required to open a session.
func (c ConnectionConfig) Validate() error {
	const op = "model.ConnectionConfig.Validate"

	if strings.TrimSpace(c.ID) == "" {
		return apperr.Config(op, "connection id is required")
	}
	if strings.TrimSpace(c.Host) == "" {
		return apperr.Config(op, "missing required connection parameters: host")
	}
	if c.Port < 1 || c.Port > 65535 {
		return apperr.Config(op, "invalid port: %d (must be between 1 and 65535)", c.Port)
	}
	if c.DB < 0 {
		return apperr.Config(op, "invalid database index: %d", c.DB)
	}
	switch c.Source {
	case "", SourceEnvironment, SourceUser:
	default:
		return apperr.Config(op, "invalid connection source: %s", c.Source)
	}
	return nil
}

// ConnectionState is the lifecycle state of a live connection handle.
type ConnectionState string

const (
	StateAbsent     ConnectionState = "absent"
	StateConnecting ConnectionState = "connecting"
	StateReady      ConnectionState = "ready"
	StateError      ConnectionState = "error"
	StateClosed     ConnectionState = "closed"
)

// ConnectionStatus reports the state of one tracked connection.
type ConnectionStatus struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Addr  string          `json:"addr"`
	State ConnectionState `json:"state"`
}
