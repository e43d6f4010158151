package model

import (
	"encoding/json"
	"testing"

	"github.com/n3tuk/redis-console/internal/apperr"
)

func TestConnectionConfigValidate(t *testing.T) {
	valid := ConnectionConfig{ID: "local", Name: "Local", Host: "127.0.0.1", Port: 6379}

	tests := []struct {
		name    string
		mutate  func(c *ConnectionConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *ConnectionConfig) {}},
		{name: "missing id", mutate: func(c *ConnectionConfig) { c.ID = " " }, wantErr: true},
		{name: "missing host", mutate: func(c *ConnectionConfig) { c.Host = "" }, wantErr: true},
		{name: "port zero", mutate: func(c *ConnectionConfig) { c.Port = 0 }, wantErr: true},
		{name: "port too large", mutate: func(c *ConnectionConfig) { c.Port = 65536 }, wantErr: true},
		{name: "port max", mutate: func(c *ConnectionConfig) { c.Port = 65535 }},
		{name: "negative db", mutate: func(c *ConnectionConfig) { c.DB = -1 }, wantErr: true},
		{name: "unknown source", mutate: func(c *ConnectionConfig) { c.Source = "cloud" }, wantErr: true},
		{name: "environment source", mutate: func(c *ConnectionConfig) { c.Source = SourceEnvironment }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperr.Is(err, apperr.KindConfig) {
				t.Errorf("Validate() error kind = %s, want config", apperr.KindOf(err))
			}
		})
	}
}

func TestConnectionConfigSameSession(t *testing.T) {
	a := ConnectionConfig{ID: "a", Name: "A", Host: "redis.local", Port: 6379}

	b := a
	b.Name = "renamed"
	b.Host = "REDIS.local"
	if !a.SameSession(b) {
		t.Error("renaming should not require a new session")
	}

	c := a
	c.Password = "secret"
	if a.SameSession(c) {
		t.Error("changing the password should require a new session")
	}

	d := a
	d.DB = 2
	if a.SameSession(d) {
		t.Error("changing the database should require a new session")
	}
}

func TestConnectRequestTarget(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantOK  bool
		wantID  string
		wantEnv bool
	}{
		{
			name:   "wrapped config",
			body:   `{"config":{"id":"a","host":"h","port":6379},"isEnvironmentConnection":false}`,
			wantOK: true,
			wantID: "a",
		},
		{
			name:   "legacy bare config",
			body:   `{"id":"b","host":"h","port":6380}`,
			wantOK: true,
			wantID: "b",
		},
		{
			name:    "environment by id",
			body:    `{"connectionId":"env-default","isEnvironmentConnection":true}`,
			wantOK:  true,
			wantID:  "env-default",
			wantEnv: true,
		},
		{
			name: "empty",
			body: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ConnectRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			cfg, ok := req.Target()
			if ok != tt.wantOK {
				t.Fatalf("Target() ok = %v, want %v", ok, tt.wantOK)
			}
			if cfg.ID != tt.wantID {
				t.Errorf("Target() id = %q, want %q", cfg.ID, tt.wantID)
			}
			if req.IsEnvironmentConnection != tt.wantEnv {
				t.Errorf("IsEnvironmentConnection = %v, want %v", req.IsEnvironmentConnection, tt.wantEnv)
			}
		})
	}
}

func TestRedactedDropsPassword(t *testing.T) {
	cfg := ConnectionConfig{ID: "a", Host: "h", Port: 1, Username: "u", Password: "p"}
	red := cfg.Redacted()
	if red.Password != "" {
		t.Error("Redacted() kept the password")
	}
	if red.Username != "u" {
		t.Error("Redacted() dropped the username")
	}
	if cfg.Password != "p" {
		t.Error("Redacted() modified the receiver")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 / 2, "2.5 MB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
