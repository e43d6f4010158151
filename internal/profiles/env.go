package profiles

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/model"
)

const (
	envPrefix      = "REDIS_"
	defaultEnvID   = "env-default"
	defaultEnvName = "Environment Redis"
	defaultPort    = 6379
)

// FromEnvironment discovers connections from environment variables given in
// "KEY=value" form, as returned by os.Environ.
//
// REDIS_URL, or REDIS_HOST with REDIS_PORT, REDIS_USERNAME, REDIS_PASSWORD,
// REDIS_TLS and REDIS_DB, describe the connection "env-default". The same
// variables with a numeric infix, such as REDIS_2_HOST, describe "env-2".
// REDIS_NAME and REDIS_<n>_NAME set the display name.
func FromEnvironment(environ []string) ([]model.ConnectionConfig, error) {
	groups := map[string]map[string]string{}

	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(k, envPrefix)
		if !ok || rest == "" {
			continue
		}

		group, field := "", rest
		if idx, f, ok := strings.Cut(rest, "_"); ok && isIndex(idx) {
			group, field = idx, f
		}

		if groups[group] == nil {
			groups[group] = map[string]string{}
		}
		groups[group][field] = v
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "" || names[j] == "" {
			return names[i] == ""
		}
		a, _ := strconv.Atoi(names[i])
		b, _ := strconv.Atoi(names[j])
		return a < b
	})

	var configs []model.ConnectionConfig
	for _, g := range names {
		id, name := defaultEnvID, defaultEnvName
		if g != "" {
			id, name = "env-"+g, defaultEnvName+" "+g
		}

		cfg, ok, err := fromFields(id, name, groups[g])
		if err != nil {
			return nil, err
		}
		if ok {
			configs = append(configs, cfg)
		}
	}

	return configs, nil
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// fromFields builds a connection from one group of variables. The second
// result is false when the group names neither a URL nor a host.
func fromFields(id, name string, fields map[string]string) (model.ConnectionConfig, bool, error) {
	const op = "profiles.FromEnvironment"

	cfg := model.ConnectionConfig{
		ID:     id,
		Name:   name,
		Source: model.SourceEnvironment,
	}
	if n := strings.TrimSpace(fields["NAME"]); n != "" {
		cfg.Name = n
	}

	switch {
	case fields["URL"] != "":
		opt, err := redis.ParseURL(fields["URL"])
		if err != nil {
			return cfg, false, apperr.Config(op, "%s: invalid url: %v", id, err)
		}
		host, portStr, err := net.SplitHostPort(opt.Addr)
		if err != nil {
			return cfg, false, apperr.Config(op, "%s: invalid address %q", id, opt.Addr)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return cfg, false, apperr.Config(op, "%s: invalid port %q", id, portStr)
		}
		cfg.Host = host
		cfg.Port = port
		cfg.Username = opt.Username
		cfg.Password = opt.Password
		cfg.DB = opt.DB
		cfg.TLS = opt.TLSConfig != nil

	case fields["HOST"] != "":
		cfg.Host = fields["HOST"]
		cfg.Port = defaultPort
		cfg.Username = fields["USERNAME"]
		cfg.Password = fields["PASSWORD"]

		if p := fields["PORT"]; p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return cfg, false, apperr.Config(op, "%s: invalid port %q", id, p)
			}
			cfg.Port = port
		}
		if t := fields["TLS"]; t != "" {
			tls, err := strconv.ParseBool(t)
			if err != nil {
				return cfg, false, apperr.Config(op, "%s: invalid tls flag %q", id, t)
			}
			cfg.TLS = tls
		}
		if d := fields["DB"]; d != "" {
			db, err := strconv.Atoi(d)
			if err != nil {
				return cfg, false, apperr.Config(op, "%s: invalid database index %q", id, d)
			}
			cfg.DB = db
		}

	default:
		return cfg, false, nil
	}

	if err := cfg.Validate(); err != nil {
		return cfg, false, fmt.Errorf("%s: %w", id, err)
	}
	return cfg, true, nil
}
