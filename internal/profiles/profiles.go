// Package profiles is the catalog of connection configurations: read-only
// environment connections discovered at start-up, and user connections
// saved through the API into a store.Store.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/model"
	"github.com/n3tuk/redis-console/internal/store"
)

// keyPrefix namespaces profile documents inside the store.
const keyPrefix = "profile:"

// Manager resolves connection configurations by id and persists user
// profiles. Environment profiles always win over user profiles.
type Manager struct {
	store  store.Store
	logger *zap.Logger
	env    []model.ConnectionConfig
	envIdx map[string]int
}

// NewManager creates a Manager over st. Every environment configuration is
// validated and marked as environment-sourced; ids must be unique.
func NewManager(st store.Store, env []model.ConnectionConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		store:  st,
		logger: logger,
		env:    make([]model.ConnectionConfig, 0, len(env)),
		envIdx: make(map[string]int, len(env)),
	}

	for _, cfg := range env {
		cfg.Source = model.SourceEnvironment
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid environment connection %q: %w", cfg.ID, err)
		}
		if _, dup := m.envIdx[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate environment connection id %q", cfg.ID)
		}
		m.envIdx[cfg.ID] = len(m.env)
		m.env = append(m.env, cfg)
	}

	logger.Info("Connection catalog initialized",
		zap.Int("environment_connections", len(m.env)),
	)

	return m, nil
}

// Environment returns the environment connections in discovery order.
func (m *Manager) Environment() []model.ConnectionConfig {
	out := make([]model.ConnectionConfig, len(m.env))
	copy(out, m.env)
	return out
}

// EnvironmentByID returns the environment connection with the given id.
func (m *Manager) EnvironmentByID(id string) (model.ConnectionConfig, bool) {
	i, ok := m.envIdx[id]
	if !ok {
		return model.ConnectionConfig{}, false
	}
	return m.env[i], true
}

// shadowed reports whether cfg collides with an environment connection on
// host and port.
func (m *Manager) shadowed(cfg model.ConnectionConfig) bool {
	for _, e := range m.env {
		if e.SameEndpoint(cfg) {
			return true
		}
	}
	return false
}

// List returns environment connections first, then user profiles sorted by
// display name. User profiles sharing an endpoint with an environment
// connection are hidden.
func (m *Manager) List(ctx context.Context) ([]model.ConnectionConfig, error) {
	users, err := m.users(ctx)
	if err != nil {
		return nil, err
	}

	out := m.Environment()
	visible := users[:0]
	for _, u := range users {
		if m.shadowed(u) {
			m.logger.Debug("User profile hidden by environment connection",
				zap.String("connection_id", u.ID),
				zap.String("addr", u.Addr()),
			)
			continue
		}
		visible = append(visible, u)
	}

	sort.Slice(visible, func(i, j int) bool {
		a, b := strings.ToLower(visible[i].DisplayName()), strings.ToLower(visible[j].DisplayName())
		if a != b {
			return a < b
		}
		return visible[i].ID < visible[j].ID
	})

	return append(out, visible...), nil
}

func (m *Manager) users(ctx context.Context) ([]model.ConnectionConfig, error) {
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	var out []model.ConnectionConfig
	for _, k := range keys {
		id, ok := strings.CutPrefix(k, keyPrefix)
		if !ok {
			continue
		}
		cfg, err := m.load(ctx, id)
		if apperr.Is(err, apperr.KindNotFound) {
			// Deleted between Keys and Get.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (m *Manager) load(ctx context.Context, id string) (model.ConnectionConfig, error) {
	const op = "profiles.Get"

	data, err := m.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		return model.ConnectionConfig{}, apperr.NotFound(op, "connection not found: %s", id)
	}
	if err != nil {
		return model.ConnectionConfig{}, fmt.Errorf("failed to get profile: %w", err)
	}

	var cfg model.ConnectionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.ConnectionConfig{}, fmt.Errorf("failed to deserialize profile %s: %w", id, err)
	}
	cfg.ID = id
	cfg.Source = model.SourceUser
	return cfg, nil
}

// Get resolves id to a connection configuration, environment first.
func (m *Manager) Get(ctx context.Context, id string) (model.ConnectionConfig, error) {
	if cfg, ok := m.EnvironmentByID(id); ok {
		return cfg, nil
	}
	return m.load(ctx, id)
}

func (m *Manager) put(ctx context.Context, cfg model.ConnectionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}
	if err := m.store.Put(ctx, keyPrefix+cfg.ID, data); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// Create saves a new user profile. An empty id is replaced with a random
// UUID; ids of environment connections or existing profiles are rejected.
func (m *Manager) Create(ctx context.Context, cfg model.ConnectionConfig) (model.ConnectionConfig, error) {
	const op = "profiles.Create"

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if _, ok := m.EnvironmentByID(cfg.ID); ok {
		return cfg, apperr.Config(op, "cannot modify environment connection: %s", cfg.ID)
	}
	cfg.Source = model.SourceUser
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	_, err := m.load(ctx, cfg.ID)
	switch {
	case err == nil:
		return cfg, apperr.Invalid(op, "connection already exists: %s", cfg.ID)
	case !apperr.Is(err, apperr.KindNotFound):
		return cfg, err
	}

	if err := m.put(ctx, cfg); err != nil {
		return cfg, err
	}

	m.logger.Info("Connection profile created",
		zap.String("connection_id", cfg.ID),
		zap.String("addr", cfg.Addr()),
	)
	return cfg, nil
}

// Update replaces the user profile id with cfg.
func (m *Manager) Update(ctx context.Context, id string, cfg model.ConnectionConfig) (model.ConnectionConfig, error) {
	const op = "profiles.Update"

	if _, ok := m.EnvironmentByID(id); ok {
		return cfg, apperr.Config(op, "cannot modify environment connection: %s", id)
	}
	if cfg.ID != "" && cfg.ID != id {
		return cfg, apperr.Invalid(op, "connection id mismatch: %s != %s", cfg.ID, id)
	}
	cfg.ID = id
	cfg.Source = model.SourceUser
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if _, err := m.load(ctx, id); err != nil {
		return cfg, err
	}

	if err := m.put(ctx, cfg); err != nil {
		return cfg, err
	}

	m.logger.Info("Connection profile updated",
		zap.String("connection_id", id),
		zap.String("addr", cfg.Addr()),
	)
	return cfg, nil
}

// Delete removes the user profile id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	const op = "profiles.Delete"

	if _, ok := m.EnvironmentByID(id); ok {
		return apperr.Config(op, "cannot delete environment connection: %s", id)
	}
	if _, err := m.load(ctx, id); err != nil {
		return err
	}

	if err := m.store.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	m.logger.Info("Connection profile deleted", zap.String("connection_id", id))
	return nil
}
