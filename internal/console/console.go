// Package console implements the operations behind the admin API. It
// composes the connection registry, the value codec, the command
// dispatcher, the info translator and the profile catalog.
package console

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/codec"
	"github.com/n3tuk/redis-console/internal/command"
	"github.com/n3tuk/redis-console/internal/info"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
	"github.com/n3tuk/redis-console/internal/profiles"
	"github.com/n3tuk/redis-console/internal/registry"
)

// KeyOptions bounds key listings.
type KeyOptions struct {
	// ScanCount is the COUNT hint passed to SCAN.
	ScanCount int64

	// MaxResults caps the number of keys returned by one listing.
	MaxResults int

	// Concurrency caps the per-key lookups running at once.
	Concurrency int
}

// DefaultKeyOptions returns the default key listing bounds.
func DefaultKeyOptions() KeyOptions {
	return KeyOptions{
		ScanCount:   500,
		MaxResults:  10000,
		Concurrency: 16,
	}
}

// Console is the application service behind the HTTP handlers.
type Console struct {
	registry *registry.Registry
	profiles *profiles.Manager
	codec    *codec.Codec
	keys     KeyOptions
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a Console.
func New(
	reg *registry.Registry,
	prof *profiles.Manager,
	cdc *codec.Codec,
	keys KeyOptions,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Console {
	if keys.ScanCount <= 0 {
		keys.ScanCount = DefaultKeyOptions().ScanCount
	}
	if keys.MaxResults <= 0 {
		keys.MaxResults = DefaultKeyOptions().MaxResults
	}
	if keys.Concurrency <= 0 {
		keys.Concurrency = DefaultKeyOptions().Concurrency
	}

	return &Console{
		registry: reg,
		profiles: prof,
		codec:    cdc,
		keys:     keys,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// observe records the outcome of one console operation.
// It is deferred with a pointer to the operation's named error result.
func (c *Console) observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = apperr.KindOf(*err).String()
	}
	c.metrics.RecordOperation(operation, status, time.Since(start))
}

// client returns the live client for connection id.
func (c *Console) client(id string) (redis.UniversalClient, error) {
	const op = "console.client"

	if id == "" {
		return nil, apperr.Invalid(op, "Missing connection ID")
	}
	h, ok := c.registry.Lookup(id)
	if !ok {
		return nil, apperr.NotFound(op, "Redis connection not found")
	}
	return h.Session().Client(), nil
}

// Connect opens, or reuses, the session for the connection described by
// req and verifies it with a PING. A failed PING releases the handle.
func (c *Console) Connect(ctx context.Context, req model.ConnectRequest) (resp model.ConnectResponse, err error) {
	const op = "console.Connect"
	defer c.observe("connect", time.Now(), &err)

	cfg, err := c.resolve(ctx, req)
	if err != nil {
		return resp, err
	}

	c.logger.Info("Connecting to Redis",
		zap.String("connection_id", cfg.ID),
		zap.String("name", cfg.DisplayName()),
		zap.Bool("environment", cfg.IsEnvironment()),
	)

	h, err := c.registry.Acquire(ctx, cfg)
	if err != nil {
		return resp, err
	}

	if err = h.Session().Ping(ctx); err != nil {
		c.logger.Warn("Connection ping failed, releasing handle",
			zap.String("connection_id", cfg.ID),
			zap.Error(err),
		)
		if relErr := c.registry.Release(ctx, cfg.ID); relErr != nil {
			c.logger.Warn("Failed to release connection", zap.String("connection_id", cfg.ID), zap.Error(relErr))
		}
		return resp, apperr.Upstream(op, err)
	}

	c.logger.Info("Connected to Redis",
		zap.String("connection_id", cfg.ID),
		zap.String("addr", cfg.Addr()),
	)

	return model.ConnectResponse{
		Success:                 true,
		ID:                      cfg.ID,
		IsEnvironmentConnection: cfg.IsEnvironment(),
	}, nil
}

// resolve turns a connect request into a full configuration. Environment
// connections are always taken from the server's catalog, never from the
// request body; a request carrying only an id is resolved from the catalog.
func (c *Console) resolve(ctx context.Context, req model.ConnectRequest) (model.ConnectionConfig, error) {
	const op = "console.Connect"

	target, ok := req.Target()
	if !ok {
		return target, apperr.Invalid(op, "Missing connection configuration")
	}

	if env, ok := c.profiles.EnvironmentByID(target.ID); ok {
		return env, nil
	}
	if req.IsEnvironmentConnection {
		return target, apperr.NotFound(op, "environment connection not found: %s", target.ID)
	}

	if target.Host == "" && target.Port == 0 && target.ID != "" {
		return c.profiles.Get(ctx, target.ID)
	}

	if target.Host == "" || target.Port == 0 {
		return target, apperr.Config(op, "Missing required connection parameters")
	}
	target.Source = model.SourceUser
	return target, nil
}

// Disconnect releases the session for id. Unknown ids are not an error.
func (c *Console) Disconnect(ctx context.Context, id string) (err error) {
	defer c.observe("disconnect", time.Now(), &err)

	if id == "" {
		return apperr.Invalid("console.Disconnect", "Missing connection ID")
	}
	return c.registry.Release(ctx, id)
}

// Connections lists the tracked connections and their states.
func (c *Console) Connections() []model.ConnectionStatus {
	return c.registry.Connections()
}

// GetKey reads key. When typeName is empty the type is asked from the store.
func (c *Console) GetKey(ctx context.Context, id, key, typeName string) (kv model.KeyValue, err error) {
	const op = "console.GetKey"
	defer c.observe("get_key", time.Now(), &err)

	if key == "" {
		return kv, apperr.Invalid(op, "Missing required parameters")
	}
	client, err := c.client(id)
	if err != nil {
		return kv, err
	}

	var t codec.Type
	if typeName == "" {
		t, err = c.codec.TypeOf(ctx, client, key)
	} else {
		t, err = codec.ParseType(typeName)
	}
	if err != nil {
		return kv, err
	}

	value, err := c.codec.Decode(ctx, client, key, t)
	if err != nil {
		return kv, err
	}

	return model.KeyValue{Key: key, Type: t.String(), Value: value}, nil
}

// SetKey writes req.Value under req.Key as req.Type.
func (c *Console) SetKey(ctx context.Context, req model.SetKeyRequest) (err error) {
	const op = "console.SetKey"
	defer c.observe("set_key", time.Now(), &err)

	if req.Key == "" || req.Type == "" || (req.Value == nil && !req.HasValue) {
		return apperr.Invalid(op, "Missing required parameters")
	}
	client, err := c.client(req.ConnectionID)
	if err != nil {
		return err
	}

	t, err := codec.ParseType(req.Type)
	if err != nil {
		return err
	}
	// Only a JSON document can be null.
	if req.Value == nil && t != codec.TypeJSON {
		return apperr.Invalid(op, "value cannot be null for type %s", t)
	}

	return c.codec.Encode(ctx, client, req.Key, t, req.Value)
}

// DeleteKey removes key. Deleting a missing key succeeds.
func (c *Console) DeleteKey(ctx context.Context, id, key string) (err error) {
	const op = "console.DeleteKey"
	defer c.observe("delete_key", time.Now(), &err)

	if key == "" {
		return apperr.Invalid(op, "Missing required parameters")
	}
	client, err := c.client(id)
	if err != nil {
		return err
	}

	if err = client.Del(ctx, key).Err(); err != nil {
		return apperr.Upstream(op, err)
	}
	return nil
}

// Execute runs a raw command line against connection id.
func (c *Console) Execute(ctx context.Context, id, line string) (result any, err error) {
	defer c.observe("command", time.Now(), &err)

	client, err := c.client(id)
	if err != nil {
		return nil, err
	}

	verb, _, _ := command.Tokenize(line)
	c.logger.Debug("Executing command",
		zap.String("connection_id", id),
		zap.String("verb", verb),
	)

	return command.Execute(ctx, client, line)
}

// ServerInfo returns a fresh snapshot of server statistics.
func (c *Console) ServerInfo(ctx context.Context, id string) (snap info.Snapshot, err error) {
	const op = "console.ServerInfo"
	defer c.observe("info", time.Now(), &err)

	client, err := c.client(id)
	if err != nil {
		return snap, err
	}

	raw, err := client.Info(ctx).Result()
	if err != nil {
		return snap, apperr.Upstream(op, err)
	}

	return info.BuildSnapshot(info.ParseSections(raw), c.now()), nil
}

// EnvironmentConnections returns the environment connections with their
// credentials removed.
func (c *Console) EnvironmentConnections() []model.ConnectionConfig {
	env := c.profiles.Environment()
	for i := range env {
		env[i] = env[i].Redacted()
	}
	return env
}

// Profiles returns the merged profile catalog. Environment credentials are
// removed.
func (c *Console) Profiles(ctx context.Context) ([]model.ConnectionConfig, error) {
	list, err := c.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].IsEnvironment() {
			list[i] = list[i].Redacted()
		}
	}
	return list, nil
}

// CreateProfile saves a new user profile.
func (c *Console) CreateProfile(ctx context.Context, cfg model.ConnectionConfig) (model.ConnectionConfig, error) {
	return c.profiles.Create(ctx, cfg)
}

// UpdateProfile replaces a user profile and drops any live session built
// from the old parameters.
func (c *Console) UpdateProfile(ctx context.Context, id string, cfg model.ConnectionConfig) (model.ConnectionConfig, error) {
	updated, err := c.profiles.Update(ctx, id, cfg)
	if err != nil {
		return updated, err
	}
	c.release(ctx, id)
	return updated, nil
}

// DeleteProfile removes a user profile and its live session.
func (c *Console) DeleteProfile(ctx context.Context, id string) error {
	if err := c.profiles.Delete(ctx, id); err != nil {
		return err
	}
	c.release(ctx, id)
	return nil
}

func (c *Console) release(ctx context.Context, id string) {
	if err := c.registry.Release(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("Failed to release connection",
			zap.String("connection_id", id),
			zap.Error(err),
		)
	}
}
