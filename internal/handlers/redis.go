package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/info"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
)

// Console is the set of store operations served under /api/redis.
type Console interface {
	Connect(ctx context.Context, req model.ConnectRequest) (model.ConnectResponse, error)
	Disconnect(ctx context.Context, id string) error
	Connections() []model.ConnectionStatus
	ListKeys(ctx context.Context, id, pattern string) ([]model.KeyDescriptor, error)
	GetKey(ctx context.Context, id, key, typeName string) (model.KeyValue, error)
	SetKey(ctx context.Context, req model.SetKeyRequest) error
	DeleteKey(ctx context.Context, id, key string) error
	Execute(ctx context.Context, id, line string) (any, error)
	ServerInfo(ctx context.Context, id string) (info.Snapshot, error)
	EnvironmentConnections() []model.ConnectionConfig
}

// RedisHandlers provides HTTP handlers for store operations.
type RedisHandlers struct {
	responder
	console Console
}

// NewRedisHandlers creates a new RedisHandlers instance.
func NewRedisHandlers(console Console, logger *zap.Logger, metrics *metrics.Metrics) *RedisHandlers {
	return &RedisHandlers{
		responder: responder{logger: logger, metrics: metrics},
		console:   console,
	}
}

// HandleConnect handles POST /api/redis/connect.
// The body is either {"config": {...}, "isEnvironmentConnection": bool} or
// a bare connection configuration.
// Returns:
//   - 200 OK: session opened and answered PING
//   - 400 Bad Request: missing or invalid configuration
//   - 404 Not Found: unknown environment connection
//   - 502 Bad Gateway: the store could not be reached
func (h *RedisHandlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req model.ConnectRequest
	if !h.decode(w, r, "connect", &req) {
		return
	}

	resp, err := h.console.Connect(r.Context(), req)
	if err != nil {
		h.fail(w, "connect", err, "Failed to connect to Redis")
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// HandleDisconnect handles POST /api/redis/disconnect.
// Disconnecting an unknown id succeeds.
func (h *RedisHandlers) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req model.DisconnectRequest
	if !h.decode(w, r, "disconnect", &req) {
		return
	}

	if err := h.console.Disconnect(r.Context(), req.ID); err != nil {
		h.fail(w, "disconnect", err, "Failed to disconnect from Redis")
		return
	}

	h.respondSuccess(w)
}

// HandleConnections handles GET /api/redis/connections.
func (h *RedisHandlers) HandleConnections(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.console.Connections())
}

// HandleListKeys handles GET /api/redis/keys?connectionId=&pattern=.
func (h *RedisHandlers) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	keys, err := h.console.ListKeys(r.Context(), q.Get("connectionId"), q.Get("pattern"))
	if err != nil {
		h.fail(w, "list_keys", err, "Failed to fetch keys")
		return
	}
	if keys == nil {
		keys = []model.KeyDescriptor{}
	}

	h.respondJSON(w, http.StatusOK, model.KeysResponse{Keys: keys})
}

// HandleGetKey handles GET /api/redis/key?connectionId=&key=&type=.
// The type is detected when omitted.
func (h *RedisHandlers) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kv, err := h.console.GetKey(r.Context(), q.Get("connectionId"), q.Get("key"), q.Get("type"))
	if err != nil {
		h.fail(w, "get_key", err, "Failed to fetch key value")
		return
	}

	h.respondJSON(w, http.StatusOK, kv)
}

// HandleSetKey handles POST /api/redis/key.
func (h *RedisHandlers) HandleSetKey(w http.ResponseWriter, r *http.Request) {
	var req model.SetKeyRequest
	if !h.decode(w, r, "set_key", &req) {
		return
	}

	if err := h.console.SetKey(r.Context(), req); err != nil {
		h.fail(w, "set_key", err, "Failed to save key")
		return
	}

	h.respondSuccess(w)
}

// HandleDeleteKey handles DELETE /api/redis/key?connectionId=&key=.
func (h *RedisHandlers) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := h.console.DeleteKey(r.Context(), q.Get("connectionId"), q.Get("key")); err != nil {
		h.fail(w, "delete_key", err, "Failed to delete key")
		return
	}

	h.respondSuccess(w)
}

// HandleCommand handles POST /api/redis/command.
func (h *RedisHandlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req model.CommandRequest
	if !h.decode(w, r, "command", &req) {
		return
	}

	result, err := h.console.Execute(r.Context(), req.ConnectionID, req.Command)
	if err != nil {
		h.fail(w, "command", err, "Failed to execute command")
		return
	}

	h.respondJSON(w, http.StatusOK, model.CommandResponse{Result: result})
}

// HandleInfo handles GET /api/redis/info?connectionId=.
func (h *RedisHandlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	snap, err := h.console.ServerInfo(r.Context(), r.URL.Query().Get("connectionId"))
	if err != nil {
		h.fail(w, "info", err, "Failed to fetch Redis info")
		return
	}

	h.respondJSON(w, http.StatusOK, snap)
}

// HandleEnvironmentConnections handles GET /api/redis/env-connections.
// Passwords are never included.
func (h *RedisHandlers) HandleEnvironmentConnections(w http.ResponseWriter, r *http.Request) {
	env := h.console.EnvironmentConnections()
	if env == nil {
		env = []model.ConnectionConfig{}
	}
	h.respondJSON(w, http.StatusOK, env)
}
