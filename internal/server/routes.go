package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/handlers"
	"github.com/n3tuk/redis-console/internal/health"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/middleware"
)

// setupAPIRoutes configures the API server routes.
func setupAPIRoutes(r chi.Router, logger *zap.Logger, redis *handlers.RedisHandlers, profiles *handlers.ProfileHandlers) {
	r.Get("/ping", handlePing(logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/redis", func(r chi.Router) {
			r.Post("/connect", redis.HandleConnect)
			r.Post("/disconnect", redis.HandleDisconnect)
			r.Get("/connections", redis.HandleConnections)
			r.Get("/keys", redis.HandleListKeys)
			r.Get("/key", redis.HandleGetKey)
			r.Post("/key", redis.HandleSetKey)
			r.Delete("/key", redis.HandleDeleteKey)
			r.Post("/command", redis.HandleCommand)
			r.Get("/info", redis.HandleInfo)
			r.Get("/env-connections", redis.HandleEnvironmentConnections)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", profiles.HandleList)
			r.Post("/", profiles.HandleCreate)
			r.Put("/{id}", profiles.HandleUpdate)
			r.Delete("/{id}", profiles.HandleDelete)
		})
	})
}

// setupProbeRoutes configures the probe server routes.
func setupProbeRoutes(r chi.Router, logger *zap.Logger, manager *health.Manager, m *metrics.Metrics) {
	r.With(middleware.HealthCheckMetricsMiddleware(m, "startup")).
		Get("/healthz/startup", handleProbe(logger, "startup", func(ctx context.Context) (any, bool) {
			resp := manager.GetStartupStatus(ctx)
			return resp, resp.Status == health.StatusOK
		}))

	r.With(middleware.HealthCheckMetricsMiddleware(m, "live")).
		Get("/healthz/live", handleProbe(logger, "live", func(context.Context) (any, bool) {
			resp := manager.GetLivenessStatus()
			return resp, resp.Status == health.StatusOK
		}))

	r.With(middleware.HealthCheckMetricsMiddleware(m, "ready")).
		Get("/healthz/ready", handleProbe(logger, "ready", func(ctx context.Context) (any, bool) {
			resp := manager.GetReadinessStatus(ctx)
			return resp, resp.Ready
		}))
}

// handlePing handles the /ping endpoint.
func handlePing(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{
			"status": "pong",
		})
	}
}

// handleProbe serves one health probe, answering 503 when it does not pass.
func handleProbe(logger *zap.Logger, probe string, check func(context.Context) (any, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, ok := check(r.Context())

		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
			logger.Debug("Health probe failing", zap.String("probe", probe))
		}

		writeJSON(w, logger, status, response)
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
