package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/health"
	"github.com/n3tuk/redis-console/internal/model"
)

// HealthChecker reports the state of the tracked connections. External
// stores being unreachable never fails the probe; failed connections are
// listed in the message instead.
type HealthChecker struct {
	logger   *zap.Logger
	registry *Registry
}

// NewHealthChecker creates a new connection registry health checker.
func NewHealthChecker(logger *zap.Logger, registry *Registry) *HealthChecker {
	return &HealthChecker{
		logger:   logger,
		registry: registry,
	}
}

// Name returns the name of the health check.
func (c *HealthChecker) Name() string {
	return "connections"
}

// Check performs the health check.
func (c *HealthChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()

	connections := c.registry.Connections()

	var failed []string
	for _, conn := range connections {
		if conn.State == model.StateError {
			failed = append(failed, conn.ID)
		}
	}

	result := health.CheckResult{
		Name:      c.Name(),
		Status:    health.StatusOK,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}

	if len(failed) > 0 {
		result.Message = fmt.Sprintf("%d of %d connections failing: %s",
			len(failed), len(connections), strings.Join(failed, ", "))
		c.logger.Debug("Connections in error state", zap.Strings("connection_ids", failed))
	} else {
		result.Message = fmt.Sprintf("%d connections tracked", len(connections))
	}

	return result
}
