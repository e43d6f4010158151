package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager manages multiple health checks and provides aggregated results.
type Manager struct {
	logger           *zap.Logger
	checkers         map[string]Checker
	dependencies     []Checker
	cache            map[string]*cachedResult
	cacheMutex       sync.RWMutex
	cacheDuration    time.Duration
	checkTimeout     time.Duration
	serverChecker    *ServerChecker
	readinessChecker *ReadinessChecker
}

type cachedResult struct {
	result    CheckResult
	expiresAt time.Time
}

// NewManager creates a new health check manager.
func NewManager(logger *zap.Logger, cacheDuration, checkTimeout time.Duration) *Manager {
	return &Manager{
		logger:        logger,
		checkers:      make(map[string]Checker),
		cache:         make(map[string]*cachedResult),
		cacheDuration: cacheDuration,
		checkTimeout:  checkTimeout,
	}
}

// RegisterChecker registers a new health checker. Checkers must be
// registered before the probe server starts.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers[checker.Name()] = checker

	switch c := checker.(type) {
	case *ServerChecker:
		m.serverChecker = c
	case *ReadinessChecker:
		m.readinessChecker = c
	}
}

// RegisterReadinessDependency registers a checker that must pass for the
// service to report ready, in addition to the readiness checker. It is also
// part of the startup checks.
func (m *Manager) RegisterReadinessDependency(checker Checker) {
	m.RegisterChecker(checker)
	m.dependencies = append(m.dependencies, checker)
}

// SetServersRunning marks the servers as running.
func (m *Manager) SetServersRunning(running bool) {
	if m.serverChecker != nil {
		m.serverChecker.SetRunning(running)
	}
	if m.readinessChecker != nil {
		m.readinessChecker.SetRunning(running)
	}
	m.invalidate()
}

// SetShuttingDown marks the service as shutting down.
func (m *Manager) SetShuttingDown(shutDown bool) {
	if m.readinessChecker != nil {
		m.readinessChecker.SetShuttingDown(shutDown)
	}
	m.invalidate()
}

// CheckAll runs all registered health checks concurrently. Results are
// sorted by name.
func (m *Manager) CheckAll(ctx context.Context) []CheckResult {
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	return m.run(ctx, checkers)
}

func (m *Manager) run(ctx context.Context, checkers []Checker) []CheckResult {
	results := make([]CheckResult, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.runCheck(ctx, checker)
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
	return results
}

// runCheck runs a single health check with timeout and caching.
func (m *Manager) runCheck(ctx context.Context, checker Checker) CheckResult {
	name := checker.Name()

	if cached := m.getCachedResult(name); cached != nil {
		return *cached
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	result := checker.Check(checkCtx)
	if result.Status != StatusOK {
		m.logger.Debug("Health check not passing",
			zap.String("check", name),
			zap.String("status", string(result.Status)),
			zap.String("message", result.Message),
		)
	}

	m.cacheResult(name, result)

	return result
}

// getCachedResult returns a cached result if it exists and hasn't expired.
func (m *Manager) getCachedResult(name string) *CheckResult {
	m.cacheMutex.RLock()
	defer m.cacheMutex.RUnlock()

	if cached, ok := m.cache[name]; ok {
		if time.Now().Before(cached.expiresAt) {
			result := cached.result
			return &result
		}
	}

	return nil
}

// cacheResult caches a check result.
func (m *Manager) cacheResult(name string, result CheckResult) {
	if m.cacheDuration <= 0 {
		return
	}

	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	m.cache[name] = &cachedResult{
		result:    result,
		expiresAt: time.Now().Add(m.cacheDuration),
	}
}

// invalidate drops every cached result so lifecycle changes are visible to
// the next probe.
func (m *Manager) invalidate() {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	clear(m.cache)
}

// GetStartupStatus returns the startup status of the service.
func (m *Manager) GetStartupStatus(ctx context.Context) StartupResponse {
	results := m.CheckAll(ctx)

	return StartupResponse{
		Status:    aggregate(results),
		Timestamp: time.Now(),
		Checks:    statuses(results),
	}
}

// GetLivenessStatus returns the liveness status of the service.
// Liveness is minimal - just confirms the goroutine is alive.
func (m *Manager) GetLivenessStatus() LivenessResponse {
	return LivenessResponse{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
}

// GetReadinessStatus returns the readiness status of the service: the
// readiness checker plus any registered dependencies.
func (m *Manager) GetReadinessStatus(ctx context.Context) ReadinessResponse {
	checkers := make([]Checker, 0, len(m.dependencies)+1)
	if m.readinessChecker != nil {
		checkers = append(checkers, m.readinessChecker)
	}
	checkers = append(checkers, m.dependencies...)

	if len(checkers) == 0 {
		return ReadinessResponse{
			Status:    StatusOK,
			Timestamp: time.Now(),
			Ready:     true,
		}
	}

	results := m.run(ctx, checkers)
	status := StatusOK
	for _, r := range results {
		if r.Status != StatusOK {
			status = StatusNotReady
			break
		}
	}

	return ReadinessResponse{
		Status:    status,
		Timestamp: time.Now(),
		Ready:     status == StatusOK,
		Checks:    statuses(results),
	}
}

// aggregate folds check results into one status. Any error wins over
// starting, and starting wins over not-ready.
func aggregate(results []CheckResult) Status {
	status := StatusOK
	for _, r := range results {
		switch r.Status {
		case StatusError:
			return StatusError
		case StatusStarting:
			status = StatusStarting
		case StatusNotReady:
			if status == StatusOK {
				status = StatusNotReady
			}
		}
	}
	return status
}

func statuses(results []CheckResult) map[string]Status {
	out := make(map[string]Status, len(results))
	for _, r := range results {
		out[r.Name] = r.Status
	}
	return out
}
