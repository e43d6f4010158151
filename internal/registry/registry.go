// Package registry maps logical connection ids to live store sessions.
//
// At most one session exists per id. Construction and teardown are
// serialized per id so unrelated connections never contend, and lookups
// never block.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
	"github.com/n3tuk/redis-console/internal/session"
)

// DefaultQuitTimeout bounds the graceful quit issued by Release.
const DefaultQuitTimeout = 2 * time.Second

// Handle is the registry-owned wrapper around a live session. Callers may
// borrow it for the duration of a call but never close it themselves.
type Handle struct {
	config      model.ConnectionConfig
	session     session.Session
	unsubscribe func()
}

// Config returns the configuration the handle was built from.
func (h *Handle) Config() model.ConnectionConfig {
	return h.config
}

// Session returns the underlying session.
func (h *Handle) Session() session.Session {
	return h.session
}

// State returns the current lifecycle state of the session.
func (h *Handle) State() model.ConnectionState {
	return h.session.State()
}

// entry holds the per-id lock and the current handle. An entry left
// without a handle is retired and removed from the map; retired entries
// are never reused.
type entry struct {
	mu      sync.Mutex
	handle  atomic.Pointer[Handle]
	retired bool
}

// Registry tracks the live session of every connected id.
type Registry struct {
	factory     session.Factory
	logger      *zap.Logger
	metrics     *metrics.Metrics
	quitTimeout time.Duration

	entries sync.Map // map[string]*entry
	handles atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithQuitTimeout sets how long Release waits for a graceful quit.
func WithQuitTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.quitTimeout = d
		}
	}
}

// New creates an empty registry that builds sessions with factory.
func New(factory session.Factory, opts ...Option) *Registry {
	r := &Registry{
		factory:     factory,
		logger:      zap.NewNop(),
		quitTimeout: DefaultQuitTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) entryFor(id string) *entry {
	if e, ok := r.entries.Load(id); ok {
		return e.(*entry)
	}
	e, _ := r.entries.LoadOrStore(id, &entry{})
	return e.(*entry)
}

// lock returns the live entry for id with its lock held.
func (r *Registry) lock(id string) *entry {
	for {
		e := r.entryFor(id)
		e.mu.Lock()
		if !e.retired {
			return e
		}
		e.mu.Unlock()
	}
}

// prune retires e and drops it from the map when it holds no handle.
// The caller holds e.mu.
func (r *Registry) prune(id string, e *entry) {
	if e.retired || e.handle.Load() != nil {
		return
	}
	e.retired = true
	r.entries.CompareAndDelete(id, e)
}

// Acquire returns the live handle for cfg.ID, building a new session when
// none exists, the current one has failed, or the connection parameters
// changed. Construction does not observe ctx cancellation: a session that
// is being built completes and is registered even if the caller goes away.
func (r *Registry) Acquire(ctx context.Context, cfg model.ConnectionConfig) (*Handle, error) {
	const op = "registry.Acquire"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := r.lock(cfg.ID)
	defer e.mu.Unlock()

	if h := e.handle.Load(); h != nil {
		state := h.State()
		if (state == model.StateReady || state == model.StateConnecting) && h.config.SameSession(cfg) {
			return h, nil
		}

		r.logger.Info("Replacing connection",
			zap.String("connection_id", cfg.ID),
			zap.String("state", string(state)),
			zap.Bool("config_changed", !h.config.SameSession(cfg)),
		)
		if err := r.teardown(ctx, e, h); err != nil {
			r.logger.Warn("Failed to release replaced connection",
				zap.String("connection_id", cfg.ID),
				zap.Error(err),
			)
		}
	}

	s, err := r.factory(cfg)
	if err != nil {
		r.prune(cfg.ID, e)
		r.metrics.RecordSessionConstruction("failure")
		r.logger.Warn("Failed to create session",
			zap.String("connection_id", cfg.ID),
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		if apperr.KindOf(err) == apperr.KindConfig {
			return nil, err
		}
		return nil, apperr.Upstream(op, err)
	}
	r.metrics.RecordSessionConstruction("success")

	h := &Handle{config: cfg, session: s}
	h.unsubscribe = s.Subscribe(func(state model.ConnectionState) {
		r.onStateChange(cfg.ID, h, state)
	})
	e.handle.Store(h)
	r.setHandles(r.handles.Add(1))

	// The session may have ended before the subscription was in place.
	if s.State() == model.StateClosed {
		r.onStateChange(cfg.ID, h, model.StateClosed)
		r.prune(cfg.ID, e)
	}

	r.logger.Info("Connection registered",
		zap.String("connection_id", cfg.ID),
		zap.String("addr", cfg.Addr()),
	)

	return h, nil
}

// onStateChange is the single transition handler subscribed to every
// session. It runs on the session's goroutine and must not wait for e.mu;
// when the lock is busy its holder prunes the entry instead.
func (r *Registry) onStateChange(id string, h *Handle, state model.ConnectionState) {
	if state != model.StateClosed {
		return
	}

	v, ok := r.entries.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	if !e.handle.CompareAndSwap(h, nil) {
		return
	}
	r.setHandles(r.handles.Add(-1))
	r.logger.Info("Connection ended, forgetting handle",
		zap.String("connection_id", id),
	)

	if e.mu.TryLock() {
		r.prune(id, e)
		e.mu.Unlock()
	}
}

// Lookup returns the current handle for id without creating one.
func (r *Registry) Lookup(id string) (*Handle, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	h := v.(*entry).handle.Load()
	return h, h != nil
}

// Release gracefully terminates the session for id and forgets it.
// Releasing an id that is not tracked is a no-op.
func (r *Registry) Release(ctx context.Context, id string) error {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return nil
	}
	defer r.prune(id, e)

	h := e.handle.Load()
	if h == nil {
		return nil
	}

	return r.teardown(ctx, e, h)
}

// teardown forgets h and terminates its session. The caller holds e.mu.
func (r *Registry) teardown(ctx context.Context, e *entry, h *Handle) error {
	if e.handle.CompareAndSwap(h, nil) {
		r.setHandles(r.handles.Add(-1))
	}
	h.unsubscribe()

	quitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.quitTimeout)
	defer cancel()

	if err := h.session.Quit(quitCtx); err != nil {
		r.logger.Warn("Graceful quit failed, forcing close",
			zap.String("connection_id", h.config.ID),
			zap.Error(err),
		)
		if cerr := h.session.Close(); cerr != nil {
			return apperr.Upstream("registry.Release", cerr)
		}
	}

	r.logger.Info("Connection released", zap.String("connection_id", h.config.ID))
	return nil
}

// ReleaseAll releases every tracked connection. Individual failures are
// logged and returned joined; they never stop the sweep.
func (r *Registry) ReleaseAll(ctx context.Context) error {
	var errs []error

	r.entries.Range(func(key, _ any) bool {
		id := key.(string)
		if err := r.Release(ctx, id); err != nil {
			r.logger.Error("Failed to release connection",
				zap.String("connection_id", id),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
		return true
	})

	return errors.Join(errs...)
}

// Connections returns the status of every tracked connection, ordered by id.
func (r *Registry) Connections() []model.ConnectionStatus {
	statuses := []model.ConnectionStatus{}

	r.entries.Range(func(key, value any) bool {
		h := value.(*entry).handle.Load()
		if h == nil {
			return true
		}
		statuses = append(statuses, model.ConnectionStatus{
			ID:    h.config.ID,
			Name:  h.config.DisplayName(),
			Addr:  h.config.Addr(),
			State: h.State(),
		})
		return true
	})

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ID < statuses[j].ID
	})

	return statuses
}

// Len returns the number of tracked handles.
func (r *Registry) Len() int {
	return int(r.handles.Load())
}

func (r *Registry) setHandles(n int64) {
	r.metrics.SetRegistryHandles(int(n))
}
