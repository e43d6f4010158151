package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
)

// RedisSession is a Session backed by a go-redis client.
type RedisSession struct {
	cfg     model.ConnectionConfig
	client  *redis.Client
	logger  *zap.Logger
	metrics *metrics.Metrics

	maxReconnectAttempts int

	mu       sync.Mutex
	state    State
	failures int
	subs     map[uint64]func(State)
	nextSub  uint64

	closeOnce sync.Once
	closeErr  error
}

// NewFactory returns a Factory building RedisSessions with the given options.
func NewFactory(opts Options, logger *zap.Logger, m *metrics.Metrics) Factory {
	return func(cfg model.ConnectionConfig) (Session, error) {
		return NewRedisSession(cfg, opts, logger, m)
	}
}

// NewRedisSession creates a session for cfg. The client connects lazily, so
// the session starts in the connecting state and becomes ready on the first
// successful dial.
func NewRedisSession(cfg model.ConnectionConfig, opts Options, logger *zap.Logger, m *metrics.Metrics) (*RedisSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ropts := &redis.Options{
		Addr:            cfg.Addr(),
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		Protocol:        2,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
		WriteTimeout:    opts.WriteTimeout,
		PoolSize:        opts.PoolSize,
		MaxRetries:      opts.MaxRetries,
		MinRetryBackoff: opts.MinRetryBackoff,
		MaxRetryBackoff: opts.MaxRetryBackoff,
	}

	if cfg.TLS {
		ropts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		}
	}

	s := &RedisSession{
		cfg:                  cfg,
		client:               redis.NewClient(ropts),
		logger:               logger.With(zap.String("connection_id", cfg.ID), zap.String("addr", cfg.Addr())),
		metrics:              m,
		maxReconnectAttempts: opts.MaxReconnectAttempts,
		state:                StateConnecting,
		subs:                 make(map[uint64]func(State)),
	}
	s.client.AddHook(lifecycleHook{s: s})
	m.RecordSessionTransition(string(StateConnecting))

	return s, nil
}

// Client implements Session.
func (s *RedisSession) Client() redis.UniversalClient {
	return s.client
}

// State implements Session.
func (s *RedisSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe implements Session.
func (s *RedisSession) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Ping implements Session.
func (s *RedisSession) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping %s: %w", s.cfg.Addr(), err)
	}
	return nil
}

// Quit implements Session. The protocol-level QUIT is only attempted while
// the session is ready; the client is closed in every case.
func (s *RedisSession) Quit(ctx context.Context) error {
	var quitErr error
	if s.State() == StateReady {
		quitErr = s.client.Do(ctx, "quit").Err()
		// The server closes the connection after replying, which some
		// transports report as EOF.
		if errors.Is(quitErr, net.ErrClosed) || errors.Is(quitErr, io.EOF) {
			quitErr = nil
		}
	}

	closeErr := s.Close()
	if quitErr != nil {
		return fmt.Errorf("failed to quit %s: %w", s.cfg.Addr(), quitErr)
	}
	return closeErr
}

// Close implements Session. It is safe to call more than once.
func (s *RedisSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
		s.setState(StateClosed)
	})
	return s.closeErr
}

// setState records a transition and notifies subscribers outside the lock.
// Closed is terminal.
func (s *RedisSession) setState(next State) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("Session state changed", zap.String("state", string(next)))
	s.metrics.RecordSessionTransition(string(next))

	for _, fn := range subs {
		fn(next)
	}
}

func (s *RedisSession) dialSucceeded() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
	s.setState(StateReady)
}

func (s *RedisSession) dialFailed(err error) {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	s.logger.Warn("Failed to connect",
		zap.Int("attempt", failures),
		zap.Error(err),
	)

	if s.maxReconnectAttempts > 0 && failures >= s.maxReconnectAttempts {
		s.logger.Error("Giving up after repeated connection failures",
			zap.Int("attempts", failures),
		)
		// The dial hook runs inside the client's pool, so close from outside it.
		go func() {
			_ = s.Close()
		}()
		return
	}

	s.setState(StateError)
}

// lifecycleHook observes dials to drive the session state.
type lifecycleHook struct {
	s *RedisSession
}

func (h lifecycleHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		switch {
		case err == nil:
			h.s.dialSucceeded()
		case errors.Is(err, context.Canceled):
			// The caller gave up; the store may still be fine.
		default:
			h.s.dialFailed(err)
		}
		return conn, err
	}
}

func (h lifecycleHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h lifecycleHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}
