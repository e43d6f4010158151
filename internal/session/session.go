// Package session wraps a client connection to a single key-value store and
// exposes its lifecycle as a subscribable state stream.
package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/n3tuk/redis-console/internal/model"
)

// State is the lifecycle state of a session.
type State = model.ConnectionState

const (
	StateConnecting = model.StateConnecting
	StateReady      = model.StateReady
	StateError      = model.StateError
	StateClosed     = model.StateClosed
)

// Session is a live client session to one store.
type Session interface {
	// Client returns the underlying client, including Do for raw commands.
	Client() redis.UniversalClient

	// State returns the current lifecycle state.
	State() State

	// Subscribe registers fn to be called on every state transition.
	// The returned function removes the subscription.
	Subscribe(fn func(State)) (unsubscribe func())

	// Ping checks that the store answers.
	Ping(ctx context.Context) error

	// Quit asks the store to close the connection and then closes the session.
	Quit(ctx context.Context) error

	// Close terminates the session without talking to the store.
	Close() error
}

// Factory builds a session for the given connection configuration.
type Factory func(cfg model.ConnectionConfig) (Session, error)

// Options holds the transport and retry policy applied to every session.
type Options struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	// MaxRetries is the number of command retries; -1 disables retries.
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration

	// MaxReconnectAttempts is the number of consecutive failed dials after
	// which the session gives up and ends. Zero means never.
	MaxReconnectAttempts int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		DialTimeout:          10 * time.Second,
		ReadTimeout:          3 * time.Second,
		WriteTimeout:         3 * time.Second,
		PoolSize:             10,
		MaxRetries:           3,
		MinRetryBackoff:      50 * time.Millisecond,
		MaxRetryBackoff:      2 * time.Second,
		MaxReconnectAttempts: 20,
	}
}
