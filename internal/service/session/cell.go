// Package session owns the single shared broker session.
package session

import (
	"context"
	"errors"
	"sync"

	"AnimaRex/internal/domain/repository"
	applogger "AnimaRex/pkg/logger"
)

// ErrNoSession is returned by Get before the first successful connect.
var ErrNoSession = errors.New("broker session not established")

// ReconnectFunc builds a fresh, connected session.
type ReconnectFunc func(ctx context.Context) (repository.Broker, error)

// Cell holds the current broker session. Readers may briefly see the previous
// session during a swap, never a half-built one. Every reconnection goes
// through one lock so concurrent callers cannot race to replace it.
type Cell struct {
	mu        sync.RWMutex
	current   repository.Broker
	reconnect sync.Mutex
	logger    *applogger.Logger
}

func NewCell(initial repository.Broker, logger *applogger.Logger) *Cell {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Cell{current: initial, logger: logger}
}

// Get returns the current session.
func (c *Cell) Get() (repository.Broker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, ErrNoSession
	}
	return c.current, nil
}

// Connected reports whether a session is installed.
func (c *Cell) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil
}

// Replace swaps in next and closes the previous session.
func (c *Cell) Replace(next repository.Broker) {
	c.mu.Lock()
	prev := c.current
	c.current = next
	c.mu.Unlock()

	if prev != nil && prev != next {
		if err := prev.Close(); err != nil {
			c.logger.Warn("close previous session", applogger.Error(err))
		}
	}
}

// Reconnect replaces stale with a session built by fn. If another caller
// already replaced stale while this one waited for the lock, it returns the
// newer session without reconnecting again. Passing a nil stale forces a
// reconnect.
func (c *Cell) Reconnect(ctx context.Context, stale repository.Broker, fn ReconnectFunc) (repository.Broker, error) {
	c.reconnect.Lock()
	defer c.reconnect.Unlock()

	c.mu.RLock()
	cur := c.current
	c.mu.RUnlock()
	if stale != nil && cur != nil && cur != stale {
		return cur, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	c.Replace(next)
	c.logger.Info("broker session replaced")
	return next, nil
}

// Close closes the current session, if any.
func (c *Cell) Close() error {
	c.mu.Lock()
	cur := c.current
	c.current = nil
	c.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Close()
}
