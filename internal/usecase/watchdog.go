package usecase

import (
	"context"
	"time"

	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/service/session"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

type probeFunc func(ctx context.Context, b domrepo.Broker) error

// Watchdog probes the shared session on a fixed interval and drives a
// reconnection through the cell when the probe fails.
type Watchdog struct {
	name      string
	cell      *session.Cell
	reconnect session.ReconnectFunc
	interval  time.Duration
	probe     probeFunc
	metrics   domrepo.Metrics
	logger    *applogger.Logger
}

// NewWatchdog probes liveness with a balance query.
func NewWatchdog(cell *session.Cell, fn session.ReconnectFunc, interval time.Duration, m domrepo.Metrics, l *applogger.Logger) *Watchdog {
	return newWatchdog("watchdog", cell, fn, interval, func(ctx context.Context, b domrepo.Broker) error {
		_, err := b.Balance(ctx)
		return err
	}, m, l)
}

// NewKeepAlive pings the session. It shares the cell's reconnect lock with
// the watchdog.
func NewKeepAlive(cell *session.Cell, fn session.ReconnectFunc, interval time.Duration, m domrepo.Metrics, l *applogger.Logger) *Watchdog {
	return newWatchdog("keepalive", cell, fn, interval, func(ctx context.Context, b domrepo.Broker) error {
		return b.Ping(ctx)
	}, m, l)
}

func newWatchdog(name string, cell *session.Cell, fn session.ReconnectFunc, interval time.Duration, probe probeFunc, m domrepo.Metrics, l *applogger.Logger) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Watchdog{
		name:      name,
		cell:      cell,
		reconnect: fn,
		interval:  interval,
		probe:     probe,
		metrics:   m,
		logger:    l.Named(name),
	}
}

func (w *Watchdog) Run(ctx context.Context) {
	w.logger.Info("started", applogger.Duration("interval", w.interval))
	defer w.logger.Info("stopped")
	for ctx.Err() == nil {
		w.metrics.RecordHeartbeat(w.name)
		w.Check(ctx)
		sleep(ctx, w.interval)
	}
}

// Check runs one probe and reconnects on failure. It reports whether the
// session is healthy afterwards.
func (w *Watchdog) Check(ctx context.Context) bool {
	b, err := w.cell.Get()
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, w.interval)
		err = w.probe(pctx, b)
		cancel()
		if err == nil {
			return true
		}
	}
	if ctx.Err() != nil {
		return false
	}

	w.metrics.RecordError(w.name)
	w.logger.Warn("session probe failed, reconnecting", applogger.Error(err))
	if _, rerr := w.cell.Reconnect(ctx, b, w.reconnect); rerr != nil {
		w.metrics.RecordError("reconnect")
		w.logger.Error("reconnect failed", applogger.Error(rerr))
		return false
	}
	w.logger.Info("session reconnected")
	return true
}
