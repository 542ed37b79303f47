package middleware

import (
	"context"
	"time"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/pkg/metrics"
)

// SignalBus is the hand-off queue between strategy workers and the orchestrator.
// Many producers, one logical consumer. FIFO per producer.
type SignalBus struct {
	ch             chan models.Signal
	publishTimeout time.Duration
	metrics        domrepo.Metrics
}

type BusOption func(*SignalBus)

// WithCapacity sets the buffer size.
func WithCapacity(n int) BusOption {
	return func(b *SignalBus) {
		if n > 0 {
			b.ch = make(chan models.Signal, n)
		}
	}
}

// WithPublishTimeout bounds how long Publish waits on a full buffer. Zero drops immediately.
func WithPublishTimeout(d time.Duration) BusOption {
	return func(b *SignalBus) {
		if d >= 0 {
			b.publishTimeout = d
		}
	}
}

// WithBusMetrics attaches a metrics sink for drops and queue depth.
func WithBusMetrics(m domrepo.Metrics) BusOption {
	return func(b *SignalBus) {
		if m != nil {
			b.metrics = m
		}
	}
}

func NewSignalBus(opts ...BusOption) *SignalBus {
	b := &SignalBus{
		ch:             make(chan models.Signal, 10000),
		publishTimeout: time.Second,
		metrics:        metrics.Nop{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues s. It waits at most the publish timeout on a full buffer,
// then drops the signal and reports false.
func (b *SignalBus) Publish(ctx context.Context, s models.Signal) bool {
	select {
	case b.ch <- s:
		return true
	default:
	}
	if b.publishTimeout == 0 {
		b.metrics.RecordSignalDropped()
		return false
	}

	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.ch <- s:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	b.metrics.RecordSignalDropped()
	return false
}

// Receive waits up to timeout for the next signal. ok is false on timeout or cancellation.
func (b *SignalBus) Receive(ctx context.Context, timeout time.Duration) (models.Signal, bool) {
	select {
	case s := <-b.ch:
		return s, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-b.ch:
		return s, true
	case <-timer.C:
		return models.Signal{}, false
	case <-ctx.Done():
		return models.Signal{}, false
	}
}

// Len reports the number of queued signals.
func (b *SignalBus) Len() int { return len(b.ch) }
