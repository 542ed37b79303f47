package risk

import (
	"sync"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/repository"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

type BreakerConfig struct {
	MaxDrawdown float64 // fraction of peak, e.g. 0.1
	MaxLosses   int
	// Advisory keeps tracking state but never reports trading as inactive.
	Advisory bool
}

// BreakerState is a point-in-time view of the breaker.
type BreakerState struct {
	Peak       float64 `json:"peak"`
	LossStreak int     `json:"loss_streak"`
	Drawdown   float64 `json:"drawdown"`
	Suspended  bool    `json:"suspended"`
	Advisory   bool    `json:"advisory"`
}

type BreakerOption func(*Breaker)

func WithBreakerLogger(l *applogger.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithBreakerMetrics(m repository.Metrics) BreakerOption {
	return func(b *Breaker) {
		if m != nil {
			b.metrics = m
		}
	}
}

// Breaker suspends trading on a loss streak or drawdown breach and clears
// only when the balance sets a new peak.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	peak      float64
	losses    int
	drawdown  float64
	suspended bool
	logger    *applogger.Logger
	metrics   repository.Metrics
}

func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		cfg:     cfg,
		logger:  applogger.NewNop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Update folds in one trade and reports whether trading may continue.
func (b *Breaker) Update(balance float64, outcome models.Outcome) (active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if balance > b.peak {
		b.peak = balance
		if b.suspended {
			b.logger.Info("new equity peak, trading resumed", applogger.Float64("peak", balance))
		}
		b.suspended = false
	}

	if outcome == models.OutcomeLoss {
		b.losses++
	} else {
		b.losses = 0
	}

	b.drawdown = 0
	if b.peak > 0 {
		b.drawdown = (b.peak - balance) / b.peak
	}

	if !b.suspended && (b.losses >= b.cfg.MaxLosses || b.drawdown >= b.cfg.MaxDrawdown) {
		b.suspended = true
		b.logger.Warn("circuit breaker tripped",
			applogger.Int("loss_streak", b.losses),
			applogger.Float64("drawdown", b.drawdown),
			applogger.Float64("peak", b.peak),
			applogger.Bool("advisory", b.cfg.Advisory),
		)
	}

	b.metrics.RecordBalance(balance)
	b.metrics.RecordSuspended(b.suspended)
	return !b.inactive()
}

// Observe folds in a balance read outside a trade. A new peak clears the
// suspension; the loss streak is left alone and nothing trips here.
func (b *Breaker) Observe(balance float64) (active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if balance > b.peak {
		b.peak = balance
		if b.suspended {
			b.logger.Info("new equity peak, trading resumed", applogger.Float64("peak", balance))
		}
		b.suspended = false
	}
	if b.peak > 0 {
		b.drawdown = (b.peak - balance) / b.peak
	}
	b.metrics.RecordBalance(balance)
	b.metrics.RecordSuspended(b.suspended)
	return !b.inactive()
}

func (b *Breaker) inactive() bool {
	return b.suspended && !b.cfg.Advisory
}

// Suspended reports whether trading is currently vetoed. In advisory mode
// this is always false; State still exposes the tracked flag.
func (b *Breaker) Suspended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inactive()
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		Peak:       b.peak,
		LossStreak: b.losses,
		Drawdown:   b.drawdown,
		Suspended:  b.suspended,
		Advisory:   b.cfg.Advisory,
	}
}
