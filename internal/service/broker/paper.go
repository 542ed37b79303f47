// Package broker holds the broker adapters: a simulated paper account and
// an HTTP bridge to an external trading gateway.
package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/repository"
)

type PaperConfig struct {
	Balance   float64
	Payout    float64 // profit fraction on a win
	WinChance float64
	Seed      int64
	// Settle is how long a trade stays open before it resolves.
	Settle time.Duration
	// PollInterval is how often AwaitResult checks for settlement.
	PollInterval time.Duration
}

type paperTrade struct {
	stake    float64
	win      bool
	settleAt time.Time
	settled  bool
	payoff   float64
}

// Paper simulates a binary-options account. It is safe for concurrent use.
type Paper struct {
	mu        sync.Mutex
	cfg       PaperConfig
	balance   float64
	rng       *rand.Rand
	trades    map[string]*paperTrade
	connected bool
	now       func() time.Time
	// failNext makes the next n calls fail with a connectivity error.
	failNext int
}

var _ repository.Broker = (*Paper)(nil)

func NewPaper(cfg PaperConfig) *Paper {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Paper{
		cfg:     cfg,
		balance: cfg.Balance,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		trades:  make(map[string]*paperTrade),
		now:     time.Now,
	}
}

// Deposit credits the simulated account, as a funding transfer would.
func (p *Paper) Deposit(amount float64) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	p.balance += amount
	p.mu.Unlock()
}

// FailNext makes the next n broker calls fail as if the session dropped.
func (p *Paper) FailNext(n int) {
	p.mu.Lock()
	p.failNext = n
	p.mu.Unlock()
}

func (p *Paper) check(op string) error {
	if p.failNext > 0 {
		p.failNext--
		return models.NewConnectivityError(op, fmt.Errorf("simulated session drop"))
	}
	if !p.connected {
		return models.NewConnectivityError(op, fmt.Errorf("not connected"))
	}
	return nil
}

func (p *Paper) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// FetchBars produces a deterministic random walk over the requested range.
func (p *Paper) FetchBars(ctx context.Context, market string, tf repository.Timeframe, since, until time.Time) ([]models.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("fetch_bars"); err != nil {
		return nil, err
	}
	step, err := repository.ParseTimeframe(string(tf))
	if err != nil {
		return nil, err
	}

	since = since.Truncate(step)
	var out []models.Candle
	price := 1.0
	for ts := since; !ts.After(until); ts = ts.Add(step) {
		open := price
		price = math.Max(0.0001, price*(1+(p.rng.Float64()-0.5)*0.002))
		out = append(out, models.Candle{
			Bucket: ts.UTC(),
			Symbol: market,
			Open:   open,
			High:   math.Max(open, price) * 1.0005,
			Low:    math.Min(open, price) * 0.9995,
			Close:  price,
			Volume: float64(p.rng.Intn(1000)),
		})
	}
	return out, nil
}

func (p *Paper) PlaceTrade(ctx context.Context, market string, direction models.Direction, stake float64, duration int) (string, error) {
	if direction != models.DirectionCall && direction != models.DirectionPut {
		return "", models.NewValidationError("direction", fmt.Sprintf("cannot trade %q", direction))
	}
	if stake <= 0 {
		return "", models.NewValidationError("stake", "must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("place_trade"); err != nil {
		return "", err
	}
	if stake > p.balance {
		return "", models.NewValidationError("stake", fmt.Sprintf("%.2f exceeds balance %.2f", stake, p.balance))
	}

	id := uuid.NewString()
	p.balance -= stake
	p.trades[id] = &paperTrade{
		stake:    stake,
		win:      p.rng.Float64() < p.cfg.WinChance,
		settleAt: p.now().Add(p.cfg.Settle),
	}
	return id, nil
}

// AwaitResult polls until the trade settles. A positive payoff is the net
// profit of a win; a loss returns the negative stake.
func (p *Paper) AwaitResult(ctx context.Context, tradeID string, timeout time.Duration) (float64, bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	tick := time.NewTicker(p.cfg.PollInterval)
	defer tick.Stop()

	for {
		payoff, done, err := p.poll(tradeID)
		if err != nil || done {
			return payoff, done, err
		}
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-deadline:
			return 0, false, nil
		case <-tick.C:
		}
	}
}

func (p *Paper) poll(id string) (float64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("await_result"); err != nil {
		return 0, false, err
	}
	t, ok := p.trades[id]
	if !ok {
		return 0, false, models.NewValidationError("trade_id", fmt.Sprintf("unknown trade %q", id))
	}
	if t.settled {
		return t.payoff, true, nil
	}
	if p.now().Before(t.settleAt) {
		return 0, false, nil
	}
	t.settled = true
	if t.win {
		t.payoff = t.stake * p.cfg.Payout
		p.balance += t.stake + t.payoff
	} else {
		t.payoff = -t.stake
	}
	return t.payoff, true, nil
}

func (p *Paper) Balance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("balance"); err != nil {
		return 0, err
	}
	return p.balance, nil
}

func (p *Paper) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.check("ping")
}

func (p *Paper) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}
