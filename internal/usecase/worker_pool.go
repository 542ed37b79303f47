package usecase

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/middleware"
	"AnimaRex/internal/services/strategies"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

type WorkerConfig struct {
	Interval       time.Duration
	ErrorThreshold int
	PauseDuration  time.Duration
	Window         int
	Timeframe      domrepo.Timeframe
	// Jitter is the fraction of Interval added at random to each sleep.
	Jitter float64
}

// WorkerPool runs one polling loop per (market, strategy) pair.
type WorkerPool struct {
	cfg        WorkerConfig
	bars       domrepo.BarSource
	bus        *middleware.SignalBus
	markets    []string
	strategies []strategies.Bound
	metrics    domrepo.Metrics
	logger     *applogger.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
	wg      sync.WaitGroup
}

func NewWorkerPool(
	cfg WorkerConfig,
	bars domrepo.BarSource,
	bus *middleware.SignalBus,
	markets []string,
	bound []strategies.Bound,
	m domrepo.Metrics,
	l *applogger.Logger,
) *WorkerPool {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 100
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &WorkerPool{
		cfg:        cfg,
		bars:       bars,
		bus:        bus,
		markets:    markets,
		strategies: bound,
		metrics:    m,
		logger:     l.Named("workers"),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Start launches every worker. They exit when ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i, market := range p.markets {
		for j, s := range p.strategies {
			seed := int64(i*len(p.strategies) + j + 1)
			p.wg.Add(1)
			go p.run(ctx, market, s, rand.New(rand.NewSource(seed)))
			p.logger.Info("worker started",
				applogger.String("market", market),
				applogger.String("strategy", s.Name),
			)
		}
	}
}

// Wait blocks until all workers have returned.
func (p *WorkerPool) Wait() { p.wg.Wait() }

// Size is the number of workers Start launches.
func (p *WorkerPool) Size() int { return len(p.markets) * len(p.strategies) }

func (p *WorkerPool) run(ctx context.Context, market string, s strategies.Bound, rng *rand.Rand) {
	defer p.wg.Done()
	thread := "worker:" + market + ":" + s.Name
	errCount := 0
	for {
		if ctx.Err() != nil {
			p.logger.Info("worker stopped", applogger.String("market", market), applogger.String("strategy", s.Name))
			return
		}
		p.metrics.RecordHeartbeat(thread)

		err := p.safeTick(ctx, market, s)
		switch {
		case err == nil:
			errCount = 0
		case ctx.Err() != nil:
			continue
		case models.IsConnectivity(err):
			errCount++
			p.metrics.RecordError("worker")
			p.logger.Warn("worker connectivity error",
				applogger.String("market", market),
				applogger.String("strategy", s.Name),
				applogger.Int("consecutive", errCount),
				applogger.Error(err),
			)
			if errCount >= p.cfg.ErrorThreshold {
				p.logger.Warn("worker pausing",
					applogger.String("market", market),
					applogger.String("strategy", s.Name),
					applogger.Duration("pause", p.cfg.PauseDuration),
				)
				sleep(ctx, p.cfg.PauseDuration)
				errCount = 0
				continue
			}
		case errors.Is(err, models.ErrNoData):
			p.logger.Debug("no bars yet", applogger.String("market", market))
		default:
			p.metrics.RecordError("worker")
			p.logger.Error("worker tick failed",
				applogger.String("market", market),
				applogger.String("strategy", s.Name),
				applogger.Error(err),
			)
		}
		sleep(ctx, p.interval(rng))
	}
}

func (p *WorkerPool) interval(rng *rand.Rand) time.Duration {
	if p.cfg.Jitter <= 0 {
		return p.cfg.Interval
	}
	return p.cfg.Interval + time.Duration(rng.Float64()*p.cfg.Jitter*float64(p.cfg.Interval))
}

// safeTick turns a strategy panic into an error so one bad recognizer
// cannot take its worker down.
func (p *WorkerPool) safeTick(ctx context.Context, market string, s strategies.Bound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("strategy "+s.Name, r)
		}
	}()
	return p.tick(ctx, market, s)
}

func (p *WorkerPool) tick(ctx context.Context, market string, s strategies.Bound) error {
	bars, err := p.load(ctx, market)
	if err != nil {
		return err
	}
	sig, ok := s.Evaluate(market, bars)
	if !ok {
		return nil
	}
	if p.bus.Publish(ctx, sig) {
		p.metrics.RecordSignal(market, s.Name)
		p.logger.Debug("signal published",
			applogger.String("market", market),
			applogger.String("strategy", s.Name),
			applogger.String("direction", string(sig.Direction)),
		)
	}
	return nil
}

func (p *WorkerPool) load(ctx context.Context, market string) ([]models.Candle, error) {
	mu := p.marketLock(market)
	mu.Lock()
	defer mu.Unlock()
	start := time.Now()
	bars, err := p.bars.LatestBars(ctx, market, p.cfg.Window, p.cfg.Timeframe)
	p.metrics.RecordLatency("load_bars", time.Since(start).Seconds())
	return bars, err
}

func (p *WorkerPool) marketLock(market string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	mu, ok := p.locks[market]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[market] = mu
	}
	return mu
}
