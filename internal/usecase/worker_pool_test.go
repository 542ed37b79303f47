package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/domain/service"
	"AnimaRex/internal/middleware"
	"AnimaRex/internal/services/strategies"
)

type fakeBars struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeBars) LatestBars(_ context.Context, market string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	bars := make([]models.Candle, n)
	for i := range bars {
		bars[i] = models.Candle{Symbol: market, Bucket: time.Unix(int64(i*60), 0), Open: 1, Close: 2}
	}
	return bars, nil
}

func (f *fakeBars) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func bind(t *testing.T, name string, fn service.StrategyFunc) strategies.Bound {
	t.Helper()
	r := strategies.NewRegistry()
	require.NoError(t, r.Register(name, fn))
	b, err := r.Bind(name, nil)
	require.NoError(t, err)
	return b
}

func alwaysCall(bars []models.Candle, p service.Params) (models.Signal, bool) {
	last := bars[len(bars)-1]
	s, err := models.NewSignal(p.String("market", last.Symbol), "CALL", "", last.Bucket)
	return s, err == nil
}

func startPool(t *testing.T, cfg WorkerConfig, bars domrepo.BarSource, bus *middleware.SignalBus, m *countingMetrics, bound ...strategies.Bound) (*WorkerPool, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(cfg, bars, bus, []string{"EURUSD", "GBPUSD"}, bound, m, nil)
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		p.Wait()
	})
	return p, cancel
}

func TestWorkerPool_PublishesStampedSignals(t *testing.T) {
	bus := middleware.NewSignalBus()
	m := newCountingMetrics()
	p, cancel := startPool(t, WorkerConfig{Interval: 5 * time.Millisecond, Window: 3}, &fakeBars{}, bus, m,
		bind(t, "always_call", alwaysCall))
	assert.Equal(t, 2, p.Size())

	require.Eventually(t, func() bool { return m.signalCount() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()
	p.Wait()

	markets := map[string]bool{}
	for bus.Len() > 0 {
		s, ok := bus.Receive(context.Background(), time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, "always_call", s.Strategy)
		assert.Equal(t, models.DirectionCall, s.Direction)
		markets[s.Market] = true
	}
	assert.True(t, markets["EURUSD"])
	assert.True(t, markets["GBPUSD"])
}

func TestWorkerPool_ConnectivityErrorsPause(t *testing.T) {
	bars := &fakeBars{err: models.NewConnectivityError("bars", errors.New("socket closed"))}
	m := newCountingMetrics()
	cfg := WorkerConfig{Interval: time.Millisecond, ErrorThreshold: 3, PauseDuration: time.Hour}
	p := NewWorkerPool(cfg, bars, middleware.NewSignalBus(), []string{"EURUSD"}, []strategies.Bound{bind(t, "always_call", alwaysCall)}, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.Eventually(t, func() bool { return bars.count() == 3 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, bars.count(), "worker sleeps through the pause")
	assert.Equal(t, 3, m.errorCount("worker"))

	cancel()
	done := make(chan struct{})
	go func() { p.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("paused worker ignored cancellation")
	}
}

func TestWorkerPool_OtherErrorsDoNotPause(t *testing.T) {
	bars := &fakeBars{err: errors.New("bad row")}
	m := newCountingMetrics()
	startPool(t, WorkerConfig{Interval: time.Millisecond, ErrorThreshold: 2, PauseDuration: time.Hour}, bars, middleware.NewSignalBus(), m,
		bind(t, "always_call", alwaysCall))

	require.Eventually(t, func() bool { return bars.count() > 10 }, time.Second, time.Millisecond)
}

func TestWorkerPool_NoDataIsQuiet(t *testing.T) {
	bars := &fakeBars{err: models.ErrNoData}
	m := newCountingMetrics()
	startPool(t, WorkerConfig{Interval: time.Millisecond, ErrorThreshold: 1, PauseDuration: time.Hour}, bars, middleware.NewSignalBus(), m,
		bind(t, "always_call", alwaysCall))

	require.Eventually(t, func() bool { return bars.count() > 5 }, time.Second, time.Millisecond)
	assert.Zero(t, m.errorCount("worker"))
}

func TestWorkerPool_StrategyPanicIsContained(t *testing.T) {
	m := newCountingMetrics()
	boom := func([]models.Candle, service.Params) (models.Signal, bool) { panic("index out of range") }
	startPool(t, WorkerConfig{Interval: time.Millisecond}, &fakeBars{}, middleware.NewSignalBus(), m,
		bind(t, "boom", boom))

	require.Eventually(t, func() bool { return m.errorCount("worker") >= 4 }, time.Second, time.Millisecond)
}

func TestWorkerPool_Interval(t *testing.T) {
	p := NewWorkerPool(WorkerConfig{Interval: time.Second, Jitter: 0.5}, &fakeBars{}, middleware.NewSignalBus(), nil, nil, nil, nil)
	rng := newTestRand()
	for i := 0; i < 20; i++ {
		d := p.interval(rng)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}
