package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/middleware"
	"AnimaRex/internal/service/broker"
	"AnimaRex/internal/service/session"
	"AnimaRex/internal/services/ensemble"
	"AnimaRex/internal/services/risk"
	"AnimaRex/internal/services/rl"
)

var testStrategies = []string{"five_flip", "melhor_de_3"}

type harness struct {
	orch    *Orchestrator
	paper   *broker.Paper
	bus     *middleware.SignalBus
	log     *recordingLog
	pub     *recordingPublisher
	metrics *countingMetrics
	sup     *risk.Supervisor
	brk     *risk.Breaker
	gate    *rl.Gate
}

func newHarness(t *testing.T, winChance, threshold float64) *harness {
	t.Helper()
	paper := broker.NewPaper(broker.PaperConfig{Balance: 100, Payout: 0.8, WinChance: winChance, Seed: 3})
	require.NoError(t, paper.Connect(context.Background()))

	store := newMemStore()
	sup, err := risk.NewSupervisor(risk.SupervisorConfig{Ladder: []float64{1, 2, 4}, Window: 20, MinWinRate: 0.5}, store)
	require.NoError(t, err)

	cfg := rl.DefaultConfig()
	cfg.Epsilon, cfg.EpsilonMin, cfg.Seed = 0, 0, 1
	gate := rl.New(cfg, store)

	h := &harness{
		paper:   paper,
		bus:     middleware.NewSignalBus(),
		log:     &recordingLog{},
		pub:     &recordingPublisher{},
		metrics: newCountingMetrics(),
		sup:     sup,
		brk:     risk.NewBreaker(risk.BreakerConfig{MaxDrawdown: 0.9, MaxLosses: 2}),
		gate:    gate,
	}
	h.orch = NewOrchestrator(OrchestratorConfig{
		ReceiveTimeout:  10 * time.Millisecond,
		RewardThreshold: threshold,
		Duration:        1,
		History:         5,
	}, OrchestratorDeps{
		Bus:        h.bus,
		Cell:       session.NewCell(paper, nil),
		Aggregator: ensemble.NewAggregator(testStrategies),
		Gate:       gate,
		Supervisor: sup,
		Breaker:    h.brk,
		Outcomes:   h.log,
		Publisher:  h.pub,
		Metrics:    h.metrics,
	})
	return h
}

func signal(t *testing.T, strategy, dir string) models.Signal {
	t.Helper()
	return marketSignal(t, "EURUSD", strategy, dir)
}

func marketSignal(t *testing.T, market, strategy, dir string) models.Signal {
	t.Helper()
	s, err := models.NewSignal(market, dir, strategy, time.Time{})
	require.NoError(t, err)
	return s
}

func TestOrchestrator_ExecutesWhenRewardBelowThreshold(t *testing.T) {
	h := newHarness(t, 1, 10)

	require.NoError(t, h.orch.Process(context.Background(), signal(t, "five_flip", "PUT")))

	require.Len(t, h.log.trades, 1)
	tr := h.log.trades[0]
	assert.Equal(t, models.DirectionPut, tr.Direction)
	assert.Equal(t, models.OutcomeWin, tr.Result)
	assert.Equal(t, 1.0, tr.Stake)
	assert.Equal(t, 0, tr.Level)
	assert.InDelta(t, 100.8, tr.BalanceAfter, 1e-9)

	require.Len(t, h.log.rl, 1)
	assert.True(t, h.log.rl[0].Executed)
	assert.Equal(t, int64(0), h.log.rl[0].Step)

	require.Len(t, h.log.signals, 1)
	assert.Equal(t, models.OutcomeWin, h.log.signals[0].Result)

	require.Len(t, h.pub.events, 1)
	assert.True(t, h.pub.events[0].Executed)
	require.NotNil(t, h.pub.events[0].Trade)
	assert.Equal(t, 100.8, h.brk.State().Peak)
}

func TestOrchestrator_GateRejectSkipsTrade(t *testing.T) {
	h := newHarness(t, 1, -10)

	require.NoError(t, h.orch.Process(context.Background(), signal(t, "five_flip", "CALL")))

	assert.Empty(t, h.log.trades)
	require.Len(t, h.log.rl, 1)
	assert.False(t, h.log.rl[0].Executed)
	assert.Equal(t, int(rl.ActionReject), h.log.rl[0].Action)
	assert.Equal(t, 100.0, h.log.rl[0].Balance)
	require.Len(t, h.pub.events, 1)
	assert.False(t, h.pub.events[0].Executed)
}

func TestOrchestrator_LossesClimbLadderAndTripBreaker(t *testing.T) {
	h := newHarness(t, 0, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.orch.Process(ctx, signal(t, "melhor_de_3", "CALL")))
	}

	require.Len(t, h.log.trades, 2, "third trade is vetoed")
	assert.Equal(t, 1.0, h.log.trades[0].Stake)
	assert.Equal(t, 2.0, h.log.trades[1].Stake)
	assert.Equal(t, 1, h.log.trades[1].Level)
	assert.True(t, h.brk.Suspended())
	assert.Equal(t, 2, h.sup.Level())
	assert.Len(t, h.log.rl, 3)
}

func TestOrchestrator_BreakerResumesOnNewPeak(t *testing.T) {
	h := newHarness(t, 0, 10)
	h.brk = risk.NewBreaker(risk.BreakerConfig{MaxDrawdown: 0.5, MaxLosses: 4})
	h.orch.Breaker = h.brk
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.orch.Process(ctx, signal(t, "five_flip", "CALL")))
		assert.Equal(t, i >= 3, h.brk.Suspended(), "after signal %d", i+1)
	}
	require.Len(t, h.log.trades, 4, "fifth signal is vetoed")
	assert.Equal(t, 99.0, h.brk.State().Peak)

	// still vetoed while the balance stays below the old peak
	require.NoError(t, h.orch.Process(ctx, signal(t, "five_flip", "CALL")))
	assert.Len(t, h.log.trades, 4)

	h.paper.Deposit(1000 - 89)
	require.NoError(t, h.orch.Process(ctx, signal(t, "five_flip", "CALL")))
	require.Len(t, h.log.trades, 5)
	assert.Equal(t, 1000.0, h.log.trades[4].BalanceBefore)
	assert.Equal(t, 1000.0, h.brk.State().Peak)
}

func TestOrchestrator_VoteUsesOnlyTheSignalsMarket(t *testing.T) {
	h := newHarness(t, 1, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.orch.Process(ctx, marketSignal(t, "GBPUSD", "five_flip", "CALL")))
	}
	require.NoError(t, h.orch.Process(ctx, marketSignal(t, "EURUSD", "melhor_de_3", "PUT")))

	require.Len(t, h.log.trades, 6)
	last := h.log.trades[5]
	assert.Equal(t, "EURUSD", last.Market)
	assert.Equal(t, models.DirectionPut, last.Direction)

	// the next GBPUSD vote still sees its own history
	require.NoError(t, h.orch.Process(ctx, marketSignal(t, "GBPUSD", "melhor_de_3", "PUT")))
	require.Len(t, h.log.trades, 7)
	assert.Equal(t, models.DirectionCall, h.log.trades[6].Direction)
}

func TestOrchestrator_UnknownStrategyIsNeutral(t *testing.T) {
	h := newHarness(t, 1, 10)

	require.NoError(t, h.orch.Process(context.Background(), signal(t, "manual", "CALL")))

	assert.Empty(t, h.log.trades)
	require.Len(t, h.pub.events, 1)
	assert.Equal(t, models.DirectionNone, h.pub.events[0].Decision.Direction)
	assert.Equal(t, []float64{0.5, 0.5}, h.pub.events[0].Decision.Weights)
}

func TestOrchestrator_BadExplicitWeightsAreCounted(t *testing.T) {
	h := newHarness(t, 1, 10)
	h.orch.SetWeights([]float64{1, 2, 3})

	err := h.orch.Process(context.Background(), signal(t, "five_flip", "CALL"))
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, 1, h.metrics.errorCount("ensemble"))
	require.Len(t, h.log.errs, 1)
	assert.Equal(t, "ensemble", h.log.errs[0].Component)

	h.orch.SetWeights(nil)
	assert.NoError(t, h.orch.Process(context.Background(), signal(t, "five_flip", "CALL")))
}

func TestOrchestrator_ExecutionFailureDoesNotFeedBack(t *testing.T) {
	h := newHarness(t, 1, 10)
	h.paper.FailNext(1)

	err := h.orch.Process(context.Background(), signal(t, "five_flip", "CALL"))
	assert.True(t, models.IsConnectivity(err))
	assert.Equal(t, 1, h.metrics.errorCount("execution"))
	assert.Empty(t, h.log.trades)
	assert.Equal(t, 0.0, h.brk.State().Peak)
}

func TestOrchestrator_HistoryIsBounded(t *testing.T) {
	h := newHarness(t, 1, 10)
	for i := 0; i < 8; i++ {
		require.NoError(t, h.orch.Process(context.Background(), signal(t, "five_flip", "CALL")))
	}
	assert.Len(t, h.orch.batch(models.SignalOutcome{}), 6)
}

func TestOrchestrator_RunSurvivesPanicsAndStops(t *testing.T) {
	h := newHarness(t, 1, -10)
	h.log.panicRL = true
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.orch.Run(ctx)
		close(done)
	}()

	h.bus.Publish(ctx, signal(t, "five_flip", "CALL"))
	h.bus.Publish(ctx, signal(t, "five_flip", "PUT"))
	require.Eventually(t, func() bool { return h.metrics.errorCount("core") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestOrchestrator_Status(t *testing.T) {
	h := newHarness(t, 1, 10)
	h.orch.SetWeights([]float64{3, 1})
	require.NoError(t, h.orch.Process(context.Background(), signal(t, "five_flip", "CALL")))

	st := h.orch.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, 0, st.LadderLevel)
	assert.Equal(t, 1.0, st.Stake)
	assert.Equal(t, int64(1), st.Steps)
	assert.Equal(t, 3.0, st.Weights["five_flip"])
}
