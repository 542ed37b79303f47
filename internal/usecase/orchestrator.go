package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/middleware"
	"AnimaRex/internal/service/session"
	"AnimaRex/internal/services/ensemble"
	"AnimaRex/internal/services/risk"
	"AnimaRex/internal/services/rl"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

var errNoResult = errors.New("trade result not available")

type OrchestratorConfig struct {
	ReceiveTimeout  time.Duration
	RewardThreshold float64
	// Duration is the expiry passed to the broker, in minutes.
	Duration      int
	ResultTimeout time.Duration
	// History is how many resolved outcomes of the same market feed each
	// aggregation.
	History int
}

type OrchestratorDeps struct {
	Bus        *middleware.SignalBus
	Cell       *session.Cell
	Aggregator *ensemble.Aggregator
	Gate       *rl.Gate
	Supervisor *risk.Supervisor
	Breaker    *risk.Breaker
	Outcomes   domrepo.OutcomeLog
	Publisher  domrepo.EventPublisher
	Metrics    domrepo.Metrics
	Logger     *applogger.Logger
}

// Orchestrator owns the consume, aggregate, gate, size and execute loop.
type Orchestrator struct {
	cfg OrchestratorConfig
	OrchestratorDeps

	weightsMu sync.RWMutex
	weights   []float64

	histMu  sync.Mutex
	history map[string][]models.SignalOutcome

	step atomic.Int64
	now  func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps) *Orchestrator {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = time.Second
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 1
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = applogger.NewNop()
	}
	deps.Logger = deps.Logger.Named("orchestrator")
	return &Orchestrator{
		cfg:              cfg,
		OrchestratorDeps: deps,
		history:          make(map[string][]models.SignalOutcome),
		now:              time.Now,
	}
}

// SetWeights installs explicit ensemble weights. nil returns to payoff softmax.
func (o *Orchestrator) SetWeights(w []float64) {
	o.weightsMu.Lock()
	o.weights = append([]float64(nil), w...)
	o.weightsMu.Unlock()
}

func (o *Orchestrator) explicitWeights() []float64 {
	o.weightsMu.RLock()
	defer o.weightsMu.RUnlock()
	return o.weights
}

// Run consumes signals until ctx is cancelled. A failed iteration is counted
// and logged and never ends the loop.
func (o *Orchestrator) Run(ctx context.Context) {
	o.Logger.Info("orchestrator started")
	defer o.Logger.Info("orchestrator stopped")
	for ctx.Err() == nil {
		o.Metrics.RecordHeartbeat("orchestrator")
		sig, ok := o.Bus.Receive(ctx, o.cfg.ReceiveTimeout)
		if !ok {
			continue
		}
		if err := o.safeProcess(ctx, sig); err != nil && ctx.Err() == nil {
			o.Logger.Error("iteration failed",
				applogger.String("market", sig.Market),
				applogger.String("strategy", sig.Strategy),
				applogger.Error(err),
			)
		}
	}
}

func (o *Orchestrator) safeProcess(ctx context.Context, sig models.Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("orchestrator", r)
			o.fail(ctx, "core", err)
		}
	}()
	return o.Process(ctx, sig)
}

// Process runs one signal through the pipeline.
func (o *Orchestrator) Process(ctx context.Context, sig models.Signal) error {
	start := time.Now()
	step := o.step.Add(1) - 1
	defer func() { o.Metrics.RecordLatency("process_signal", time.Since(start).Seconds()) }()

	incoming := models.SignalOutcome{Signal: sig, Result: models.OutcomeWin}
	decision, err := o.Aggregator.Aggregate(o.batch(incoming), o.explicitWeights())
	if err != nil {
		o.fail(ctx, "ensemble", err)
		return fmt.Errorf("aggregate: %w", err)
	}

	o.Gate.SetEnsemble(decision)
	obs := o.Gate.Observation()
	action := o.Gate.SelectAction(obs)
	act := o.Gate.RecentRewardAvg() < o.cfg.RewardThreshold || action == rl.ActionAccept

	metric := models.RLMetric{
		Timestamp:      o.now().UTC(),
		Step:           step,
		Action:         int(action),
		EnsembleSignal: decision.Direction,
		Weights:        decision.WeightMap(),
		Epsilon:        o.Gate.Epsilon(),
	}
	event := models.DecisionEvent{Signal: sig, Decision: decision, Action: int(action)}

	switch {
	case !act:
	case decision.Direction == models.DirectionNone:
		o.Logger.Debug("neutral ensemble, nothing to trade", applogger.String("market", sig.Market))
	case o.Breaker.Suspended() && !o.resumeOnPeak(ctx):
		o.Logger.Info("trade vetoed by circuit breaker",
			applogger.String("market", sig.Market),
			applogger.Float64("drawdown", o.Breaker.State().Drawdown),
		)
	default:
		trade, reward, err := o.execute(ctx, sig, decision.Direction, obs, action)
		if err != nil {
			o.fail(ctx, "execution", err)
			o.publish(ctx, event)
			return err
		}
		metric.Executed = true
		metric.Reward = reward
		metric.Balance = trade.BalanceAfter
		event.Executed = true
		event.Trade = &trade
	}

	if !metric.Executed {
		metric.Balance = o.balance(ctx)
	}
	if err := o.Outcomes.RecordRLMetric(ctx, metric); err != nil {
		o.fail(ctx, "db", err)
	}
	o.publish(ctx, event)
	return nil
}

// execute places the trade and feeds the realized outcome back into the
// supervisor, the breaker and the gate.
func (o *Orchestrator) execute(ctx context.Context, sig models.Signal, dir models.Direction, obs []float64, action rl.Action) (models.TradeRecord, float64, error) {
	b, err := o.Cell.Get()
	if err != nil {
		return models.TradeRecord{}, 0, models.NewConnectivityError("execute", err)
	}
	stake := o.Supervisor.CurrentStake()
	level := o.Supervisor.Level()

	before, err := b.Balance(ctx)
	if err != nil {
		return models.TradeRecord{}, 0, fmt.Errorf("balance: %w", err)
	}
	id, err := b.PlaceTrade(ctx, sig.Market, dir, stake, o.cfg.Duration)
	if err != nil {
		return models.TradeRecord{}, 0, fmt.Errorf("place trade: %w", err)
	}
	o.Logger.Info("trade placed",
		applogger.String("id", id),
		applogger.String("market", sig.Market),
		applogger.String("direction", string(dir)),
		applogger.Float64("stake", stake),
		applogger.Int("level", level),
	)

	payoff, ok, err := b.AwaitResult(ctx, id, o.cfg.ResultTimeout)
	if err != nil {
		return models.TradeRecord{}, 0, fmt.Errorf("await result %s: %w", id, err)
	}
	if !ok {
		return models.TradeRecord{}, 0, fmt.Errorf("trade %s: %w", id, errNoResult)
	}

	outcome := models.OutcomeLoss
	if payoff > 0 {
		outcome = models.OutcomeWin
	}
	after, err := b.Balance(ctx)
	if err != nil {
		after = before + payoff
	}
	o.Metrics.RecordTrade(string(outcome))

	if err := o.Supervisor.Register(ctx, outcome); err != nil {
		o.fail(ctx, "persistence", err)
	}
	o.Breaker.Update(after, outcome)
	res, err := o.Gate.Step(ctx, obs, action, outcome, after)
	if err != nil {
		o.fail(ctx, "persistence", err)
	}

	trade := models.TradeRecord{
		ID:            id,
		Timestamp:     o.now().UTC(),
		Market:        sig.Market,
		Strategy:      sig.Strategy,
		Direction:     dir,
		Stake:         stake,
		Level:         level,
		Duration:      o.cfg.Duration,
		Result:        outcome,
		Payoff:        payoff,
		BalanceBefore: before,
		BalanceAfter:  after,
	}
	if err := o.Outcomes.RecordTrade(ctx, trade); err != nil {
		o.fail(ctx, "db", err)
	}
	resolved := models.SignalOutcome{Signal: sig, Result: outcome}
	if err := o.Outcomes.RecordSignal(ctx, resolved); err != nil {
		o.fail(ctx, "db", err)
	}
	o.remember(resolved)

	o.Logger.Info("trade resolved",
		applogger.String("id", id),
		applogger.String("result", string(outcome)),
		applogger.Float64("payoff", payoff),
		applogger.Float64("balance", after),
		applogger.Float64("reward", res.Reward),
	)
	return trade, res.Reward, nil
}

// batch is the incoming signal plus the resolved outcomes of its market.
func (o *Orchestrator) batch(incoming models.SignalOutcome) []models.SignalOutcome {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	past := o.history[incoming.Signal.Market]
	out := make([]models.SignalOutcome, 0, len(past)+1)
	out = append(out, past...)
	return append(out, incoming)
}

func (o *Orchestrator) remember(so models.SignalOutcome) {
	if o.cfg.History <= 0 {
		return
	}
	o.histMu.Lock()
	defer o.histMu.Unlock()
	h := append(o.history[so.Signal.Market], so)
	if len(h) > o.cfg.History {
		h = append([]models.SignalOutcome(nil), h[len(h)-o.cfg.History:]...)
	}
	o.history[so.Signal.Market] = h
}

// resumeOnPeak shows the breaker the current balance while it is vetoing,
// so a new equity peak reached outside the loop lifts the suspension.
func (o *Orchestrator) resumeOnPeak(ctx context.Context) bool {
	bal := o.balance(ctx)
	if bal <= 0 {
		return false
	}
	return o.Breaker.Observe(bal)
}

func (o *Orchestrator) balance(ctx context.Context) float64 {
	b, err := o.Cell.Get()
	if err != nil {
		return 0
	}
	bal, err := b.Balance(ctx)
	if err != nil {
		return 0
	}
	return bal
}

func (o *Orchestrator) publish(ctx context.Context, e models.DecisionEvent) {
	if o.Publisher == nil {
		return
	}
	if err := o.Publisher.PublishDecision(ctx, e); err != nil {
		o.fail(ctx, "publisher", err)
	}
}

// fail counts err under component and appends it to the outcome log.
func (o *Orchestrator) fail(ctx context.Context, component string, err error) {
	o.Metrics.RecordError(component)
	o.Logger.Warn("component error", applogger.String("component", component), applogger.Error(err))
	if component == "db" {
		return
	}
	rec := models.ErrorRecord{Timestamp: o.now().UTC(), Component: component, Message: err.Error()}
	if lerr := o.Outcomes.RecordError(ctx, rec); lerr != nil {
		o.Metrics.RecordError("db")
	}
}

// Status is a point-in-time view for the status API.
type Status struct {
	Connected   bool               `json:"connected"`
	LadderLevel int                `json:"ladder_level"`
	Stake       float64            `json:"stake"`
	WinRate     float64            `json:"win_rate"`
	Breaker     risk.BreakerState  `json:"breaker"`
	Epsilon     float64            `json:"epsilon"`
	RewardAvg   float64            `json:"recent_reward_avg"`
	Steps       int64              `json:"steps"`
	QueueDepth  int                `json:"queue_depth"`
	Weights     map[string]float64 `json:"explicit_weights,omitempty"`
}

func (o *Orchestrator) Status() Status {
	st := Status{
		Connected:   o.Cell.Connected(),
		LadderLevel: o.Supervisor.Level(),
		Stake:       o.Supervisor.CurrentStake(),
		WinRate:     o.Supervisor.WinRate(),
		Breaker:     o.Breaker.State(),
		Epsilon:     o.Gate.Epsilon(),
		RewardAvg:   o.Gate.RecentRewardAvg(),
		Steps:       o.step.Load(),
		QueueDepth:  o.Bus.Len(),
	}
	if w := o.explicitWeights(); w != nil {
		st.Weights = make(map[string]float64, len(w))
		for i, name := range o.Aggregator.Strategies() {
			if i < len(w) {
				st.Weights[name] = w[i]
			}
		}
	}
	return st
}
