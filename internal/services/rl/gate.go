// Package rl holds the reinforcement gate: a tabular Q-learner that decides
// whether the pipeline acts on an aggregated signal.
package rl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/repository"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

type Config struct {
	LearningRate   float64
	Gamma          float64
	Epsilon        float64
	EpsilonDecay   float64
	EpsilonMin     float64
	Bins           []int // per observation dimension; missing entries use DefaultBins
	DefaultBins    int
	EpisodeLength  int
	RewardWindow   int
	InitialBalance float64
	Seed           int64 // 0 seeds from the clock
	LegacyDir      string
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		LearningRate:   0.1,
		Gamma:          0.99,
		Epsilon:        1.0,
		EpsilonDecay:   0.995,
		EpsilonMin:     0.1,
		DefaultBins:    10,
		EpisodeLength:  100,
		RewardWindow:   10,
		InitialBalance: 1000,
	}
}

type Option func(*Gate)

func WithLogger(l *applogger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(g *Gate) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithClock replaces the time source used for the hour-of-day feature.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// Gate owns the action-value table, the exploration rate and the episode
// environment. All methods are safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	q       map[string][]float64
	epsilon float64
	rng     *rand.Rand
	env     *Env
	rewards []float64
	store   repository.StateStore
	logger  *applogger.Logger
	metrics repository.Metrics
	now     func() time.Time
}

func New(cfg Config, store repository.StateStore, opts ...Option) *Gate {
	if cfg.DefaultBins <= 0 {
		cfg.DefaultBins = 10
	}
	if cfg.RewardWindow <= 0 {
		cfg.RewardWindow = 10
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Gate{
		cfg:     cfg,
		q:       make(map[string][]float64),
		epsilon: cfg.Epsilon,
		rng:     rand.New(rand.NewSource(seed)),
		store:   store,
		logger:  applogger.NewNop(),
		metrics: metrics.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.env = NewEnv(cfg.EpisodeLength, cfg.InitialBalance, g.now)
	return g
}

// Load restores persisted state. A matching current-version record is used
// directly; otherwise legacy files are migrated once. Any failure leaves the
// gate with an empty table, and the error is returned only for reporting.
func (g *Gate) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var st LearnerState
	err := g.store.Load(ctx, StateKey, &st)
	switch {
	case err == nil && st.Version == StateVersion:
		g.apply(st)
		g.logger.Info("rl state restored",
			applogger.Int("states", len(g.q)),
			applogger.Float64("epsilon", g.epsilon),
		)
		return nil
	case err == nil:
		g.logger.Warn("rl state version mismatch, starting empty",
			applogger.Int("found", st.Version),
			applogger.Int("want", StateVersion),
		)
		return nil
	case errors.Is(err, models.ErrNotFound):
		return g.migrateLegacy(ctx)
	default:
		g.metrics.RecordError("persistence")
		g.logger.Error("rl state unreadable, starting empty", applogger.Error(err))
		return fmt.Errorf("%w: load rl state: %v", models.ErrPersistence, err)
	}
}

func (g *Gate) migrateLegacy(ctx context.Context) error {
	legacy, found, err := LoadLegacy(g.cfg.LegacyDir)
	if !found {
		return nil
	}
	if err != nil {
		g.metrics.RecordError("persistence")
		g.logger.Error("legacy rl state corrupt, starting empty", applogger.Error(err))
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	st := MigrateLegacy(legacy, NumActions, g.cfg.Epsilon)
	g.apply(st)
	if err := g.store.Save(ctx, StateKey, st); err != nil {
		g.metrics.RecordError("persistence")
		g.logger.Error("persist migrated rl state", applogger.Error(err))
		return fmt.Errorf("%w: save migrated rl state: %v", models.ErrPersistence, err)
	}
	if err := RemoveLegacy(g.cfg.LegacyDir); err != nil {
		g.logger.Warn("remove legacy rl files", applogger.Error(err))
	}
	g.logger.Info("rl state migrated from legacy layout",
		applogger.Int("states", len(g.q)),
		applogger.Float64("epsilon", g.epsilon),
	)
	return nil
}

func (g *Gate) apply(st LearnerState) {
	g.q = make(map[string][]float64, len(st.QTable))
	for k, v := range st.QTable {
		g.q[k] = fitActions(v, NumActions)
	}
	g.epsilon = st.Epsilon
	g.metrics.RecordEpsilon(g.epsilon)
}

// SetEnsemble feeds the latest decision into the observation.
func (g *Gate) SetEnsemble(d models.EnsembleDecision) {
	g.mu.Lock()
	g.env.SetEnsemble(d)
	g.mu.Unlock()
}

// Observation returns the current observation vector.
func (g *Gate) Observation() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.env.Observation()
}

// Key discretizes obs into the table key.
func (g *Gate) Key(obs []float64) string {
	var sb strings.Builder
	for i, x := range obs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(bin(x, g.bins(i))))
	}
	return sb.String()
}

func (g *Gate) bins(i int) int {
	if i < len(g.cfg.Bins) && g.cfg.Bins[i] > 0 {
		return g.cfg.Bins[i]
	}
	return g.cfg.DefaultBins
}

func bin(x float64, bins int) int {
	if math.IsNaN(x) {
		x = 0
	}
	x = math.Max(-1, math.Min(1, x))
	b := int(math.Floor((x + 1) * float64(bins) / 2))
	if b >= bins {
		b = bins - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// SelectAction is epsilon-greedy; exploitation picks the lowest index among ties.
func (g *Gate) SelectAction(obs []float64) Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() < g.epsilon {
		return Action(g.rng.Intn(NumActions))
	}
	return argmax(g.q[g.Key(obs)])
}

func argmax(v []float64) Action {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return Action(best)
}

// Learn applies one temporal-difference update.
func (g *Gate) Learn(obs []float64, a Action, reward float64, next []float64, done bool) {
	g.mu.Lock()
	g.learn(obs, a, reward, next, done)
	g.mu.Unlock()
}

func (g *Gate) learn(obs []float64, a Action, reward float64, next []float64, done bool) {
	key, nextKey := g.Key(obs), g.Key(next)
	if _, ok := g.q[key]; !ok {
		g.q[key] = make([]float64, NumActions)
	}
	if _, ok := g.q[nextKey]; !ok {
		g.q[nextKey] = make([]float64, NumActions)
	}

	target := reward
	if !done {
		nv := g.q[nextKey]
		target += g.cfg.Gamma * nv[argmax(nv)]
	}
	g.q[key][a] += g.cfg.LearningRate * (target - g.q[key][a])
}

// StepResult is what one completed step produced.
type StepResult struct {
	Reward float64
	Done   bool
}

// Step closes the loop for one signal: advances the environment, learns from
// the transition and, on episode end, decays exploration and persists.
func (g *Gate) Step(ctx context.Context, obs []float64, a Action, outcome models.Outcome, balance float64) (StepResult, error) {
	g.mu.Lock()
	reward, done := g.env.Step(a, outcome, balance)
	next := g.env.Observation()
	g.learn(obs, a, reward, next, done)

	g.rewards = append(g.rewards, reward)
	if len(g.rewards) > g.cfg.RewardWindow {
		g.rewards = g.rewards[len(g.rewards)-g.cfg.RewardWindow:]
	}

	var snapshot LearnerState
	if done {
		g.epsilon = math.Max(g.cfg.EpsilonMin, g.epsilon*g.cfg.EpsilonDecay)
		g.metrics.RecordEpsilon(g.epsilon)
		snapshot = g.snapshot()
	}
	g.mu.Unlock()

	res := StepResult{Reward: reward, Done: done}
	if !done {
		return res, nil
	}
	if err := g.store.Save(ctx, StateKey, snapshot); err != nil {
		g.metrics.RecordError("persistence")
		g.logger.Error("persist rl state", applogger.Error(err))
		return res, fmt.Errorf("%w: save rl state: %v", models.ErrPersistence, err)
	}
	return res, nil
}

// Save persists the current state outside the episode boundary.
func (g *Gate) Save(ctx context.Context) error {
	st := g.Snapshot()
	if err := g.store.Save(ctx, StateKey, st); err != nil {
		g.metrics.RecordError("persistence")
		return fmt.Errorf("%w: save rl state: %v", models.ErrPersistence, err)
	}
	return nil
}

// RecentRewardAvg is the mean over the reward window, 0 when empty.
func (g *Gate) RecentRewardAvg() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.rewards) == 0 {
		return 0
	}
	var s float64
	for _, r := range g.rewards {
		s += r
	}
	return s / float64(len(g.rewards))
}

func (g *Gate) Epsilon() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epsilon
}

// Snapshot returns a deep copy of the learner state.
func (g *Gate) Snapshot() LearnerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

func (g *Gate) snapshot() LearnerState {
	q := make(map[string][]float64, len(g.q))
	for k, v := range g.q {
		q[k] = append([]float64(nil), v...)
	}
	return LearnerState{Version: StateVersion, QTable: q, Epsilon: g.epsilon}
}
