// Package risk sizes trades with a martingale ladder and vetoes trading
// through an equity circuit-breaker.
package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/repository"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

// LadderKey is the state-store slot for the ladder index.
const LadderKey = "risk_ladder"

type LadderState struct {
	Level int `json:"level"`
}

type SupervisorConfig struct {
	Ladder     []float64
	Window     int
	MinWinRate float64
}

type SupervisorOption func(*Supervisor)

func WithSupervisorLogger(l *applogger.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSupervisorMetrics(m repository.Metrics) SupervisorOption {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Supervisor tracks the current ladder level. A loss climbs one level, a win
// returns to the bottom, and a full rolling window can nudge the level by one
// in the direction the last outcome allows.
type Supervisor struct {
	mu      sync.Mutex
	ladder  []float64
	level   int
	window  []models.Outcome
	size    int
	minRate float64
	store   repository.StateStore
	logger  *applogger.Logger
	metrics repository.Metrics
}

func NewSupervisor(cfg SupervisorConfig, store repository.StateStore, opts ...SupervisorOption) (*Supervisor, error) {
	if len(cfg.Ladder) == 0 {
		return nil, models.NewValidationError("risk.ladder", "at least one stake level is required")
	}
	if cfg.Window <= 0 {
		return nil, models.NewValidationError("risk.window", "must be positive")
	}
	s := &Supervisor{
		ladder:  append([]float64(nil), cfg.Ladder...),
		size:    cfg.Window,
		minRate: cfg.MinWinRate,
		store:   store,
		logger:  applogger.NewNop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load restores the persisted level. Out-of-range or unreadable values leave
// the ladder at level 0.
func (s *Supervisor) Load(ctx context.Context) error {
	var st LadderState
	err := s.store.Load(ctx, LadderKey, &st)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.metrics.RecordError("persistence")
		s.logger.Error("ladder state unreadable, starting at level 0", applogger.Error(err))
		return fmt.Errorf("%w: load ladder: %v", models.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Level < 0 || st.Level >= len(s.ladder) {
		s.logger.Warn("persisted ladder level out of range, ignoring", applogger.Int("level", st.Level))
		return nil
	}
	s.level = st.Level
	s.metrics.RecordLadderLevel(s.level)
	s.logger.Info("ladder level restored", applogger.Int("level", s.level))
	return nil
}

// Register applies one trade outcome. The in-memory level is always updated;
// a returned error only reports that persisting it failed.
func (s *Supervisor) Register(ctx context.Context, outcome models.Outcome) error {
	if !outcome.Valid() {
		return models.NewValidationError("outcome", fmt.Sprintf("unexpected result %q", outcome))
	}

	s.mu.Lock()
	before := s.level
	top := len(s.ladder) - 1
	s.level = clamp(s.level, top)

	if outcome == models.OutcomeLoss {
		if s.level < top {
			s.level++
		} else {
			s.logger.Warn("ladder already at top level")
		}
	} else {
		s.level = 0
	}

	s.window = append(s.window, outcome)
	if len(s.window) > s.size {
		s.window = s.window[len(s.window)-s.size:]
	}
	if len(s.window) == s.size {
		s.evaluate(outcome, top, before)
	}

	level := s.level
	s.mu.Unlock()

	if level == before {
		return nil
	}
	s.metrics.RecordLadderLevel(level)
	s.logger.Info("ladder level changed",
		applogger.String("outcome", string(outcome)),
		applogger.Int("from", before),
		applogger.Int("to", level),
	)
	if err := s.store.Save(ctx, LadderKey, LadderState{Level: level}); err != nil {
		s.metrics.RecordError("persistence")
		s.logger.Error("persist ladder level", applogger.Error(err))
		return fmt.Errorf("%w: save ladder: %v", models.ErrPersistence, err)
	}
	return nil
}

// evaluate adjusts by the window win rate. After a win it may only step
// down. After a loss it may step back, but never below floor, the level held
// before that loss.
func (s *Supervisor) evaluate(last models.Outcome, top, floor int) {
	wins := 0
	for _, o := range s.window {
		if o == models.OutcomeWin {
			wins++
		}
	}
	rate := float64(wins) / float64(s.size)

	switch {
	case rate < s.minRate && last == models.OutcomeLoss:
		if s.level < top {
			s.level++
			s.logger.Warn("win rate below minimum, raising ladder",
				applogger.Float64("win_rate", rate),
				applogger.Int("level", s.level),
			)
		}
	case rate >= s.minRate && last == models.OutcomeWin && s.level > 0:
		s.level--
	case rate >= s.minRate && last == models.OutcomeLoss && s.level > floor:
		s.level--
	}
}

// CurrentStake is the ladder amount at the current level.
func (s *Supervisor) CurrentStake() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ladder[clamp(s.level, len(s.ladder)-1)]
}

func (s *Supervisor) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// WinRate is the win fraction of the current window, 0 when empty.
func (s *Supervisor) WinRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.window) == 0 {
		return 0
	}
	wins := 0
	for _, o := range s.window {
		if o == models.OutcomeWin {
			wins++
		}
	}
	return float64(wins) / float64(len(s.window))
}

func clamp(i, top int) int {
	if i < 0 {
		return 0
	}
	if i > top {
		return top
	}
	return i
}
