package rl

import (
	"time"

	"AnimaRex/internal/domain/models"
)

// Action is the gate's decision for one signal.
type Action int

const (
	ActionReject Action = iota
	ActionAccept
	// The remaining actions are reserved. They are learnable but have no
	// effect on stake or strategy selection.
	ActionChangeStrategy
	ActionAdjustStake
	ActionSuspend

	NumActions = 5
)

func (a Action) String() string {
	switch a {
	case ActionReject:
		return "reject"
	case ActionAccept:
		return "accept"
	case ActionChangeStrategy:
		return "change_strategy"
	case ActionAdjustStake:
		return "adjust_stake"
	case ActionSuspend:
		return "suspend"
	default:
		return "unknown"
	}
}

const (
	historyLen      = 3
	ObservationSize = 9
)

// Env turns the trading loop into fixed-length episodes and shapes rewards.
type Env struct {
	episodeLength  int
	initialBalance float64
	balance        float64
	step           int
	history        [historyLen]float64
	ensDir         float64
	ensWeight      float64
	now            func() time.Time
}

func NewEnv(episodeLength int, initialBalance float64, now func() time.Time) *Env {
	if episodeLength <= 0 {
		episodeLength = 100
	}
	if initialBalance <= 0 {
		initialBalance = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &Env{
		episodeLength:  episodeLength,
		initialBalance: initialBalance,
		balance:        initialBalance,
		now:            now,
	}
}

// SetEnsemble stores the latest aggregated direction and mean trust weight.
func (e *Env) SetEnsemble(d models.EnsembleDecision) {
	e.ensDir = d.Direction.Vote()
	e.ensWeight = d.MeanWeight()
}

// Observation layout: three most recent outcomes (1 win, 0 otherwise), hour
// of day in [0,1], balance relative to initial, two reserved slots, ensemble
// direction and mean ensemble weight.
func (e *Env) Observation() []float64 {
	obs := make([]float64, ObservationSize)
	copy(obs, e.history[:])
	obs[3] = float64(e.now().UTC().Hour()) / 23
	obs[4] = (e.balance - e.initialBalance) / e.initialBalance
	obs[7] = e.ensDir
	obs[8] = e.ensWeight
	return obs
}

// Step applies a and its outcome. balance > 0 overrides the simulated balance.
func (e *Env) Step(a Action, outcome models.Outcome, balance float64) (reward float64, done bool) {
	win := outcome == models.OutcomeWin
	switch a {
	case ActionReject:
		if win {
			reward = -0.1
		} else {
			reward = 0.1
		}
	case ActionAccept:
		delta := 0.01 * e.initialBalance
		if win {
			reward = 1
			e.balance += delta
		} else {
			reward = -1
			e.balance -= delta
		}
	default:
		reward = -0.05
	}
	if balance > 0 {
		e.balance = balance
	}

	copy(e.history[:], e.history[1:])
	if win {
		e.history[historyLen-1] = 1
	} else {
		e.history[historyLen-1] = 0
	}

	e.step++
	done = e.step >= e.episodeLength
	if done {
		e.Reset()
	}
	return reward, done
}

// Reset starts a new episode.
func (e *Env) Reset() {
	e.step = 0
	e.history = [historyLen]float64{}
	e.balance = e.initialBalance
}
