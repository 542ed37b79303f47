// Package ensemble fuses recent strategy outcomes into one direction plus
// per-strategy trust weights.
package ensemble

import (
	"fmt"
	"math"
	"strings"

	"AnimaRex/internal/domain/models"
	applogger "AnimaRex/pkg/logger"
)

type Option func(*Aggregator)

// WithPayout sets the gain credited to a strategy for each WIN.
func WithPayout(p float64) Option {
	return func(a *Aggregator) {
		if p > 0 {
			a.payout = p
		}
	}
}

// WithStake sets the loss debited from a strategy for each LOSS.
func WithStake(s float64) Option {
	return func(a *Aggregator) {
		if s > 0 {
			a.stake = s
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Aggregator is stateless between calls and safe for concurrent use.
type Aggregator struct {
	strategies []string
	index      map[string]int
	payout     float64
	stake      float64
	logger     *applogger.Logger
}

// NewAggregator builds an aggregator over the canonical ordered strategy list.
func NewAggregator(strategies []string, opts ...Option) *Aggregator {
	a := &Aggregator{
		strategies: append([]string(nil), strategies...),
		index:      make(map[string]int, len(strategies)),
		payout:     0.8,
		stake:      1,
		logger:     applogger.NewNop(),
	}
	for i, s := range a.strategies {
		a.index[s] = i
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Strategies returns the canonical strategy order.
func (a *Aggregator) Strategies() []string {
	return append([]string(nil), a.strategies...)
}

// Aggregate fuses batch into a decision. When weights is non-nil it must have
// one entry per strategy; it is normalized and used as is. Otherwise weights
// come from a softmax over each strategy's net payoff in the batch.
func (a *Aggregator) Aggregate(batch []models.SignalOutcome, weights []float64) (models.EnsembleDecision, error) {
	n := len(a.strategies)
	var w []float64
	if weights != nil {
		norm, err := Normalize(weights, n)
		if err != nil {
			return models.EnsembleDecision{}, err
		}
		w = norm
	}

	valid := make([]models.SignalOutcome, 0, len(batch))
	var unknown []string
	for _, so := range batch {
		if _, ok := a.index[so.Strategy]; !ok {
			unknown = append(unknown, so.Strategy)
			continue
		}
		valid = append(valid, so)
	}
	if len(unknown) > 0 {
		a.logger.Warn("ensemble discarded signals from unknown strategies",
			applogger.Strings("strategies", unknown),
		)
	}

	if len(valid) == 0 || n == 0 {
		return a.neutral(), nil
	}

	if w == nil {
		net := make([]float64, n)
		for _, so := range valid {
			i := a.index[so.Strategy]
			if so.Result == models.OutcomeWin {
				net[i] += a.payout
			} else {
				net[i] -= a.stake
			}
		}
		w = Softmax(net)
	}

	var vote float64
	for _, so := range valid {
		vote += so.Direction.Vote() * w[a.index[so.Strategy]]
	}
	dir := models.DirectionCall
	if vote < 0 {
		dir = models.DirectionPut
	}

	return models.EnsembleDecision{
		Direction:  dir,
		Strategies: a.Strategies(),
		Weights:    w,
	}, nil
}

func (a *Aggregator) neutral() models.EnsembleDecision {
	n := len(a.strategies)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return models.EnsembleDecision{
		Direction:  models.DirectionNone,
		Strategies: a.Strategies(),
		Weights:    w,
	}
}

// Normalize scales weights to sum to 1. It rejects a length other than n,
// negative or non-finite entries and an all-zero vector.
func Normalize(weights []float64, n int) ([]float64, error) {
	if len(weights) != n {
		return nil, models.NewValidationError("weights",
			fmt.Sprintf("length %d does not match %d strategies", len(weights), n))
	}
	var sum float64
	for i, v := range weights {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, models.NewValidationError("weights", fmt.Sprintf("entry %d is invalid: %v", i, v))
		}
		sum += v
	}
	if sum <= 0 {
		return nil, models.NewValidationError("weights", "sum must be positive")
	}
	out := make([]float64, n)
	for i, v := range weights {
		out[i] = v / sum
	}
	return out, nil
}

// Softmax is the max-shifted softmax of x.
func Softmax(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	maxV := x[0]
	for _, v := range x[1:] {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// String renders a decision for logs.
func String(d models.EnsembleDecision) string {
	parts := make([]string, len(d.Strategies))
	for i, s := range d.Strategies {
		parts[i] = fmt.Sprintf("%s=%.3f", s, d.Weights[i])
	}
	return string(d.Direction) + " [" + strings.Join(parts, " ") + "]"
}
