package models

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the directional call of a signal or decision.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
	DirectionNone Direction = "NONE"
)

// ParseDirection normalizes s to upper case and accepts only CALL or PUT.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case DirectionCall, DirectionPut:
		return d, nil
	default:
		return "", NewValidationError("direction", fmt.Sprintf("must be CALL or PUT, got %q", s))
	}
}

// Vote maps CALL to +1, PUT to -1 and anything else to 0.
func (d Direction) Vote() float64 {
	switch d {
	case DirectionCall:
		return 1
	case DirectionPut:
		return -1
	default:
		return 0
	}
}

// Outcome is the realized result of a trade.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// ParseOutcome accepts WIN or LOSS in any case.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	switch o {
	case OutcomeWin, OutcomeLoss:
		return o, nil
	default:
		return "", NewValidationError("result", fmt.Sprintf("must be WIN or LOSS, got %q", s))
	}
}

// Valid reports whether o is WIN or LOSS.
func (o Outcome) Valid() bool { return o == OutcomeWin || o == OutcomeLoss }

// Signal is one strategy's directional opinion on one market at one instant.
// Construct it with NewSignal; a Signal value is never mutated after that.
type Signal struct {
	Market    string    `json:"market"`
	Direction Direction `json:"direction"`
	Strategy  string    `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSignal validates the direction and stamps a UTC timestamp (now when ts is zero).
func NewSignal(market, direction, strategy string, ts time.Time) (Signal, error) {
	if strings.TrimSpace(market) == "" {
		return Signal{}, NewValidationError("market", "is required")
	}
	d, err := ParseDirection(direction)
	if err != nil {
		return Signal{}, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return Signal{
		Market:    market,
		Direction: d,
		Strategy:  strategy,
		Timestamp: ts.UTC(),
	}, nil
}

// WithStrategy returns a copy of s stamped with the given strategy name.
func (s Signal) WithStrategy(name string) Signal {
	s.Strategy = name
	return s
}

// SignalOutcome pairs a signal with its realized (or assumed) result.
type SignalOutcome struct {
	Signal
	Result Outcome `json:"result"`
}
