package models

import "time"

// TradeRecord is one executed operation as written to the outcome log.
type TradeRecord struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Market        string    `json:"market"`
	Strategy      string    `json:"strategy"`
	Direction     Direction `json:"direction"`
	Stake         float64   `json:"stake"`
	Level         int       `json:"level"`
	Duration      int       `json:"duration"`
	Result        Outcome   `json:"result"`
	Payoff        float64   `json:"payoff"`
	BalanceBefore float64   `json:"balance_before"`
	BalanceAfter  float64   `json:"balance_after"`
}

// RLMetric is the per-iteration decision trace of the reinforcement gate.
type RLMetric struct {
	Timestamp      time.Time          `json:"timestamp"`
	Step           int64              `json:"step"`
	Action         int                `json:"action"`
	Reward         float64            `json:"reward"`
	Balance        float64            `json:"balance"`
	EnsembleSignal Direction          `json:"ensemble_signal"`
	Weights        map[string]float64 `json:"weights"`
	Epsilon        float64            `json:"epsilon"`
	Executed       bool               `json:"executed"`
}

// ErrorRecord is a counted pipeline failure.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// DecisionEvent is published for downstream consumers after every processed signal.
type DecisionEvent struct {
	Signal   Signal           `json:"signal"`
	Decision EnsembleDecision `json:"decision"`
	Action   int              `json:"action"`
	Executed bool             `json:"executed"`
	Trade    *TradeRecord     `json:"trade,omitempty"`
}
