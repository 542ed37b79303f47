package repository

import (
	"context"
	"time"

	"AnimaRex/internal/domain/models"
)

// Broker is the trading session. Every failure surfaces as a
// models.ConnectivityError or a models.ValidationError.
type Broker interface {
	Connect(ctx context.Context) error
	FetchBars(ctx context.Context, market string, tf Timeframe, since, until time.Time) ([]models.Candle, error)
	PlaceTrade(ctx context.Context, market string, direction models.Direction, stake float64, duration int) (string, error)
	// AwaitResult blocks until the trade resolves, the timeout elapses (0 means no
	// timeout) or ctx is cancelled. ok is false when no result was obtained.
	AwaitResult(ctx context.Context, tradeID string, timeout time.Duration) (payoff float64, ok bool, err error)
	Balance(ctx context.Context) (float64, error)
	Ping(ctx context.Context) error
	Close() error
}

// BarSource provides the latest price-bar window for a market.
type BarSource interface {
	LatestBars(ctx context.Context, market string, n int, tf Timeframe) ([]models.Candle, error)
}

// OutcomeLog is the append-only record of signals, trades and decisions.
type OutcomeLog interface {
	RecordSignal(ctx context.Context, s models.SignalOutcome) error
	RecordTrade(ctx context.Context, t models.TradeRecord) error
	RecordRLMetric(ctx context.Context, m models.RLMetric) error
	RecordError(ctx context.Context, e models.ErrorRecord) error
}

// StateStore is a key-value slot for component state. Load returns
// models.ErrNotFound when the key is absent.
type StateStore interface {
	Load(ctx context.Context, key string, dest any) error
	Save(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher fans decision events out to downstream consumers.
type EventPublisher interface {
	PublishDecision(ctx context.Context, e models.DecisionEvent) error
	Close() error
}

type Metrics interface {
	RecordError(component string)
	RecordSignal(market, strategy string)
	RecordSignalDropped()
	RecordTrade(result string)
	RecordLatency(op string, seconds float64)
	RecordHeartbeat(thread string)
	RecordLadderLevel(level int)
	RecordEpsilon(eps float64)
	RecordSuspended(suspended bool)
	RecordBalance(balance float64)
}
