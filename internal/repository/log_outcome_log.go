package repository

import (
	"context"

	"AnimaRex/internal/domain/models"
	applogger "AnimaRex/pkg/logger"
)

// LogOutcomeLog writes outcome records to the structured log. It stands in
// for ClickHouse when that backend is disabled.
type LogOutcomeLog struct {
	l *applogger.Logger
}

func NewLogOutcomeLog(l *applogger.Logger) *LogOutcomeLog {
	if l == nil {
		l = applogger.NewNop()
	}
	return &LogOutcomeLog{l: l.Named("outcomes")}
}

func (o *LogOutcomeLog) RecordSignal(_ context.Context, s models.SignalOutcome) error {
	o.l.Info("signal",
		applogger.String("market", s.Market),
		applogger.String("strategy", s.Strategy),
		applogger.String("direction", string(s.Direction)),
		applogger.String("result", string(s.Result)),
	)
	return nil
}

func (o *LogOutcomeLog) RecordTrade(_ context.Context, t models.TradeRecord) error {
	o.l.Info("operation",
		applogger.String("id", t.ID),
		applogger.String("market", t.Market),
		applogger.String("direction", string(t.Direction)),
		applogger.Float64("stake", t.Stake),
		applogger.Int("level", t.Level),
		applogger.String("result", string(t.Result)),
		applogger.Float64("balance_before", t.BalanceBefore),
		applogger.Float64("balance_after", t.BalanceAfter),
	)
	return nil
}

func (o *LogOutcomeLog) RecordRLMetric(_ context.Context, m models.RLMetric) error {
	o.l.Debug("rl_metric",
		applogger.Int64("step", m.Step),
		applogger.Int("action", m.Action),
		applogger.Float64("reward", m.Reward),
		applogger.Float64("balance", m.Balance),
		applogger.String("ensemble_signal", string(m.EnsembleSignal)),
		applogger.Float64("epsilon", m.Epsilon),
		applogger.Bool("executed", m.Executed),
	)
	return nil
}

func (o *LogOutcomeLog) RecordError(_ context.Context, e models.ErrorRecord) error {
	o.l.Warn("component error",
		applogger.String("component", e.Component),
		applogger.String("message", e.Message),
	)
	return nil
}

// NopPublisher drops decision events.
type NopPublisher struct{}

func (NopPublisher) PublishDecision(context.Context, models.DecisionEvent) error { return nil }
func (NopPublisher) Close() error                                                { return nil }
