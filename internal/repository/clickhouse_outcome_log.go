package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"AnimaRex/internal/domain/models"
	pkgch "AnimaRex/pkg/clickhouse"
	applogger "AnimaRex/pkg/logger"
)

// OutcomeSchema is the DDL for the candle tables and the four outcome tables.
var OutcomeSchema = []string{
	`CREATE DATABASE IF NOT EXISTS anima`,
	candleTable("anima.candles_1s"),
	candleTable("anima.candles_1m"),
	candleTable("anima.candles_5m"),
	candleTable("anima.candles_1h"),
	candleTable("anima.candles_1d"),
	`CREATE TABLE IF NOT EXISTS anima.signals (
        ts DateTime64(3, 'UTC'),
        market LowCardinality(String),
        strategy LowCardinality(String),
        direction LowCardinality(String),
        result LowCardinality(String)
    ) ENGINE = MergeTree ORDER BY (market, ts)`,
	`CREATE TABLE IF NOT EXISTS anima.operations (
        id String,
        ts DateTime64(3, 'UTC'),
        market LowCardinality(String),
        strategy LowCardinality(String),
        direction LowCardinality(String),
        stake Float64,
        level UInt16,
        duration UInt32,
        result LowCardinality(String),
        payoff Float64,
        balance_before Float64,
        balance_after Float64
    ) ENGINE = MergeTree ORDER BY (market, ts)`,
	`CREATE TABLE IF NOT EXISTS anima.rl_metrics (
        ts DateTime64(3, 'UTC'),
        step Int64,
        action UInt8,
        reward Float64,
        balance Float64,
        ensemble_signal LowCardinality(String),
        weights String,
        epsilon Float64,
        executed UInt8
    ) ENGINE = MergeTree ORDER BY ts`,
	`CREATE TABLE IF NOT EXISTS anima.errors (
        ts DateTime64(3, 'UTC'),
        component LowCardinality(String),
        message String
    ) ENGINE = MergeTree ORDER BY (component, ts)`,
}

func candleTable(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        bucket DateTime('UTC'),
        symbol LowCardinality(String),
        open Float64,
        high Float64,
        low Float64,
        close Float64,
        vol Float64
    ) ENGINE = ReplacingMergeTree ORDER BY (symbol, bucket)`, name)
}

// ClickHouseOutcomeLog appends pipeline records to ClickHouse. Every failure
// is returned wrapped in models.ErrPersistence.
type ClickHouseOutcomeLog struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewClickHouseOutcomeLog(ch *pkgch.Client, l *applogger.Logger) *ClickHouseOutcomeLog {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseOutcomeLog{db: ch.DB(), l: l}
}

func (o *ClickHouseOutcomeLog) RecordSignal(ctx context.Context, s models.SignalOutcome) error {
	return o.exec(ctx, "signals",
		`INSERT INTO anima.signals (ts, market, strategy, direction, result) VALUES (?, ?, ?, ?, ?)`,
		s.Timestamp, s.Market, s.Strategy, string(s.Direction), string(s.Result),
	)
}

func (o *ClickHouseOutcomeLog) RecordTrade(ctx context.Context, t models.TradeRecord) error {
	return o.exec(ctx, "operations",
		`INSERT INTO anima.operations (id, ts, market, strategy, direction, stake, level, duration, result, payoff, balance_before, balance_after)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Timestamp, t.Market, t.Strategy, string(t.Direction), t.Stake,
		uint16(t.Level), uint32(t.Duration), string(t.Result), t.Payoff, t.BalanceBefore, t.BalanceAfter,
	)
}

func (o *ClickHouseOutcomeLog) RecordRLMetric(ctx context.Context, m models.RLMetric) error {
	weights, err := json.Marshal(m.Weights)
	if err != nil {
		return fmt.Errorf("rl_metrics weights: %w: %v", models.ErrPersistence, err)
	}
	return o.exec(ctx, "rl_metrics",
		`INSERT INTO anima.rl_metrics (ts, step, action, reward, balance, ensemble_signal, weights, epsilon, executed)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp, m.Step, uint8(m.Action), m.Reward, m.Balance,
		string(m.EnsembleSignal), string(weights), m.Epsilon, boolToUInt8(m.Executed),
	)
}

func (o *ClickHouseOutcomeLog) RecordError(ctx context.Context, e models.ErrorRecord) error {
	return o.exec(ctx, "errors",
		`INSERT INTO anima.errors (ts, component, message) VALUES (?, ?, ?)`,
		e.Timestamp, e.Component, e.Message,
	)
}

func (o *ClickHouseOutcomeLog) exec(ctx context.Context, table, q string, args ...any) error {
	start := time.Now()
	if _, err := o.db.ExecContext(ctx, q, args...); err != nil {
		o.l.Error("clickhouse insert failed",
			applogger.String("table", table),
			applogger.Error(err),
		)
		return fmt.Errorf("insert %s: %w: %v", table, models.ErrPersistence, err)
	}
	o.l.Debug("clickhouse insert ok",
		applogger.String("table", table),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
