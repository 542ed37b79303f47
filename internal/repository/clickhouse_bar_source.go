package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	pkgch "AnimaRex/pkg/clickhouse"
	applogger "AnimaRex/pkg/logger"
)

// CHBarSource implements BarSource over pre-aggregated ClickHouse candle tables.
type CHBarSource struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHBarSource(ch *pkgch.Client, l *applogger.Logger) *CHBarSource {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHBarSource{db: ch.DB(), l: l}
}

// LatestBars returns up to n bars in ascending time order.
func (s *CHBarSource) LatestBars(ctx context.Context, market string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, models.NewValidationError("n", "must be positive")
	}
	start := time.Now()
	table, err := tableForTF(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, table)
	rows, err := s.db.QueryContext(ctx, q, market, n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("table", table),
			applogger.String("market", market),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseBars(out)

	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("table", table),
		applogger.String("market", market),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	if len(out) == 0 {
		return nil, fmt.Errorf("latest bars %s: %w", market, models.ErrNoData)
	}
	return out, nil
}

func reverseBars(b []models.Candle) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return "anima.candles_1s", nil
	case domrepo.TF1m:
		return "anima.candles_1m", nil
	case domrepo.TF5m:
		return "anima.candles_5m", nil
	case domrepo.TF1h:
		return "anima.candles_1h", nil
	case domrepo.TF1d:
		return "anima.candles_1d", nil
	default:
		return "", models.NewValidationError("timeframe", fmt.Sprintf("unsupported %q", tf))
	}
}
