package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/repository"
)

func connectedPaper(t *testing.T, cfg PaperConfig) *Paper {
	t.Helper()
	p := NewPaper(cfg)
	require.NoError(t, p.Connect(context.Background()))
	return p
}

func TestPaper_TradeLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("always win", func(t *testing.T) {
		p := connectedPaper(t, PaperConfig{Balance: 100, Payout: 0.8, WinChance: 1})
		id, err := p.PlaceTrade(ctx, "EURUSD", models.DirectionCall, 10, 1)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		payoff, ok, err := p.AwaitResult(ctx, id, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 8, payoff, 1e-9)

		bal, err := p.Balance(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 108, bal, 1e-9)
	})

	t.Run("always lose", func(t *testing.T) {
		p := connectedPaper(t, PaperConfig{Balance: 100, Payout: 0.8, WinChance: 0})
		id, err := p.PlaceTrade(ctx, "EURUSD", models.DirectionPut, 10, 1)
		require.NoError(t, err)

		payoff, ok, err := p.AwaitResult(ctx, id, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, -10, payoff, 1e-9)

		bal, _ := p.Balance(ctx)
		assert.InDelta(t, 90, bal, 1e-9)
	})
}

func TestPaper_RejectsInvalidTrades(t *testing.T) {
	p := connectedPaper(t, PaperConfig{Balance: 5, WinChance: 0.5})
	ctx := context.Background()

	_, err := p.PlaceTrade(ctx, "X", models.DirectionCall, 10, 1)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = p.PlaceTrade(ctx, "X", models.DirectionNone, 1, 1)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, _, err = p.AwaitResult(ctx, "missing", time.Second)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPaper_AwaitResultTimeoutAndCancel(t *testing.T) {
	p := connectedPaper(t, PaperConfig{Balance: 100, WinChance: 1, Settle: time.Hour, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()
	id, err := p.PlaceTrade(ctx, "X", models.DirectionCall, 1, 1)
	require.NoError(t, err)

	_, ok, err := p.AwaitResult(ctx, id, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, ok, err = p.AwaitResult(cctx, id, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestPaper_ConnectivityFailures(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(PaperConfig{Balance: 10})

	assert.ErrorIs(t, p.Ping(ctx), models.ErrConnectivity)

	require.NoError(t, p.Connect(ctx))
	p.FailNext(1)
	_, err := p.Balance(ctx)
	assert.True(t, models.IsConnectivity(err))
	assert.NoError(t, p.Ping(ctx))

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Ping(ctx), models.ErrConnectivity)
}

func TestPaper_FetchBarsCoversRange(t *testing.T) {
	p := connectedPaper(t, PaperConfig{Balance: 10, Seed: 3})
	until := time.Date(2024, 1, 1, 10, 9, 0, 0, time.UTC)
	since := until.Add(-9 * time.Minute)

	bars, err := p.FetchBars(context.Background(), "EURUSD", repository.TF1m, since, until)
	require.NoError(t, err)
	require.Len(t, bars, 10)
	assert.Equal(t, since, bars[0].Bucket)
	for _, b := range bars {
		assert.Equal(t, "EURUSD", b.Symbol)
		assert.GreaterOrEqual(t, b.High, b.Low)
	}
}

func TestBridge_RoundTrip(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(connectResponse{OK: true})
	})
	mux.HandleFunc("/trades", func(w http.ResponseWriter, r *http.Request) {
		var req tradeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Stake > 100 {
			http.Error(w, "stake too large", http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(tradeResponse{OK: true, TradeID: "t-1"})
	})
	mux.HandleFunc("/trades/t-1", func(w http.ResponseWriter, r *http.Request) {
		settled := polls.Add(1) >= 2
		_ = json.NewEncoder(w).Encode(resultResponse{Settled: settled, Payoff: 0.85})
	})
	mux.HandleFunc("/balance", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(balanceResponse{Balance: 250})
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewBridge(BridgeConfig{URL: srv.URL + "/", RatePerSecond: 1000, Burst: 10, PollInterval: 5 * time.Millisecond, Token: "s3cret"})
	ctx := context.Background()

	require.NoError(t, b.Connect(ctx))

	id, err := b.PlaceTrade(ctx, "EURUSD", models.DirectionCall, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)

	payoff, ok, err := b.AwaitResult(ctx, id, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.85, payoff, 1e-9)

	bal, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250.0, bal)

	_, err = b.PlaceTrade(ctx, "EURUSD", models.DirectionCall, 500, 1)
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.ErrorIs(t, b.Ping(ctx), models.ErrConnectivity)
}

func TestBridge_UnreachableIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := NewBridge(BridgeConfig{URL: url, Timeout: time.Second})
	_, err := b.Balance(context.Background())
	assert.True(t, models.IsConnectivity(err))
}
