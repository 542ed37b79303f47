package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/domain/repository"
	"AnimaRex/internal/service/ratelimit"
	xhttp "AnimaRex/pkg/http"
)

type BridgeConfig struct {
	URL           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	PollInterval  time.Duration
	// Token is sent as a bearer token when set.
	Token string
}

type BridgeOption func(*Bridge)

// WithHTTPClient replaces the underlying client. It must carry the gateway
// base URL itself.
func WithHTTPClient(c *xhttp.Client) BridgeOption {
	return func(b *Bridge) {
		if c != nil {
			b.client = c
		}
	}
}

// Bridge talks JSON over HTTP to an external gateway that holds the real
// broker session. Calls are throttled per operation.
type Bridge struct {
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	poll    time.Duration
}

var _ repository.Broker = (*Bridge)(nil)

func NewBridge(cfg BridgeConfig, opts ...BridgeOption) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	b := &Bridge{
		client: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithBaseURL(cfg.URL),
			xhttp.WithHeader("Authorization", bearer(cfg.Token)),
		),
		limiter: ratelimit.New(cfg.RatePerSecond, cfg.Burst),
		poll:    cfg.PollInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type connectResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

type tradeRequest struct {
	Market    string  `json:"market"`
	Direction string  `json:"direction"`
	Stake     float64 `json:"stake"`
	Duration  int     `json:"duration"`
}

type tradeResponse struct {
	OK      bool   `json:"ok"`
	TradeID string `json:"trade_id"`
	Reason  string `json:"reason"`
}

type resultResponse struct {
	Settled bool    `json:"settled"`
	Payoff  float64 `json:"payoff"`
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

func (b *Bridge) Connect(ctx context.Context) error {
	var resp connectResponse
	if err := b.call(ctx, "connect", xhttp.MethodPost, "/connect", nil, nil, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return models.NewConnectivityError("connect", fmt.Errorf("rejected: %s", resp.Reason))
	}
	return nil
}

func (b *Bridge) FetchBars(ctx context.Context, market string, tf repository.Timeframe, since, until time.Time) ([]models.Candle, error) {
	q := map[string][]string{
		"market": {market},
		"tf":     {string(tf)},
		"since":  {strconv.FormatInt(since.Unix(), 10)},
		"until":  {strconv.FormatInt(until.Unix(), 10)},
	}
	var bars []models.Candle
	if err := b.call(ctx, "fetch_bars", xhttp.MethodGet, "/bars", q, nil, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (b *Bridge) PlaceTrade(ctx context.Context, market string, direction models.Direction, stake float64, duration int) (string, error) {
	req := tradeRequest{Market: market, Direction: string(direction), Stake: stake, Duration: duration}
	var resp tradeResponse
	if err := b.call(ctx, "place_trade", xhttp.MethodPost, "/trades", nil, req, &resp); err != nil {
		return "", err
	}
	if !resp.OK || resp.TradeID == "" {
		return "", models.NewValidationError("trade", fmt.Sprintf("rejected by broker: %s", resp.Reason))
	}
	return resp.TradeID, nil
}

func (b *Bridge) AwaitResult(ctx context.Context, tradeID string, timeout time.Duration) (float64, bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	tick := time.NewTicker(b.poll)
	defer tick.Stop()

	path := "/trades/" + url.PathEscape(tradeID)
	for {
		var resp resultResponse
		if err := b.call(ctx, "await_result", xhttp.MethodGet, path, nil, nil, &resp); err != nil {
			return 0, false, err
		}
		if resp.Settled {
			return resp.Payoff, true, nil
		}
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-deadline:
			return 0, false, nil
		case <-tick.C:
		}
	}
}

func (b *Bridge) Balance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := b.call(ctx, "balance", xhttp.MethodGet, "/balance", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (b *Bridge) Ping(ctx context.Context) error {
	return b.call(ctx, "ping", xhttp.MethodGet, "/ping", nil, nil, nil)
}

func (b *Bridge) Close() error { return nil }

// call waits for the op's rate token, issues the request and classifies the
// failure: caller-side 4xx responses are validation errors, everything else
// connectivity.
func (b *Bridge) call(ctx context.Context, op, method, path string, query map[string][]string, body, dest any) error {
	if err := b.limiter.Wait(ctx, op); err != nil {
		return models.NewConnectivityError(op, err)
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      method,
		URL:         path,
		QueryParams: query,
		Body:        body,
	}, dest)
	if err == nil {
		return nil
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) && se.ClientError() {
		return models.NewValidationError(op, se.Body)
	}
	return models.NewConnectivityError(op, err)
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
