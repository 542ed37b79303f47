package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
markets: [EURUSD, GBPUSD]
strategies:
  - name: mhi1_minoria
    params: {window: 3}
  - name: five_flip
`

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, []float64{1, 2, 4, 8, 16}, c.Risk.Ladder)
	assert.Equal(t, 20, c.Risk.Window)
	assert.InDelta(t, 0.6, c.Risk.MinWinRate, 1e-9)
	assert.Equal(t, 4, c.Breaker.MaxLosses)
	assert.Equal(t, 60*time.Second, c.Workers.Interval)
	assert.Equal(t, 300*time.Second, c.Workers.PauseDuration)
	assert.Equal(t, 5, c.Workers.ErrorThreshold)
	assert.Equal(t, 10*time.Second, c.Watchdog.PingInterval)
	assert.Equal(t, "badger", c.State.Backend)
	assert.Equal(t, "paper", c.Broker.Mode)
	assert.Equal(t, []string{"mhi1_minoria", "five_flip"}, c.StrategyNames())
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(minimal + `
risk:
  ladder: [5, 10]
  window: 8
workers:
  interval: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10}, c.Risk.Ladder)
	assert.Equal(t, 8, c.Risk.Window)
	assert.Equal(t, 2*time.Second, c.Workers.Interval)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no markets":         "strategies: [{name: a}]",
		"no strategies":      "markets: [X]",
		"duplicate":          "markets: [X]\nstrategies: [{name: a}, {name: a}]",
		"bridge without url": minimal + "broker: {mode: bridge}",
		"bad win rate":       minimal + "risk: {min_win_rate: 1.5}",
		"bad backend":        minimal + "state: {backend: sqlite}",
		"eps floor":          minimal + "rl: {epsilon: 0.05, epsilon_min: 0.1}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"ANIMA_MARKETS":    "BTCUSD, ETHUSD",
		"ANIMA_BROKER_URL": "http://bridge:9000",
		"REDIS_ADDR":       "cache:6380",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, c.Markets)
	assert.Equal(t, "bridge", c.Broker.Mode)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.NoError(t, c.Validate())
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Markets, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedSampleIsValid(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.Strategies, 8)
	assert.Equal(t, "paper", c.Broker.Mode)
	assert.Equal(t, "badger", c.State.Backend)
	assert.Equal(t, 9, c.Strategies[7].Params["fast_period"])
}
