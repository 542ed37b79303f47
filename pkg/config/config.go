package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"AnimaRex/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Markets    []string         `yaml:"markets" validate:"required,min=1,dive,required"`
	Strategies []StrategyConfig `yaml:"strategies" validate:"required,min=1,dive"`
	Workers    WorkersConfig    `yaml:"workers"`
	Bus        BusConfig        `yaml:"bus"`
	Ensemble   EnsembleConfig   `yaml:"ensemble"`
	RL         RLConfig         `yaml:"rl"`
	Risk       RiskConfig       `yaml:"risk"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Trade      TradeConfig      `yaml:"trade"`
	Broker     BrokerConfig     `yaml:"broker"`
	State      StateConfig      `yaml:"state"`
	Bars       BarsConfig       `yaml:"bars"`

	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Badger     BadgerConfig     `yaml:"badger"`
}

type StrategyConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Params map[string]any `yaml:"params"`
}

type WorkersConfig struct {
	Interval       time.Duration `yaml:"interval" default:"60s" validate:"gt=0"`
	ErrorThreshold int           `yaml:"error_threshold" default:"5" validate:"gte=1"`
	PauseDuration  time.Duration `yaml:"pause_duration" default:"300s"`
	Window         int           `yaml:"window" default:"100" validate:"gte=1"`
	Timeframe      string        `yaml:"timeframe" default:"1m"`
	// Jitter spreads worker wake-ups by up to this fraction of Interval.
	Jitter float64 `yaml:"jitter" default:"0.1" validate:"gte=0,lte=1"`
}

type BusConfig struct {
	Capacity       int           `yaml:"capacity" default:"10000" validate:"gte=1"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"1s"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout" default:"1s" validate:"gt=0"`
}

type EnsembleConfig struct {
	Payout       float64 `yaml:"payout" default:"0.8" validate:"gt=0"`
	Stake        float64 `yaml:"stake" default:"1" validate:"gt=0"`
	History      int     `yaml:"history" default:"20" validate:"gte=0"`
	WeightsFile  string  `yaml:"weights_file"`
	ReloadCron   string  `yaml:"reload_cron" default:"0 */5 * * * *"`
	WeightsRedis string  `yaml:"weights_redis_key"`
}

type RLConfig struct {
	LearningRate    float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	Gamma           float64 `yaml:"gamma" default:"0.99" validate:"gte=0,lte=1"`
	Epsilon         float64 `yaml:"epsilon" default:"1.0" validate:"gte=0,lte=1"`
	EpsilonDecay    float64 `yaml:"epsilon_decay" default:"0.995" validate:"gt=0,lte=1"`
	EpsilonMin      float64 `yaml:"epsilon_min" default:"0.1" validate:"gte=0,lte=1"`
	Bins            []int   `yaml:"bins"`
	DefaultBins     int     `yaml:"default_bins" default:"10" validate:"gte=1"`
	EpisodeLength   int     `yaml:"episode_length" default:"100" validate:"gte=1"`
	RewardThreshold float64 `yaml:"reward_threshold" default:"-0.2"`
	RewardWindow    int     `yaml:"reward_window" default:"10" validate:"gte=1"`
	InitialBalance  float64 `yaml:"initial_balance" default:"1000" validate:"gt=0"`
	Seed            int64   `yaml:"seed" default:"0"`
	LegacyDir       string  `yaml:"legacy_dir" default:"data"`
	CheckpointCron  string  `yaml:"checkpoint_cron" default:"0 */10 * * * *"`
}

type RiskConfig struct {
	Ladder     []float64 `yaml:"ladder" default:"[1,2,4,8,16]" validate:"required,min=1,dive,gt=0"`
	Window     int       `yaml:"window" default:"20" validate:"gte=1"`
	MinWinRate float64   `yaml:"min_win_rate" default:"0.6" validate:"gte=0,lte=1"`
}

type BreakerConfig struct {
	MaxDrawdown float64 `yaml:"max_drawdown" default:"0.1" validate:"gt=0,lte=1"`
	MaxLosses   int     `yaml:"max_losses" default:"4" validate:"gte=1"`
	Advisory    bool    `yaml:"advisory"`
}

type WatchdogConfig struct {
	Interval     time.Duration `yaml:"interval" default:"30s" validate:"gt=0"`
	PingInterval time.Duration `yaml:"ping_interval" default:"10s" validate:"gt=0"`
}

type TradeConfig struct {
	Duration      int           `yaml:"duration" default:"1" validate:"gte=1"`
	ResultTimeout time.Duration `yaml:"result_timeout" default:"0s"`
}

type BrokerConfig struct {
	Mode           string        `yaml:"mode" default:"paper" validate:"oneof=paper bridge"`
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout" default:"15s"`
	RatePerSecond  float64       `yaml:"rate_per_second" default:"5" validate:"gt=0"`
	Burst          int           `yaml:"burst" default:"5" validate:"gte=1"`
	PaperBalance   float64       `yaml:"paper_balance" default:"1000" validate:"gt=0"`
	PaperPayout    float64       `yaml:"paper_payout" default:"0.8" validate:"gt=0"`
	PaperWinChance float64       `yaml:"paper_win_chance" default:"0.5" validate:"gte=0,lte=1"`
	PaperSeed      int64         `yaml:"paper_seed" default:"1"`
	PaperSettle    time.Duration `yaml:"paper_settle" default:"0s"`
}

type StateConfig struct {
	Backend string `yaml:"backend" default:"badger" validate:"oneof=badger redis"`
}

type BarsConfig struct {
	Source   string        `yaml:"source" default:"broker" validate:"oneof=broker clickhouse"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"5s"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	DecisionTopic string   `yaml:"decision_topic" default:"anima.decisions"`
	SignalTopic   string   `yaml:"signal_topic"`
	LogTopic      string   `yaml:"log_topic"`
	// DedupWindow drops redelivered external signals; zero disables it.
	DedupWindow time.Duration `yaml:"dedup_window" default:"10m"`
	RequiredAcks  int      `yaml:"required_acks" default:"-1"`
	Compression   string   `yaml:"compression" default:"gzip"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"100ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"anima-rex"`
		Workers    int           `yaml:"workers" default:"1"`
		BufferSize int           `yaml:"buffer_size" default:"100"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"anima"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"anima"`
	PoolSize int    `yaml:"pool_size" default:"10" validate:"min=1"`
}

type BadgerConfig struct {
	Path       string  `yaml:"path" default:"data/state"`
	InMemory   bool    `yaml:"in_memory"`
	SyncWrites bool    `yaml:"sync_writes"`
	GCCron     string  `yaml:"gc_cron" default:"0 0 * * * *"`
	GCRatio    float64 `yaml:"gc_discard_ratio" default:"0.5" validate:"gt=0,lt=1"`
}

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ANIMA_MARKETS"); v != "" {
		c.Markets = splitList(v)
	}
	if v := getenv("ANIMA_BROKER_URL"); v != "" {
		c.Broker.URL = v
		c.Broker.Mode = "bridge"
	}
	if v := getenv("ANIMA_BROKER_TOKEN"); v != "" {
		c.Broker.Token = v
	}
	if v := getenv("ANIMA_STATE_BACKEND"); v != "" {
		c.State.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate runs tag validation plus cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.RL.EpsilonMin > c.RL.Epsilon {
		return fmt.Errorf("rl.epsilon_min (%v) cannot exceed rl.epsilon (%v)", c.RL.EpsilonMin, c.RL.Epsilon)
	}
	for i, b := range c.RL.Bins {
		if b < 1 {
			return fmt.Errorf("rl.bins[%d] must be >= 1, got %d", i, b)
		}
	}
	if c.Broker.Mode == "bridge" && c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required when broker.mode is 'bridge'")
	}
	if c.Bars.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("bars.source 'clickhouse' requires clickhouse.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("strategy %q is listed twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// StrategyNames returns the canonical ordered strategy list.
func (c *Config) StrategyNames() []string {
	out := make([]string, len(c.Strategies))
	for i, s := range c.Strategies {
		out[i] = s.Name
	}
	return out
}
