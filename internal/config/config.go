package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`

	Feed      FeedConfig      `mapstructure:"feed"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Combiner  CombinerConfig  `mapstructure:"combiner"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Ticks     TicksConfig     `mapstructure:"ticks"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type FeedConfig struct {
	Symbol string       `mapstructure:"symbol"`
	Poller PollerConfig `mapstructure:"poller"`
	Stream StreamConfig `mapstructure:"stream"`
}

type PollerConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	URL          string        `mapstructure:"url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
}

type PipelineConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WindowSize    int           `mapstructure:"window_size"`
	ScorerTimeout time.Duration `mapstructure:"scorer_timeout"`
}

type CombinerConfig struct {
	WeightPolicy    string  `mapstructure:"weight_policy"`
	Deadband        float64 `mapstructure:"deadband"`
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	TargetPct       float64 `mapstructure:"target_pct"`
	StopPct         float64 `mapstructure:"stop_pct"`
	HoldMinutes     int     `mapstructure:"hold_minutes"`
}

type PublisherConfig struct {
	StrongThreshold   float64 `mapstructure:"strong_threshold"`
	WeakThreshold     float64 `mapstructure:"weak_threshold"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	ActivationRetries int     `mapstructure:"activation_retries"`
	RecordHoldHistory bool    `mapstructure:"record_hold_history"`
}

type QueueConfig struct {
	Workers          int           `mapstructure:"workers"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	ProcessingBudget time.Duration `mapstructure:"processing_budget"`
	ReaperInterval   time.Duration `mapstructure:"reaper_interval"`
	Retry            RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffMin  time.Duration `mapstructure:"backoff_min"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

type LedgerConfig struct {
	DefaultPositionValue float64       `mapstructure:"default_position_value"`
	StartingBalance      float64       `mapstructure:"starting_balance"`
	MonitorInterval      time.Duration `mapstructure:"monitor_interval"`
}

type BrokerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TicksConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("feed.symbol", "XAUUSD")
	v.SetDefault("feed.poller.endpoint", "")
	v.SetDefault("feed.poller.poll_interval", "1m")
	v.SetDefault("feed.poller.timeout", "10s")
	v.SetDefault("feed.stream.url", "")
	v.SetDefault("feed.stream.read_timeout", "90s")
	v.SetDefault("feed.stream.reconnect_min", "1s")
	v.SetDefault("feed.stream.reconnect_max", "1m")

	v.SetDefault("pipeline.interval", "1m")
	v.SetDefault("pipeline.window_size", 100)
	v.SetDefault("pipeline.scorer_timeout", "5s")

	v.SetDefault("combiner.weight_policy", "confidence_weighted")
	v.SetDefault("combiner.deadband", 10)
	v.SetDefault("combiner.confidence_floor", 25)
	v.SetDefault("combiner.target_pct", 0.015)
	v.SetDefault("combiner.stop_pct", 0.01)
	v.SetDefault("combiner.hold_minutes", 60)

	v.SetDefault("publisher.strong_threshold", 70)
	v.SetDefault("publisher.weak_threshold", 40)
	v.SetDefault("publisher.min_confidence", 30)
	v.SetDefault("publisher.activation_retries", 3)
	v.SetDefault("publisher.record_hold_history", true)

	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.poll_interval", "5s")
	v.SetDefault("queue.batch_size", 20)
	v.SetDefault("queue.processing_budget", "2m")
	v.SetDefault("queue.reaper_interval", "1m")
	v.SetDefault("queue.retry.max_attempts", 3)
	v.SetDefault("queue.retry.backoff_min", "5s")
	v.SetDefault("queue.retry.backoff_max", "2m")

	v.SetDefault("ledger.default_position_value", 1000)
	v.SetDefault("ledger.starting_balance", 10000)
	v.SetDefault("ledger.monitor_interval", "30s")

	v.SetDefault("broker.base_url", "")
	v.SetDefault("broker.timeout", "15s")

	v.SetDefault("ticks.retention", "168h")
	v.SetDefault("ticks.prune_schedule", "@every 1h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
