// Package config loads service settings from an optional YAML file,
// a .env file and SIGNAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. SIGNAL_POSTGRES_DSN.
const EnvPrefix = "SIGNAL"

// Config is the full service configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	UseMemory   bool              `mapstructure:"use_memory"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Solana      SolanaConfig      `mapstructure:"solana"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	ClickHouse  ClickHouseConfig  `mapstructure:"clickhouse"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Analyzer    AnalyzerConfig    `mapstructure:"analyzer"`
	AntiRug     AntiRugConfig     `mapstructure:"antirug"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Health      HealthConfig      `mapstructure:"health"`

	v *viper.Viper
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// SolanaConfig configures the RPC and websocket endpoints.
type SolanaConfig struct {
	RPCURL               string        `mapstructure:"rpc_url"`
	WSURL                string        `mapstructure:"ws_url"`
	ProgramID            string        `mapstructure:"program_id"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RateLimit            float64       `mapstructure:"rate_limit"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// PostgresConfig configures the relational store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Migrate  bool   `mapstructure:"migrate"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ClickHouseConfig configures the decision log. An empty DSN disables it.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the shared ingestion deduper. An empty address
// keeps deduplication in process.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// KafkaConfig configures signal publishing. Empty brokers disable it.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TelegramConfig configures chat alerts. An empty token disables them.
type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	ChatID  string `mapstructure:"chat_id"`
	BaseURL string `mapstructure:"base_url"`
}

// DexScreenerConfig configures the market data provider.
type DexScreenerConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	RateLimit   float64  `mapstructure:"rate_limit"`
	SearchTerms []string `mapstructure:"search_terms"`
}

// AnalyzerConfig configures the gate pipeline and its worker pool.
type AnalyzerConfig struct {
	MaxAge      time.Duration `mapstructure:"max_age"`
	SignerLimit int           `mapstructure:"signer_limit"`
	MinMatches  int           `mapstructure:"min_matches"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// AntiRugConfig configures bundle detection.
type AntiRugConfig struct {
	Threshold   int           `mapstructure:"threshold"`
	SlotWindow  int64         `mapstructure:"slot_window"`
	Lookback    time.Duration `mapstructure:"lookback"`
	Concurrency int           `mapstructure:"concurrency"`
}

// ScoringConfig configures the confidence score.
type ScoringConfig struct {
	BaseOffset     int      `mapstructure:"base_offset"`
	PerMatch       int      `mapstructure:"per_match"`
	BaseCeiling    int      `mapstructure:"base_ceiling"`
	NarrativeBonus int      `mapstructure:"narrative_bonus"`
	Narratives     []string `mapstructure:"narratives"`
}

// IngestionConfig configures subscription failover.
type IngestionConfig struct {
	InitialBackoff         time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff             time.Duration `mapstructure:"max_backoff"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	RecoverAfter           time.Duration `mapstructure:"recover_after"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
}

// TrackerConfig configures the status tracker.
type TrackerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	GraduateAbove float64       `mapstructure:"graduate_above"`
	RugBelow      float64       `mapstructure:"rug_below"`
	MaxTrackAge   time.Duration `mapstructure:"max_track_age"`
	Concurrency   int           `mapstructure:"concurrency"`
}

// DiscoveryConfig configures wallet discovery.
type DiscoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	MinGain         float64       `mapstructure:"min_gain"`
	StartCapCeiling float64       `mapstructure:"start_cap_ceiling"`
	PeakCapFloor    float64       `mapstructure:"peak_cap_floor"`
	MaxTimeToPeak   time.Duration `mapstructure:"max_time_to_peak"`
	Lookback        time.Duration `mapstructure:"lookback"`
	TxLimit         int           `mapstructure:"tx_limit"`
	MaxBuyers       int           `mapstructure:"max_buyers"`
	Concurrency     int           `mapstructure:"concurrency"`
	MinWinners      int           `mapstructure:"min_winners"`
}

// HealthConfig configures store failure tracking.
type HealthConfig struct {
	Threshold int `mapstructure:"threshold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("use_memory", false)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("solana.rpc_url", "")
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.program_id", "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	v.SetDefault("solana.timeout", 30*time.Second)
	v.SetDefault("solana.max_retries", 3)
	v.SetDefault("solana.rate_limit", 10.0)
	v.SetDefault("solana.max_reconnect_attempts", 3)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("clickhouse.dsn", "")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dedup_ttl", time.Hour)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "solana.signals")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.rate_limit", 4.0)
	v.SetDefault("dexscreener.search_terms", []string{})

	v.SetDefault("analyzer.max_age", 10*time.Minute)
	v.SetDefault("analyzer.signer_limit", 50)
	v.SetDefault("analyzer.min_matches", 2)
	v.SetDefault("analyzer.workers", 4)
	v.SetDefault("analyzer.queue_size", 256)
	v.SetDefault("analyzer.timeout", 30*time.Second)

	v.SetDefault("antirug.threshold", 5)
	v.SetDefault("antirug.slot_window", 0)
	v.SetDefault("antirug.lookback", 24*time.Hour)
	v.SetDefault("antirug.concurrency", 8)

	v.SetDefault("scoring.base_offset", 40)
	v.SetDefault("scoring.per_match", 10)
	v.SetDefault("scoring.base_ceiling", 100)
	v.SetDefault("scoring.narrative_bonus", 20)
	v.SetDefault("scoring.narratives", []string{})

	v.SetDefault("ingestion.initial_backoff", time.Second)
	v.SetDefault("ingestion.max_backoff", 30*time.Second)
	v.SetDefault("ingestion.max_consecutive_failures", 5)
	v.SetDefault("ingestion.recover_after", 5*time.Minute)
	v.SetDefault("ingestion.poll_interval", 5*time.Second)

	v.SetDefault("tracker.interval", 60*time.Second)
	v.SetDefault("tracker.graduate_above", 50_000.0)
	v.SetDefault("tracker.rug_below", 500.0)
	v.SetDefault("tracker.max_track_age", 48*time.Hour)
	v.SetDefault("tracker.concurrency", 8)

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.interval", 24*time.Hour)
	v.SetDefault("discovery.min_gain", 100.0)
	v.SetDefault("discovery.start_cap_ceiling", 10_000.0)
	v.SetDefault("discovery.peak_cap_floor", 1_000_000.0)
	v.SetDefault("discovery.max_time_to_peak", 48*time.Hour)
	v.SetDefault("discovery.lookback", 30*24*time.Hour)
	v.SetDefault("discovery.tx_limit", 1000)
	v.SetDefault("discovery.max_buyers", 100)
	v.SetDefault("discovery.concurrency", 4)
	v.SetDefault("discovery.min_winners", 2)

	v.SetDefault("health.threshold", 5)
}

// Load reads the configuration. path names a YAML file; when empty,
// config.yaml is looked up in . and ./config and may be absent.
// Values from .env never override variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks required endpoints and value ranges.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, lerr := zapcore.ParseLevel(c.Log.Level)
	check(lerr == nil, "log.level: unknown level %q", c.Log.Level)
	check(c.Solana.RPCURL != "", "solana.rpc_url is required")
	check(c.UseMemory || c.Postgres.DSN != "", "postgres.dsn is required unless use_memory is set")
	check(c.Telegram.Token == "" || c.Telegram.ChatID != "", "telegram.chat_id is required with telegram.token")
	check(c.Kafka.Brokers == "" || c.Kafka.Topic != "", "kafka.topic is required with kafka.brokers")

	check(c.Analyzer.MaxAge > 0, "analyzer.max_age must be positive")
	check(c.Analyzer.SignerLimit > 0, "analyzer.signer_limit must be positive")
	check(c.Analyzer.MinMatches >= 1, "analyzer.min_matches must be at least 1")
	check(c.Analyzer.Workers >= 1, "analyzer.workers must be at least 1")
	check(c.AntiRug.Threshold >= 1, "antirug.threshold must be at least 1")
	check(c.AntiRug.SlotWindow >= 0, "antirug.slot_window must not be negative")
	check(c.Scoring.NarrativeBonus >= 0, "scoring.narrative_bonus must not be negative")
	check(c.Scoring.BaseCeiling > 0 && c.Scoring.BaseCeiling <= 100, "scoring.base_ceiling must be in (0, 100]")
	check(c.Tracker.GraduateAbove > c.Tracker.RugBelow, "tracker.graduate_above must exceed tracker.rug_below")
	check(c.Discovery.MinWinners >= 2, "discovery.min_winners must be at least 2")
	check(c.Health.Threshold >= 1, "health.threshold must be at least 1")

	return errors.Join(errs...)
}

// Watch reloads the file on change and passes the new configuration to
// onChange. It is a no-op when no config file was read.
func Watch(cfg *Config, onChange func(*Config)) {
	if cfg.v == nil || cfg.v.ConfigFileUsed() == "" {
		return
	}
	v := cfg.v
	v.OnConfigChange(func(fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			return
		}
		onChange(next)
	})
	v.WatchConfig()
}
