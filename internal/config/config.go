package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Quota      QuotaConfig     `mapstructure:"quota"`
	Pricing    PricingConfig   `mapstructure:"pricing"`
	Janitor    JanitorConfig   `mapstructure:"janitor"`
	Ingest     IngestConfig    `mapstructure:"ingest"`
	Admin      AdminConfig     `mapstructure:"admin"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// QuotaConfig holds the limits applied when a tenant's quota row is created
// lazily on first use.
type QuotaConfig struct {
	DefaultTokenLimit      int64 `mapstructure:"default_token_limit"`
	DefaultCostLimitMicros int64 `mapstructure:"default_cost_limit_micros"`
}

type ModelPrice struct {
	Name              string `mapstructure:"name"`
	InputPer1KMicros  int64  `mapstructure:"input_per_1k_micros"`
	OutputPer1KMicros int64  `mapstructure:"output_per_1k_micros"`
}

// PricingConfig is the static price table: micro-dollars per 1,000 tokens.
type PricingConfig struct {
	DefaultModel string `mapstructure:"default_model"`
	// FallbackEstimateMicros is the conservative static reserve used when a
	// caller supplies no worst-case token bounds; the limit check always runs.
	FallbackEstimateMicros int64        `mapstructure:"fallback_estimate_micros"`
	Models                 []ModelPrice `mapstructure:"models"`
}

// JanitorConfig bounds how long an orphaned reservation can hold headroom.
type JanitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Batch    int           `mapstructure:"batch"`
}

type IngestConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (QMETER_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (QMETER_*)
	v.SetEnvPrefix("QMETER")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
