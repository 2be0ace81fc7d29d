package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pair-engine-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Broker   BrokerConfig   `yaml:"broker"`
	Engine   EngineConfig   `yaml:"engine"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Store    StoreConfig    `yaml:"store"`
	Log      logger.Config  `yaml:"log"`
}

type BrokerConfig struct {
	BaseURL    string  `yaml:"baseURL"`
	WSEndpoint string  `yaml:"wsEndpoint"` // 留空则不接订单推送流
	APIKey     string  `yaml:"apiKey"`
	APISecret  string  `yaml:"apiSecret"`
	RateLimit  float64 `yaml:"rateLimit"` // REST 限流：每秒令牌数
	RateBurst  int     `yaml:"rateBurst"` // REST 限流：最大突发令牌数
}

type EngineConfig struct {
	PollIntervalSec int `yaml:"pollIntervalSec"` // 轮询周期（秒），默认 15
	PairConcurrency int `yaml:"pairConcurrency"` // 单轮并行配对数，默认 4
	FetchAttempts   int `yaml:"fetchAttempts"`   // 状态查询最大尝试次数，默认 3
	FetchBackoffMs  int `yaml:"fetchBackoffMs"`  // 重试退避基数（毫秒），默认 500
}

type ScheduleConfig struct {
	Timezone    string   `yaml:"timezone"`    // IANA 时区，如 Asia/Kolkata
	MarketOpen  string   `yaml:"marketOpen"`  // "09:15"
	MarketClose string   `yaml:"marketClose"` // "15:30"
	Weekdays    []string `yaml:"weekdays"`    // 留空表示周一至周五
}

type StoreConfig struct {
	Path string `yaml:"path"` // SQLite 数据库路径；":memory:" 仅供测试
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("PW_BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("PW_BROKER_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Engine.PollIntervalSec <= 0 {
		cfg.Engine.PollIntervalSec = 15
	}
	if cfg.Engine.PairConcurrency <= 0 {
		cfg.Engine.PairConcurrency = 4
	}
	if cfg.Engine.FetchAttempts <= 0 {
		cfg.Engine.FetchAttempts = 3
	}
	if cfg.Engine.FetchBackoffMs <= 0 {
		cfg.Engine.FetchBackoffMs = 500
	}
	if cfg.Broker.RateLimit <= 0 {
		cfg.Broker.RateLimit = 5
	}
	if cfg.Broker.RateBurst <= 0 {
		cfg.Broker.RateBurst = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Broker.BaseURL == "" {
		return errors.New("broker.baseURL is required")
	}
	if cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "" {
		return errors.New("broker.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Schedule.Timezone == "" {
		return errors.New("schedule.timezone is required")
	}
	if cfg.Schedule.MarketOpen == "" || cfg.Schedule.MarketClose == "" {
		return errors.New("schedule.marketOpen/marketClose is required")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if cfg.Engine.PollIntervalSec < 1 {
		return fmt.Errorf("engine.pollIntervalSec must be >= 1, got %d", cfg.Engine.PollIntervalSec)
	}
	return nil
}
