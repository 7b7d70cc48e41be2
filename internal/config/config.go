package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	Model           string `yaml:"model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // global cap on outbound inference calls
}

// EngineConfig holds the extraction pipeline policy knobs. The chunk window
// size is deliberately configuration, not a constant: the page thresholds
// are documented policy but the internal window size is an operational
// choice (25 pages by default).
type EngineConfig struct {
	SinglePassMaxPages int `yaml:"single_pass_max_pages"` // <= this: one call
	ParallelMinPages   int `yaml:"parallel_min_pages"`    // > this: chunked-parallel
	WindowPages        int `yaml:"window_pages"`

	CallTimeout      time.Duration `yaml:"call_timeout"`
	CallMaxAttempts  int           `yaml:"call_max_attempts"`
	CallBackoffBase  time.Duration `yaml:"call_backoff_base"`
	JobMaxRetries    int           `yaml:"job_max_retries"` // whole-job extracting re-entries
	JobWallClock     time.Duration `yaml:"job_wall_clock"`
	JobTokenCeiling  int64         `yaml:"job_token_ceiling"`
	Workers          int           `yaml:"workers"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RegulationTable  string        `yaml:"regulation_table"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Engine   EngineConfig   `yaml:"engine"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	// The lock only covers submission intake, not the job's lifetime, so a
	// crashed submitter must release the fingerprint quickly.
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.OpenAIBaseURL == "" {
		cfg.AI.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	applyEngineDefaults(&cfg.Engine)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Engine.SinglePassMaxPages >= cfg.Engine.ParallelMinPages {
		return nil, errors.New("engine.single_pass_max_pages must be below engine.parallel_min_pages")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEngineDefaults(e *EngineConfig) {
	if e.SinglePassMaxPages <= 0 {
		e.SinglePassMaxPages = 60
	}
	if e.ParallelMinPages <= 0 {
		e.ParallelMinPages = 150
	}
	if e.WindowPages <= 0 {
		e.WindowPages = 25
	}
	if e.CallTimeout <= 0 {
		e.CallTimeout = 2 * time.Minute
	}
	if e.CallMaxAttempts <= 0 {
		e.CallMaxAttempts = 3
	}
	if e.CallBackoffBase <= 0 {
		e.CallBackoffBase = 2 * time.Second
	}
	if e.JobMaxRetries < 0 {
		e.JobMaxRetries = 0
	} else if e.JobMaxRetries == 0 {
		e.JobMaxRetries = 2
	}
	if e.JobWallClock <= 0 {
		e.JobWallClock = 30 * time.Minute
	}
	if e.JobTokenCeiling <= 0 {
		e.JobTokenCeiling = 2_000_000
	}
	if e.Workers <= 0 {
		e.Workers = 4
	}
	if e.PollInterval <= 0 {
		e.PollInterval = 500 * time.Millisecond
	}
	if e.RegulationTable == "" {
		e.RegulationTable = "regulation_table.yaml"
	}
}
