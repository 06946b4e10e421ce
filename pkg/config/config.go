package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Quota      QuotaConfig      `yaml:"quota"`
	Stream     StreamConfig     `yaml:"stream"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Engines    []EngineConfig   `yaml:"engines"`
	Runner     RunnerConfig     `yaml:"runner"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	Listen     string `yaml:"listen"`
	AdminToken string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RouteLimit is a per-route admission ceiling within a trailing window.
type RouteLimit struct {
	Limit   int `yaml:"limit"`
	WindowS int `yaml:"window_s"`
}

type RateLimitConfig struct {
	Disabled       bool                  `yaml:"disabled"`
	SweepIntervalS int                   `yaml:"sweep_interval_s"`
	Routes         map[string]RouteLimit `yaml:"routes"`
}

type QuotaConfig struct {
	Disabled bool `yaml:"disabled"`
}

type StreamConfig struct {
	HeartbeatIntervalS int `yaml:"heartbeat_interval_s"`
	ChannelCapacity    int `yaml:"channel_capacity"`
}

type ReconcilerConfig struct {
	SweepIntervalS int `yaml:"sweep_interval_s"`
	StuckAfterMins int `yaml:"stuck_after_minutes"`
}

type AnalysisConfig struct {
	RulesFile     string `yaml:"rules_file"`
	MaxContentLen int    `yaml:"max_content_length"`
}

// EngineConfig describes one answer engine the monitor runner probes.
type EngineConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	TimeoutS int    `yaml:"timeout_s"`
}

type RunnerConfig struct {
	ServerURL       string `yaml:"server_url"`
	APIKey          string `yaml:"api_key"`
	IntervalS       int    `yaml:"interval_s"`
	JitterS         int    `yaml:"jitter_s"`
	RetryInitialMs  int    `yaml:"retry_initial_ms"`
	RetryMaxMs      int    `yaml:"retry_max_ms"`
	RetryMaxRetries int    `yaml:"retry_max_attempts"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Database: DatabaseConfig{
			Path: "deepzd.db",
		},
		RateLimit: RateLimitConfig{
			Disabled:       false,
			SweepIntervalS: 60,
			Routes: map[string]RouteLimit{
				"analyze": {Limit: 10, WindowS: 60},
				"check":   {Limit: 5, WindowS: 60},
				"api":     {Limit: 60, WindowS: 60},
			},
		},
		Stream: StreamConfig{
			HeartbeatIntervalS: 15,
			ChannelCapacity:    16,
		},
		Reconciler: ReconcilerConfig{
			SweepIntervalS: 300,
			StuckAfterMins: 30,
		},
		Analysis: AnalysisConfig{
			MaxContentLen: 100_000,
		},
		Runner: RunnerConfig{
			ServerURL:       "http://localhost:8080",
			IntervalS:       3600,
			JitterS:         60,
			RetryInitialMs:  500,
			RetryMaxMs:      5000,
			RetryMaxRetries: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from file with env var overrides
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if listen := os.Getenv("DEEPZD_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if token := os.Getenv("DEEPZD_ADMIN_TOKEN"); token != "" {
		cfg.Server.AdminToken = token
	}
	if db := os.Getenv("DEEPZD_DB"); db != "" {
		cfg.Database.Path = db
	}
	if level := os.Getenv("DEEPZD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if v := os.Getenv("DEEPZD_DISABLE_RATE_LIMIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Disabled = b
		}
	}
	if v := os.Getenv("DEEPZD_DISABLE_QUOTA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Quota.Disabled = b
		}
	}
	if key := os.Getenv("DEEPZD_API_KEY"); key != "" {
		cfg.Runner.APIKey = key
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if c.Database.Path == "" {
		return ErrMissingDatabase
	}
	if c.Stream.HeartbeatIntervalS <= 0 {
		c.Stream.HeartbeatIntervalS = 15
	}
	if c.Stream.ChannelCapacity <= 0 {
		c.Stream.ChannelCapacity = 16
	}
	if c.RateLimit.SweepIntervalS <= 0 {
		c.RateLimit.SweepIntervalS = 60
	}
	for name, rl := range c.RateLimit.Routes {
		if rl.Limit <= 0 || rl.WindowS <= 0 {
			return &Error{"invalid rate limit for route " + name}
		}
	}
	if c.Reconciler.SweepIntervalS <= 0 {
		c.Reconciler.SweepIntervalS = 300
	}
	if c.Reconciler.StuckAfterMins <= 0 {
		c.Reconciler.StuckAfterMins = 30
	}
	if c.Analysis.MaxContentLen <= 0 {
		c.Analysis.MaxContentLen = 100_000
	}
	for i := range c.Engines {
		if c.Engines[i].Name == "" || c.Engines[i].URL == "" {
			return &Error{"engine entries require name and url"}
		}
		if c.Engines[i].TimeoutS <= 0 {
			c.Engines[i].TimeoutS = 10
		}
	}
	if c.Runner.IntervalS < 60 {
		c.Runner.IntervalS = 60
	}
	if c.Runner.RetryInitialMs <= 0 {
		c.Runner.RetryInitialMs = 500
	}
	if c.Runner.RetryMaxMs < c.Runner.RetryInitialMs {
		c.Runner.RetryMaxMs = c.Runner.RetryInitialMs
	}
	if c.Runner.RetryMaxRetries < 0 {
		c.Runner.RetryMaxRetries = 5
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

var (
	ErrMissingListen   = &Error{"server listen address is required"}
	ErrMissingDatabase = &Error{"database path is required"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
