package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the reputation core. Components receive
// their own section at construction; nothing reads this globally.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Training    TrainingConfig    `yaml:"training"`
	Bounce      BounceConfig      `yaml:"bounce"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis connection used by the dispatch gate
// and the training locks. Leave URL empty to run with in-process fallbacks.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// MetricsConfig configures the MTA file ingestor.
type MetricsConfig struct {
	LogDir         string `yaml:"log_dir"`
	DefaultHours   int    `yaml:"default_hours"`
	MaxLineBytes   int    `yaml:"max_line_bytes"`
	AnalyticsHours []int  `yaml:"analytics_hours"` // windows for comprehensive analytics
	IngestSchedule int    `yaml:"ingest_interval_seconds"`
}

// IngestInterval returns the scheduled ingest cadence.
func (c MetricsConfig) IngestInterval() time.Duration {
	return time.Duration(c.IngestSchedule) * time.Second
}

// TrainingConfig holds the default thresholds applied to domains without an
// explicit per-domain config, plus the analysis schedule. All thresholds are
// operator-configurable; nothing here is hard-coded policy.
type TrainingConfig struct {
	AdvanceBouncePct     float64 `yaml:"advance_bounce_pct"`
	AdvanceComplaintPct  float64 `yaml:"advance_complaint_pct"`
	RollbackBouncePct    float64 `yaml:"rollback_bounce_pct"`
	RollbackComplaintPct float64 `yaml:"rollback_complaint_pct"`
	MinDwellHours        int     `yaml:"min_dwell_hours"`
	LookbackHours        int     `yaml:"lookback_hours"`
	StageCaps            []int   `yaml:"stage_caps"` // daily cap per stage, ascending
	IntervalSeconds      int     `yaml:"interval_seconds"`
	LockTTLSeconds       int     `yaml:"lock_ttl_seconds"`
}

// Interval returns the scheduled analysis cadence.
func (c TrainingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns how long a per-domain analysis lock may be held.
func (c TrainingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// BounceConfig configures the mailbox bounce collector.
type BounceConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	ConnectTimeoutSecs  int    `yaml:"connect_timeout_seconds"`
	MaxConcurrent       int    `yaml:"max_concurrent"`
	SoftBounceThreshold int    `yaml:"soft_bounce_threshold"`
	SoftBounceWindowHrs int    `yaml:"soft_bounce_window_hours"`
	SecretKey           string `yaml:"secret_key"` // passphrase for credential secrets at rest
}

// PollInterval returns how often each credential becomes due.
func (c BounceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ConnectTimeout returns the mailbox dial/handshake timeout.
func (c BounceConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// SoftBounceWindow returns the window in which repeated soft bounces
// accumulate toward suppression.
func (c BounceConfig) SoftBounceWindow() time.Duration {
	return time.Duration(c.SoftBounceWindowHrs) * time.Hour
}

// DispatchConfig configures the dispatch gate's token buckets and the
// campaign abort guard.
type DispatchConfig struct {
	RatePeriodSeconds int     `yaml:"rate_period_seconds"` // bucket refill period
	AbortFailurePct   float64 `yaml:"abort_failure_pct"`   // 0 disables the abort check
	AbortMinAttempts  int     `yaml:"abort_min_attempts"`
}

// RatePeriod returns the token-bucket refill period.
func (c DispatchConfig) RatePeriod() time.Duration {
	return time.Duration(c.RatePeriodSeconds) * time.Second
}

// UnsubscribeConfig holds the HMAC key for unsubscribe token resolution.
type UnsubscribeConfig struct {
	SigningKey string `yaml:"signing_key"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Metrics.DefaultHours == 0 {
		cfg.Metrics.DefaultHours = 24
	}
	if cfg.Metrics.MaxLineBytes == 0 {
		cfg.Metrics.MaxLineBytes = 1024 * 1024
	}
	if len(cfg.Metrics.AnalyticsHours) == 0 {
		cfg.Metrics.AnalyticsHours = []int{1, 24, 168}
	}
	if cfg.Metrics.IngestSchedule == 0 {
		cfg.Metrics.IngestSchedule = 300
	}
	if cfg.Training.AdvanceBouncePct == 0 {
		cfg.Training.AdvanceBouncePct = 2.0
	}
	if cfg.Training.AdvanceComplaintPct == 0 {
		cfg.Training.AdvanceComplaintPct = 0.5
	}
	if cfg.Training.RollbackBouncePct == 0 {
		cfg.Training.RollbackBouncePct = 5.0
	}
	if cfg.Training.RollbackComplaintPct == 0 {
		cfg.Training.RollbackComplaintPct = 1.0
	}
	if cfg.Training.MinDwellHours == 0 {
		cfg.Training.MinDwellHours = 24
	}
	if cfg.Training.LookbackHours == 0 {
		cfg.Training.LookbackHours = 24
	}
	if len(cfg.Training.StageCaps) == 0 {
		cfg.Training.StageCaps = []int{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000}
	}
	if cfg.Training.IntervalSeconds == 0 {
		cfg.Training.IntervalSeconds = 3600
	}
	if cfg.Training.LockTTLSeconds == 0 {
		cfg.Training.LockTTLSeconds = 120
	}
	if cfg.Bounce.PollIntervalSeconds == 0 {
		cfg.Bounce.PollIntervalSeconds = 900
	}
	if cfg.Bounce.ConnectTimeoutSecs == 0 {
		cfg.Bounce.ConnectTimeoutSecs = 30
	}
	if cfg.Bounce.MaxConcurrent == 0 {
		cfg.Bounce.MaxConcurrent = 8
	}
	if cfg.Bounce.SoftBounceThreshold == 0 {
		cfg.Bounce.SoftBounceThreshold = 3
	}
	if cfg.Bounce.SoftBounceWindowHrs == 0 {
		cfg.Bounce.SoftBounceWindowHrs = 72
	}
	if cfg.Dispatch.RatePeriodSeconds == 0 {
		cfg.Dispatch.RatePeriodSeconds = 86400
	}
	if cfg.Dispatch.AbortFailurePct == 0 {
		cfg.Dispatch.AbortFailurePct = 20.0
	}
	if cfg.Dispatch.AbortMinAttempts == 0 {
		cfg.Dispatch.AbortMinAttempts = 10
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if dir := os.Getenv("MTA_LOG_DIR"); dir != "" {
		cfg.Metrics.LogDir = dir
	}
	if key := os.Getenv("BOUNCE_SECRET_KEY"); key != "" {
		cfg.Bounce.SecretKey = key
	}
	if key := os.Getenv("UNSUBSCRIBE_SIGNING_KEY"); key != "" {
		cfg.Unsubscribe.SigningKey = key
	}
	if v := os.Getenv("TRAINING_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Training.IntervalSeconds = n
		}
	}

	return cfg, nil
}
