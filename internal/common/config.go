package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Ledger      LedgerConfig    `toml:"ledger"`
	Breaker     BreakerConfig   `toml:"breaker"`
	Backoff     BackoffConfig   `toml:"backoff"`
	Agent       AgentConfig     `toml:"agent"`
	EODHD       EODHDConfig     `toml:"eodhd"`
	NATS        NATSConfig      `toml:"nats"`
	Promotion   PromotionConfig `toml:"promotion"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Cost        CostConfig      `toml:"cost"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// LedgerConfig selects the rate-limit ledger backend.
type LedgerConfig struct {
	Backend       string `toml:"backend"`        // "badger" (embedded) or "redis" (shared)
	RedisAddr     string `toml:"redis_addr"`     // host:port
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisKey      string `toml:"redis_key"`   // Sorted set key prefix
	QueryLimit    int    `toml:"query_limit"` // Max events returned per recent-stats scan
}

// BreakerConfig holds the circuit breaker and pacing thresholds.
type BreakerConfig struct {
	Window         Duration `toml:"window"`          // Breaker scan window (default: 30m)
	Threshold      int      `toml:"threshold"`       // Events in window that open the breaker (default: 5)
	Cooldown       Duration `toml:"cooldown"`        // Open duration after the most recent event (default: 15m)
	PacingWindow   Duration `toml:"pacing_window"`   // Pacing scan window (default: 10m)
	PacingMinimum  Duration `toml:"pacing_minimum"`  // Delay when no recent events (default: 10s)
	PacingRecent   Duration `toml:"pacing_recent"`   // Any event within 2m (default: 30s)
	PacingElevated Duration `toml:"pacing_elevated"` // Two events within 3m (default: 60s)
	PacingHeavy    Duration `toml:"pacing_heavy"`    // Three events within 5m (default: 180s)
}

// BackoffConfig holds the retry delay policy.
type BackoffConfig struct {
	Base           Duration   `toml:"base"`             // Transient failure base delay (default: 2s)
	RateLimitTable []Duration `toml:"rate_limit_table"` // Progressive 429 delays (default: 30s, 60s, 120s)
	JitterMin      float64    `toml:"jitter_min"`       // default: 0.8
	JitterMax      float64    `toml:"jitter_max"`       // default: 1.2
	Seed           int64      `toml:"seed"`             // 0 = seeded from clock
}

// AgentConfig configures the remote analysis service client.
type AgentConfig struct {
	BaseURL              string   `toml:"base_url"`
	AppName              string   `toml:"app_name"`
	UserID               string   `toml:"user_id"`
	PreferredLanguage    string   `toml:"preferred_language"` // Session state value
	Streaming            bool     `toml:"streaming"`
	SessionTimeout       Duration `toml:"session_timeout"`    // default: 60s
	AttemptTimeout       Duration `toml:"attempt_timeout"`    // default: 5m
	MaxRetries           int      `toml:"max_retries"`        // Transport attempts (default: 5)
	CredentialsFile      string   `toml:"credentials_file"`
	DisableAuth          bool     `toml:"disable_auth"`       // Skip identity tokens (local agent)
	MaxValidationRetries int      `toml:"max_validation_retries"`
	ValidationBaseDelay  Duration `toml:"validation_base_delay"`
	TemplatesDir         string   `toml:"templates_dir"` // Prompt template overrides
}

// EODHDConfig configures the market data client.
type EODHDConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second
	Exchange  string `toml:"exchange"`   // Default exchange suffix, e.g. "US"
	NewsLimit int    `toml:"news_limit"`
}

// NATSConfig configures the promotion publisher.
type NATSConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           string   `toml:"url"`
	Name          string   `toml:"name"`
	Subject       string   `toml:"subject"`
	MaxReconnects int      `toml:"max_reconnects"`
	ReconnectWait Duration `toml:"reconnect_wait"`
	Timeout       Duration `toml:"timeout"`
	Token         string   `toml:"token"`
}

// PromotionConfig controls when a promotion message is published.
type PromotionConfig struct {
	Language     string `toml:"language"`      // Item language that decides promotion (default: "en")
	SeriesLength int    `toml:"series_length"` // Closing prices included in seriesData
}

// SchedulerConfig controls scheduled daily runs.
type SchedulerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Schedule      string   `toml:"schedule"` // 5-field cron expression
	Tickers       []string `toml:"tickers"`
	MaxConcurrent int      `toml:"max_concurrent"`
}

// CostConfig holds token prices used for cost estimates.
type CostConfig struct {
	InputPerMTok  float64 `toml:"input_per_mtok"`  // USD per million prompt tokens
	OutputPerMTok float64 `toml:"output_per_mtok"` // USD per million response tokens
}

// Duration is a time.Duration that decodes from TOML strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Durations converts a configured duration list.
func Durations(values []Duration) []time.Duration {
	result := make([]time.Duration, len(values))
	for i, v := range values {
		result[i] = v.Duration
	}
	return result
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/veloryn",
			},
		},
		Ledger: LedgerConfig{
			Backend:    "badger",
			RedisAddr:  "localhost:6379",
			RedisKey:   "veloryn:ledger",
			QueryLimit: 10,
		},
		Breaker: BreakerConfig{
			Window:         Duration{30 * time.Minute},
			Threshold:      5,
			Cooldown:       Duration{15 * time.Minute},
			PacingWindow:   Duration{10 * time.Minute},
			PacingMinimum:  Duration{10 * time.Second},
			PacingRecent:   Duration{30 * time.Second},
			PacingElevated: Duration{60 * time.Second},
			PacingHeavy:    Duration{180 * time.Second},
		},
		Backoff: BackoffConfig{
			Base:           Duration{2 * time.Second},
			RateLimitTable: []Duration{{30 * time.Second}, {60 * time.Second}, {120 * time.Second}},
			JitterMin:      0.8,
			JitterMax:      1.2,
		},
		Agent: AgentConfig{
			AppName:              "financial_analysis_agent",
			UserID:               "cloud_function",
			PreferredLanguage:    "English",
			Streaming:            true,
			SessionTimeout:       Duration{60 * time.Second},
			AttemptTimeout:       Duration{5 * time.Minute},
			MaxRetries:           5,
			MaxValidationRetries: 3,
			ValidationBaseDelay:  Duration{5 * time.Second},
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
			Exchange:  "US",
			NewsLimit: 20,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Name:          "veloryn",
			Subject:       "veloryn.promotions",
			MaxReconnects: -1,
			ReconnectWait: Duration{2 * time.Second},
			Timeout:       Duration{5 * time.Second},
		},
		Promotion: PromotionConfig{
			Language:     "en",
			SeriesLength: 30,
		},
		Scheduler: SchedulerConfig{
			Schedule:      "0 6 * * 1-5",
			MaxConcurrent: 2,
		},
		Cost: CostConfig{
			InputPerMTok:  0.30,
			OutputPerMTok: 2.50,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Environment variables override all file configs
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VELORYN_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("VELORYN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VELORYN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("VELORYN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VELORYN_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("VELORYN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Ledger configuration
	if backend := os.Getenv("VELORYN_LEDGER_BACKEND"); backend != "" {
		config.Ledger.Backend = backend
	}
	if addr := os.Getenv("VELORYN_REDIS_ADDR"); addr != "" {
		config.Ledger.RedisAddr = addr
	}
	if password := os.Getenv("VELORYN_REDIS_PASSWORD"); password != "" {
		config.Ledger.RedisPassword = password
	}

	// Agent configuration
	if baseURL := os.Getenv("VELORYN_AGENT_URL"); baseURL != "" {
		config.Agent.BaseURL = baseURL
	} else if baseURL := os.Getenv("CLOUD_RUN_URL"); baseURL != "" {
		config.Agent.BaseURL = baseURL
	}
	if appName := os.Getenv("VELORYN_AGENT_APP_NAME"); appName != "" {
		config.Agent.AppName = appName
	}
	if credentials := os.Getenv("VELORYN_AGENT_CREDENTIALS_FILE"); credentials != "" {
		config.Agent.CredentialsFile = credentials
	} else if credentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credentials != "" {
		config.Agent.CredentialsFile = credentials
	}
	if streaming := os.Getenv("VELORYN_AGENT_STREAMING"); streaming != "" {
		if s, err := strconv.ParseBool(streaming); err == nil {
			config.Agent.Streaming = s
		}
	}
	if timeout := os.Getenv("VELORYN_AGENT_ATTEMPT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Agent.AttemptTimeout = Duration{d}
		}
	}

	// EODHD configuration
	if apiKey := os.Getenv("VELORYN_EODHD_API_KEY"); apiKey != "" {
		config.EODHD.APIKey = apiKey
	} else if apiKey := os.Getenv("EODHD_API_KEY"); apiKey != "" {
		config.EODHD.APIKey = apiKey
	}

	// NATS configuration
	if url := os.Getenv("VELORYN_NATS_URL"); url != "" {
		config.NATS.URL = url
		config.NATS.Enabled = true
	}
	if subject := os.Getenv("VELORYN_NATS_SUBJECT"); subject != "" {
		config.NATS.Subject = subject
	}

	// Scheduler configuration
	if tickers := os.Getenv("VELORYN_TICKERS"); tickers != "" {
		config.Scheduler.Tickers = splitList(tickers)
	}
	if schedule := os.Getenv("VELORYN_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "badger", "redis":
	default:
		return fmt.Errorf("invalid ledger backend %q: expected badger or redis", c.Ledger.Backend)
	}
	if c.Backoff.JitterMin <= 0 || c.Backoff.JitterMax < c.Backoff.JitterMin {
		return fmt.Errorf("invalid jitter bounds [%v, %v]", c.Backoff.JitterMin, c.Backoff.JitterMax)
	}
	if len(c.Backoff.RateLimitTable) == 0 {
		return fmt.Errorf("backoff rate_limit_table must not be empty")
	}
	if c.Agent.MaxRetries < 1 {
		return fmt.Errorf("agent max_retries must be at least 1, got %d", c.Agent.MaxRetries)
	}
	if c.Agent.MaxValidationRetries < 1 {
		return fmt.Errorf("agent max_validation_retries must be at least 1, got %d", c.Agent.MaxValidationRetries)
	}
	if c.IsProduction() && c.Agent.DisableAuth {
		return fmt.Errorf("agent disable_auth is not allowed in production")
	}
	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler schedule: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func splitList(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
