package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port" envconfig:"SERVER_PORT"`
	} `yaml:"server"`
	DataSource struct {
		Provider            string `yaml:"provider" envconfig:"DATA_PROVIDER"`
		APIKey              string `yaml:"api_key" envconfig:"POLYGON_API_KEY"`
		FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds" envconfig:"FETCH_TIMEOUT_SECONDS"`
	} `yaml:"data_source"`
	Market struct {
		Timezone    string `yaml:"timezone" envconfig:"MARKET_TIMEZONE"`
		OpenTime    string `yaml:"open_time" envconfig:"MARKET_OPEN"`
		CloseTime   string `yaml:"close_time" envconfig:"MARKET_CLOSE"`
		CaptureTime string `yaml:"capture_time" envconfig:"CAPTURE_TIME"`
	} `yaml:"market"`
	Monitor struct {
		PollSeconds          int  `yaml:"poll_seconds" envconfig:"POLL_SECONDS"`
		MaxConcurrentFetches int  `yaml:"max_concurrent_fetches" envconfig:"MAX_CONCURRENT_FETCHES"`
		SaveIntervalSeconds  int  `yaml:"save_interval_seconds" envconfig:"SAVE_INTERVAL_SECONDS"`
		KeepLastPriceOnReset bool `yaml:"keep_last_price_on_reset" envconfig:"KEEP_LAST_PRICE_ON_RESET"`
	} `yaml:"monitor"`
	Symbols struct {
		Seed   []string `yaml:"seed" envconfig:"SYMBOLS"`
		Suffix string   `yaml:"suffix" envconfig:"SYMBOL_SUFFIX"`
	} `yaml:"symbols"`
	Persistence struct {
		Backend    string `yaml:"backend" envconfig:"PERSIST_BACKEND"`
		StateFile  string `yaml:"state_file" envconfig:"STATE_FILE"`
		SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	} `yaml:"persistence"`
	Proxy string `yaml:"proxy" envconfig:"HTTPS_PROXY"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then fills defaults. The file may be absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.FetchTimeoutSeconds == 0 {
		c.DataSource.FetchTimeoutSeconds = 10
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "Asia/Kolkata"
	}
	if c.Market.OpenTime == "" {
		c.Market.OpenTime = "09:15"
	}
	if c.Market.CloseTime == "" {
		c.Market.CloseTime = "15:30"
	}
	if c.Market.CaptureTime == "" {
		c.Market.CaptureTime = "10:30"
	}
	if c.Monitor.PollSeconds == 0 {
		c.Monitor.PollSeconds = 5
	}
	if c.Monitor.MaxConcurrentFetches == 0 {
		c.Monitor.MaxConcurrentFetches = 5
	}
	if c.Monitor.SaveIntervalSeconds == 0 {
		c.Monitor.SaveIntervalSeconds = 300
	}
	if c.Symbols.Suffix == "" {
		c.Symbols.Suffix = ".NS"
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "file"
	}
	if c.Persistence.StateFile == "" {
		c.Persistence.StateFile = "data/bandwatch_state.json"
	}
	if c.Persistence.SQLitePath == "" {
		c.Persistence.SQLitePath = "data/bandwatch.db"
	}
}

// Validate checks that the configuration can actually drive the monitor.
// Any error here is fatal: the process must refuse to start.
func (c *Config) Validate() error {
	switch c.DataSource.Provider {
	case "yahoo", "polygon", "mock":
	default:
		return fmt.Errorf("data_source.provider %q is not one of yahoo, polygon, mock", c.DataSource.Provider)
	}
	if c.DataSource.Provider == "polygon" && c.DataSource.APIKey == "" {
		return fmt.Errorf("data_source.api_key is required for the polygon provider")
	}
	switch c.Persistence.Backend {
	case "file", "sqlite", "none":
	default:
		return fmt.Errorf("persistence.backend %q is not one of file, sqlite, none", c.Persistence.Backend)
	}
	if c.Monitor.PollSeconds <= 0 {
		return fmt.Errorf("monitor.poll_seconds must be positive")
	}
	if c.Monitor.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("monitor.max_concurrent_fetches must be positive")
	}
	if c.Monitor.SaveIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.save_interval_seconds must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	sess, err := c.Session()
	if err != nil {
		return err
	}
	if !sess.Open.Before(sess.Capture) || !sess.Capture.Before(sess.Close) {
		return fmt.Errorf("market times must satisfy open < capture < close (got %s, %s, %s)",
			c.Market.OpenTime, c.Market.CaptureTime, c.Market.CloseTime)
	}
	return nil
}

// TimeOfDay is a wall-clock minute within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return t, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &t.Hour, &t.Minute); err != nil {
		return t, fmt.Errorf("time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return t, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

// On anchors the time-of-day on the given calendar day, in that day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// Before reports whether t is earlier in the day than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.Hour < u.Hour || (t.Hour == u.Hour && t.Minute < u.Minute)
}

// Session holds the resolved trading-session clock parameters.
type Session struct {
	Loc     *time.Location
	Open    TimeOfDay
	Capture TimeOfDay
	Close   TimeOfDay
}

// Session resolves the market timezone and times-of-day from the raw config.
func (c *Config) Session() (Session, error) {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return Session{}, fmt.Errorf("market.timezone: %w", err)
	}
	open, err := ParseTimeOfDay(c.Market.OpenTime)
	if err != nil {
		return Session{}, fmt.Errorf("market.open_time: %w", err)
	}
	capture, err := ParseTimeOfDay(c.Market.CaptureTime)
	if err != nil {
		return Session{}, fmt.Errorf("market.capture_time: %w", err)
	}
	cls, err := ParseTimeOfDay(c.Market.CloseTime)
	if err != nil {
		return Session{}, fmt.Errorf("market.close_time: %w", err)
	}
	return Session{Loc: loc, Open: open, Capture: capture, Close: cls}, nil
}

// IsOpen reports whether the session is open at the given instant.
func (s Session) IsOpen(now time.Time) bool {
	local := now.In(s.Loc)
	return !local.Before(s.Open.On(local)) && !local.After(s.Close.On(local))
}
