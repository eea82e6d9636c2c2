// Package config implements reelforge's layered configuration: an
// optional YAML file, overlaid by environment variables (loaded from a
// .env file via godotenv when present) — the same precedence and
// "Effective()" defaulting pattern the teacher's HubConfig uses. No CLI
// flag overrides a config field.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration surface, covering every
// environment variable named in spec §6.
type Config struct {
	APIHost string `yaml:"api_host"`
	APIPort int    `yaml:"api_port"`

	MaxConcurrentJobs    int `yaml:"max_concurrent_jobs"`
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`

	MaxRetries            int `yaml:"max_retries"`
	RetryBaseDelaySeconds int `yaml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int `yaml:"retry_max_delay_seconds"`

	CalendarMinGapHours int `yaml:"calendar_min_gap_hours"`
	CalendarMaxPerDay   int `yaml:"calendar_max_per_day"`

	JobStoreURL string `yaml:"job_store_url"`
	Timezone    string `yaml:"timezone"`

	LogFormat string `yaml:"log_format"`
	Verbose   bool   `yaml:"verbose"`

	// AdminToken authenticates API requests (bearer, compared in constant
	// time with crypto/subtle — see pkg/reelforge/api).
	AdminToken string `yaml:"admin_token"`
}

// Effective returns a copy of c with every unset field filled in with
// its documented default (spec §6). A negative MaxRetries counts as
// unset, so an explicit 0 is kept.
func (c Config) Effective() Config {
	out := c

	if out.APIHost == "" {
		out.APIHost = "0.0.0.0"
	}
	if out.APIPort == 0 {
		out.APIPort = 8000
	}
	if out.MaxConcurrentJobs <= 0 {
		out.MaxConcurrentJobs = 2
	}
	if out.CheckIntervalSeconds <= 0 {
		out.CheckIntervalSeconds = 60
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 3
	}
	if out.RetryBaseDelaySeconds <= 0 {
		out.RetryBaseDelaySeconds = 60
	}
	if out.RetryMaxDelaySeconds <= 0 {
		out.RetryMaxDelaySeconds = 3600
	}
	if out.CalendarMinGapHours <= 0 {
		out.CalendarMinGapHours = 6
	}
	if out.CalendarMaxPerDay <= 0 {
		out.CalendarMaxPerDay = 3
	}
	if out.JobStoreURL == "" {
		out.JobStoreURL = "sqlite://./data/reelforge.db"
	}
	if out.Timezone == "" {
		out.Timezone = "UTC"
	}
	if out.LogFormat == "" {
		out.LogFormat = "json"
	}

	return out
}

// CheckInterval, RetryBaseDelay, RetryMaxDelay, and CalendarMinGap
// convert the integer env-var fields into time.Duration, for callers
// constructing executor.Policy / calendar.Config.
func (c Config) CheckInterval() time.Duration  { return time.Duration(c.CheckIntervalSeconds) * time.Second }
func (c Config) RetryBaseDelay() time.Duration { return time.Duration(c.RetryBaseDelaySeconds) * time.Second }
func (c Config) RetryMaxDelay() time.Duration  { return time.Duration(c.RetryMaxDelaySeconds) * time.Second }
func (c Config) CalendarMinGap() time.Duration { return time.Duration(c.CalendarMinGapHours) * time.Hour }

// Location parses Timezone into a *time.Location, defaulting to UTC on
// an unknown zone name rather than failing startup.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load builds a Config from, in increasing precedence: a YAML file at
// yamlPath (if it exists), a .env file in the working directory (if
// present), and process environment variables. No CLI flag overrides
// these fields; serve's --verbose flag only sets the log level.
func Load(yamlPath string) (Config, error) {
	cfg := Config{MaxRetries: -1} // -1 marks MaxRetries unset until YAML or env sets it

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %s: %w", yamlPath, err)
		}
	}

	// godotenv.Load is a no-op (returns an error we ignore) when no .env
	// file is present, matching the teacher's optional-dotenv pattern.
	_ = godotenv.Load()

	applyEnv(&cfg)

	return cfg.Effective(), nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_HOST"); v != "" {
		cfg.APIHost = v
	}
	if v := envInt("API_PORT"); v != 0 {
		cfg.APIPort = v
	}
	if v := envInt("MAX_CONCURRENT_JOBS"); v != 0 {
		cfg.MaxConcurrentJobs = v
	}
	if v := envInt("CHECK_INTERVAL_SECONDS"); v != 0 {
		cfg.CheckIntervalSeconds = v
	}
	if v, ok := os.LookupEnv("MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := envInt("RETRY_BASE_DELAY_SECONDS"); v != 0 {
		cfg.RetryBaseDelaySeconds = v
	}
	if v := envInt("RETRY_MAX_DELAY_SECONDS"); v != 0 {
		cfg.RetryMaxDelaySeconds = v
	}
	if v := envInt("CALENDAR_MIN_GAP_HOURS"); v != 0 {
		cfg.CalendarMinGapHours = v
	}
	if v := envInt("CALENDAR_MAX_PER_DAY"); v != 0 {
		cfg.CalendarMaxPerDay = v
	}
	if v := os.Getenv("JOB_STORE_URL"); v != "" {
		cfg.JobStoreURL = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("REELFORGE_ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
}

func envInt(name string) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
