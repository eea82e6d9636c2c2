package config

import (
	"os"
	"testing"
	"time"
)

func TestEffectiveFillsDefaults(t *testing.T) {
	c := Config{MaxRetries: -1} // a negative MaxRetries marks it unset
	eff := c.Effective()

	if eff.APIHost != "0.0.0.0" {
		t.Errorf("APIHost = %q, want 0.0.0.0", eff.APIHost)
	}
	if eff.APIPort != 8000 {
		t.Errorf("APIPort = %d, want 8000", eff.APIPort)
	}
	if eff.MaxConcurrentJobs != 2 {
		t.Errorf("MaxConcurrentJobs = %d, want 2", eff.MaxConcurrentJobs)
	}
	if eff.CheckIntervalSeconds != 60 {
		t.Errorf("CheckIntervalSeconds = %d, want 60", eff.CheckIntervalSeconds)
	}
	if eff.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", eff.MaxRetries)
	}
	if eff.RetryBaseDelaySeconds != 60 {
		t.Errorf("RetryBaseDelaySeconds = %d, want 60", eff.RetryBaseDelaySeconds)
	}
	if eff.RetryMaxDelaySeconds != 3600 {
		t.Errorf("RetryMaxDelaySeconds = %d, want 3600", eff.RetryMaxDelaySeconds)
	}
	if eff.CalendarMinGapHours != 6 {
		t.Errorf("CalendarMinGapHours = %d, want 6", eff.CalendarMinGapHours)
	}
	if eff.CalendarMaxPerDay != 3 {
		t.Errorf("CalendarMaxPerDay = %d, want 3", eff.CalendarMaxPerDay)
	}
	if eff.JobStoreURL != "sqlite://./data/reelforge.db" {
		t.Errorf("JobStoreURL = %q", eff.JobStoreURL)
	}
	if eff.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", eff.Timezone)
	}
}

func TestEffectivePreservesExplicitZeroOverrides(t *testing.T) {
	c := Config{MaxRetries: 0, APIPort: 9090}.Effective()
	if c.MaxRetries != 0 {
		t.Errorf("explicit MaxRetries=0 should survive Effective(), got %d", c.MaxRetries)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
}

func TestDurationHelpers(t *testing.T) {
	c := Config{
		CheckIntervalSeconds:  30,
		RetryBaseDelaySeconds: 5,
		RetryMaxDelaySeconds:  120,
		CalendarMinGapHours:   2,
	}
	if c.CheckInterval() != 30*time.Second {
		t.Errorf("CheckInterval() = %v", c.CheckInterval())
	}
	if c.RetryBaseDelay() != 5*time.Second {
		t.Errorf("RetryBaseDelay() = %v", c.RetryBaseDelay())
	}
	if c.RetryMaxDelay() != 120*time.Second {
		t.Errorf("RetryMaxDelay() = %v", c.RetryMaxDelay())
	}
	if c.CalendarMinGap() != 2*time.Hour {
		t.Errorf("CalendarMinGap() = %v", c.CalendarMinGap())
	}
}

func TestLocationFallsBackToUTCOnUnknownZone(t *testing.T) {
	c := Config{Timezone: "Not/AZone"}
	if loc := c.Location(); loc != time.UTC {
		t.Errorf("Location() = %v, want UTC fallback", loc)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9999")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("JOB_STORE_URL", "postgres://example/db")
	os.Unsetenv("TIMEZONE")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIHost != "127.0.0.1" {
		t.Errorf("APIHost = %q", cfg.APIHost)
	}
	if cfg.APIPort != 9999 {
		t.Errorf("APIPort = %d", cfg.APIPort)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.JobStoreURL != "postgres://example/db" {
		t.Errorf("JobStoreURL = %q", cfg.JobStoreURL)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want default UTC", cfg.Timezone)
	}
}

func TestLoadMissingYAMLFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/path/reelforge.yaml"); err != nil {
		t.Fatalf("Load with missing yaml file should not error, got %v", err)
	}
}
