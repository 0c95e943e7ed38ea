package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Env != "development" {
		t.Errorf("Expected Env to be development, got %s", cfg.Env)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected Port to be 8080, got %s", cfg.Port)
	}

	if cfg.BatchParallelism != 4 {
		t.Errorf("Expected BatchParallelism to be 4, got %d", cfg.BatchParallelism)
	}

	if cfg.BatchTimeout != 5*time.Minute {
		t.Errorf("Expected BatchTimeout to be 5m, got %v", cfg.BatchTimeout)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("REBALANCE_ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("BATCH_PARALLELISM", "8")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("REBALANCE_OPTIONS_FILE", "/etc/rebalance/options.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("Expected Env to be production, got %s", cfg.Env)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("Expected LogLevel to be warn, got %s", cfg.LogLevel)
	}

	if cfg.BatchParallelism != 8 {
		t.Errorf("Expected BatchParallelism to be 8, got %d", cfg.BatchParallelism)
	}

	if cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be false")
	}

	if cfg.OptionsFile != "/etc/rebalance/options.yaml" {
		t.Errorf("Expected OptionsFile to be set, got %s", cfg.OptionsFile)
	}
}

func TestValidateInvalidEnv(t *testing.T) {
	t.Setenv("REBALANCE_ENV", "invalid")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when REBALANCE_ENV is invalid, got nil")
	}
}

func TestValidateInvalidParallelism(t *testing.T) {
	t.Setenv("BATCH_PARALLELISM", "0")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when BATCH_PARALLELISM is 0, got nil")
	}
}

func TestValidateInvalidLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when LOG_FORMAT is invalid, got nil")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "2h")

	duration := getEnvAsDuration("TEST_DURATION", "1h")
	expected := 2 * time.Hour

	if duration != expected {
		t.Errorf("Expected duration to be %v, got %v", expected, duration)
	}
}

func TestGetEnvAsDurationFallback(t *testing.T) {
	t.Setenv("TEST_DURATION", "soon")

	if got := getEnvAsDuration("TEST_DURATION", "30s"); got != 30*time.Second {
		t.Errorf("Expected fallback 30s, got %v", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_INT", "100")

	value := getEnvAsInt("TEST_INT", 50)
	if value != 100 {
		t.Errorf("Expected value to be 100, got %d", value)
	}

	t.Setenv("TEST_INT", "abc")
	if value := getEnvAsInt("TEST_INT", 50); value != 50 {
		t.Errorf("Expected fallback 50, got %d", value)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")

	if !getEnvAsBool("TEST_BOOL", false) {
		t.Error("Expected true")
	}

	t.Setenv("TEST_BOOL", "nope")
	if !getEnvAsBool("TEST_BOOL", true) {
		t.Error("Expected fallback true")
	}
}
