package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration for the rebalance CLI
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
// 엔진 동작 스위치(EngineOptions)는 internal/options 담당, 여기는 프로세스 설정만
type Config struct {
	Env string // development, staging, production

	// Server (serve 커맨드 전용)
	Port         string
	APIRateLimit int // req/s, 0 = 무제한

	// Replay cache (canonical hash → Outcome, 메모리 전용)
	ReplayCacheSize int64 // 0 = 비활성
	ReplayCacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool

	// Batch
	BatchParallelism int
	BatchTimeout     time.Duration

	// OptionsFile is the default EngineOptions YAML used when --options is not given
	OptionsFile string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("REBALANCE_ENV", "development"),

		// Server
		Port:         getEnv("PORT", "8080"),
		APIRateLimit: getEnvAsInt("API_RATE_LIMIT", 20),

		// Replay cache
		ReplayCacheSize: int64(getEnvAsInt("REPLAY_CACHE_SIZE", 1024)),
		ReplayCacheTTL:  getEnvAsDuration("REPLAY_CACHE_TTL", "10m"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

		// Batch
		BatchParallelism: getEnvAsInt("BATCH_PARALLELISM", 4),
		BatchTimeout:     getEnvAsDuration("BATCH_TIMEOUT", "5m"),

		OptionsFile: getEnv("REBALANCE_OPTIONS_FILE", ""),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("REBALANCE_ENV must be one of: development, staging, production")
	}

	if c.LogFormat != "json" && c.LogFormat != "console" && c.LogFormat != "pretty" {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console, pretty")
	}

	if c.APIRateLimit < 0 {
		return fmt.Errorf("API_RATE_LIMIT must be >= 0")
	}

	if c.ReplayCacheSize < 0 {
		return fmt.Errorf("REPLAY_CACHE_SIZE must be >= 0")
	}

	if c.BatchParallelism < 1 {
		return fmt.Errorf("BATCH_PARALLELISM must be >= 1")
	}

	if c.BatchTimeout <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT must be > 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
