package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Addr          string
	EngineConfig  EngineConfig
	HistoryConfig HistoryConfig
	RedisConfig   RedisConfig
}

// EngineConfig holds query-engine tuning knobs.
type EngineConfig struct {
	MaxWorkers       int
	DefaultTimeoutMs int
	MaxTimeoutMs     int
}

// HistoryConfig holds history-store configuration.
type HistoryConfig struct {
	Limit  int
	DBPath string
}

// RedisConfig holds the optional report-cache configuration.
type RedisConfig struct {
	Addr        string
	ReportTTLMs int
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file, using default config")
	}

	return &Config{
		Addr: getEnv("ADDR", ":2222"),
		EngineConfig: EngineConfig{
			MaxWorkers:       getEnvInt("MAX_WORKERS", 8),
			DefaultTimeoutMs: getEnvInt("DEFAULT_TIMEOUT_MS", 30000),
			MaxTimeoutMs:     getEnvInt("MAX_TIMEOUT_MS", 120000),
		},
		HistoryConfig: HistoryConfig{
			Limit:  getEnvInt("HISTORY_LIMIT", 50),
			DBPath: os.Getenv("HISTORY_DB"),
		},
		RedisConfig: RedisConfig{
			Addr:        os.Getenv("REDIS_ADDR"),
			ReportTTLMs: getEnvInt("REPORT_TTL_MS", 3600000),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s value: %v. Using default %d.", key, v, fallback)
		return fallback
	}
	return n
}
