package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port               string
	Environment        string
	AdminToken         string
	JWTSecret          string
	JWTIssuer          string
	DBURL              string
	ReadTimeoutSecs    int
	WriteTimeoutSecs   int
	IdleTimeoutSecs    int
	DBMaxConns         int
	DBMinConns         int
	DBMaxIdleSecs      int
	DBMaxLifeSecs      int
	DBConnTimeoutSecs  int
	DBStatementCache   int
	StoreOpTimeoutMs   int
	TxMaxRetries       int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RangeCacheTTLSecs  int
	RateLimitRPS       float64
	RateLimitBurst     int
	OpenDataURL        string
	OpenDataTimeoutSec int
	CORSOrigins        []string
}

// IsDevelopment reports whether the process runs in a local environment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "development", "dev", "local":
		return true
	}
	return false
}

// LoadDotEnv seeds the process environment from .env files when present.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg := fromEnv()
	if cfg.AdminToken == "" {
		return Config{}, fmt.Errorf("ADMIN_TOKEN is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadImporter is Load without the API secrets, for offline tooling that only
// talks to the database, the cache and the open-data endpoint.
func LoadImporter() (Config, error) {
	cfg := fromEnv()
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromEnv() Config {
	return Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          os.Getenv("JWT_ISSUER"),
		DBURL:              os.Getenv("DB_URL"),
		ReadTimeoutSecs:    getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:   getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:    getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:         getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:      getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:      getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:  getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:   getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		StoreOpTimeoutMs:   getEnvInt("STORE_OP_TIMEOUT_MS", 5000),
		TxMaxRetries:       getEnvInt("TX_MAX_RETRIES", 3),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RangeCacheTTLSecs:  getEnvInt("RANGE_CACHE_TTL_SECS", 60),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		OpenDataURL:        os.Getenv("OPENDATA_URL"),
		OpenDataTimeoutSec: getEnvInt("OPENDATA_TIMEOUT_SECS", 30),
		CORSOrigins:        getEnvList("CORS_ORIGINS"),
	}
}

func validate(cfg Config) error {
	if cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.StoreOpTimeoutMs <= 0 {
		return fmt.Errorf("STORE_OP_TIMEOUT_MS must be positive")
	}
	if cfg.TxMaxRetries < 0 {
		return fmt.Errorf("TX_MAX_RETRIES must be non-negative")
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must be non-negative")
	}
	if cfg.RangeCacheTTLSecs <= 0 {
		return fmt.Errorf("RANGE_CACHE_TTL_SECS must be positive")
	}
	if cfg.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if cfg.OpenDataTimeoutSec <= 0 {
		return fmt.Errorf("OPENDATA_TIMEOUT_SECS must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
