package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Identity IdentityConfig
	Results  ResultsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/pollpulse?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int // pool size; 0 keeps the driver default
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// IdentityConfig holds voter identity derivation settings.
// The salt is mixed into anonymous IP fingerprints; changing it resets
// dedup continuity for anonymous voters across deployments.
type IdentityConfig struct {
	AnonSalt string
}

// ResultsConfig holds results cache settings.
type ResultsConfig struct {
	CacheTTLSeconds int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/pollpulse?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "pollpulse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Identity: IdentityConfig{
			AnonSalt: getEnv("IDENTITY_ANON_SALT", "pollpulse-anon"),
		},
		Results: ResultsConfig{
			CacheTTLSeconds: getEnvInt("RESULTS_CACHE_TTL_SEC", 30),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
