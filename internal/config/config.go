package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	DBDriver    string
	DatabaseURL string
	DBLogLevel  string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	JWTSecret string
	TokenTTL  time.Duration

	// Location decides which weekday "today" is for open-at queries
	Location *time.Location

	PurchaseMaxRetries int
	ImportDefaultStock int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		ServerPort:    getEnvOrDefault("PORT", "3000"),
		DBDriver:      getEnvOrDefault("DB_DRIVER", "postgres"),
		DBLogLevel:    getEnvOrDefault("DB_LOG_LEVEL", "warn"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		dsn, err := buildDSN(cfg.DBDriver)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PurchaseMaxRetries, err = getEnvInt("PURCHASE_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.ImportDefaultStock, err = getEnvInt("IMPORT_DEFAULT_STOCK", 100); err != nil {
		return nil, err
	}
	if cfg.ImportDefaultStock < 0 {
		return nil, fmt.Errorf("IMPORT_DEFAULT_STOCK must not be negative, got %d", cfg.ImportDefaultStock)
	}

	tz := getEnvOrDefault("TIMEZONE", "Asia/Taipei")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		log.Printf("Warning: timezone %q not available, falling back to UTC: %v", tz, err)
		cfg.Location = time.UTC
	}

	return cfg, nil
}

func buildDSN(driver string) (string, error) {
	host := getEnvOrDefault("DB_HOST", "localhost")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := os.Getenv("DB_PASSWORD")
	name := getEnvOrDefault("DB_NAME", "phantom_mask")

	switch driver {
	case "postgres":
		port := getEnvOrDefault("DB_PORT", "5432")
		return fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			host, user, password, name, port,
		), nil
	case "mysql":
		port := getEnvOrDefault("DB_PORT", "3306")
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			user, password, host, port, name,
		), nil
	case "sqlite":
		return getEnvOrDefault("DB_PATH", "phantom_mask.db"), nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
