package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port string

	// Database (PostgreSQL in production, sqlite in tests)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Media downloaded from the protocol network is written here and served
	// back under /media.
	MediaDir string

	// Default country code prepended to local-format phone numbers
	// (e.g. "20" turns "0100..." into "20100...").
	DefaultCountryCode string

	// AI response generation service
	AIEndpoint string
	AIToken    string

	// Notification queue tuning
	QueueBatchSize    int
	QueueRetryDelay   time.Duration
	QueueItemInterval time.Duration

	Environment string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on environment")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "whatsapp_bridge"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		MediaDir:           getEnv("MEDIA_DIR", "./media"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "20"),
		AIEndpoint:         getEnv("AI_ENDPOINT", ""),
		AIToken:            getEnv("AI_TOKEN", ""),
		QueueBatchSize:     getEnvInt("QUEUE_BATCH_SIZE", 20),
		QueueRetryDelay:    getEnvDuration("QUEUE_RETRY_DELAY", 5*time.Minute),
		QueueItemInterval:  getEnvDuration("QUEUE_ITEM_INTERVAL", 2*time.Second),
		Environment:        getEnv("ENVIRONMENT", "development"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer in environment, using fallback")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration in environment, using fallback")
	}
	return fallback
}
