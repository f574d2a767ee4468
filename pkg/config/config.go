package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string

	// Relational store (rooms + participants)
	MySQLDSN string

	// Document store (messages)
	FirestoreProject string

	// Counter cache + pub/sub broker
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool

	// Edge auth
	JWTSecret      string
	TrustedGateway bool

	// Canonical zone for client-supplied timestamps
	ChatTimezone string

	// Optional enrichment services
	ProductServiceURL string
	UserServiceURL    string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MySQLDSN: getEnv("MYSQL_DSN", fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			getEnv("MYSQL_USER", "chat"),
			getEnv("MYSQL_PASSWORD", "chat"),
			getEnv("MYSQL_HOST", "127.0.0.1"),
			getEnv("MYSQL_PORT", "3306"),
			getEnv("MYSQL_DATABASE", "marketchat"),
		)),

		FirestoreProject: getEnv("FIRESTORE_PROJECT_ID", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheEnabled:  getEnvAsBool("CACHE_ENABLED", true),

		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		TrustedGateway: getEnvAsBool("TRUSTED_GATEWAY", false),

		ChatTimezone: getEnv("CHAT_TIMEZONE", "Asia/Seoul"),

		ProductServiceURL: getEnv("PRODUCT_SERVICE_URL", ""),
		UserServiceURL:    getEnv("USER_SERVICE_URL", ""),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
