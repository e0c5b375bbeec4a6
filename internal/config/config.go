package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the tracking daemon.
type Config struct {
	Port string

	AuthToken          string
	CORSAllowedOrigins []string

	// External processing backend (batch creation, unread counter).
	BackendBaseURL    string
	BackendAuthToken  string
	BackendTimeoutMS  int
	BackendMaxRetries int

	// Event transport. An empty RedisAddr selects the in-process
	// local session for development.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ChannelPrefix  string
	UserID         string
	ReconnectMinMS int
	ReconnectMaxMS int

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8090"),

		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		BackendBaseURL:    getEnv("BACKEND_BASE_URL", "http://localhost:5000"),
		BackendAuthToken:  getEnv("BACKEND_AUTH_TOKEN", ""),
		BackendTimeoutMS:  getEnvInt("BACKEND_TIMEOUT_MS", 15000),
		BackendMaxRetries: getEnvInt("BACKEND_MAX_RETRIES", 2),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		ChannelPrefix:  getEnv("EVENT_CHANNEL_PREFIX", "invoice"),
		UserID:         getEnv("TRACKER_USER_ID", "local"),
		ReconnectMinMS: getEnvInt("RECONNECT_MIN_MS", 500),
		ReconnectMaxMS: getEnvInt("RECONNECT_MAX_MS", 30000),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
