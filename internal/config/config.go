package config

import (
	"strings"
	"time"
)

// Config stores environment configuration for Concierge.
type Config struct {
	Port               string
	DatabaseURL        string
	RedisURL           string
	RootDomain         string
	LLMProvider        string
	LLMModel           string
	LLMAPIKey          string
	LLMAPIURL          string
	SearchAPIURL       string
	SearchAPIKey       string
	SearchLimit        int
	KafkaBrokers       []string
	KafkaClusterID     string
	AnalyticsTopic     string
	GuestDailyLimit    int
	RegularDailyLimit  int
	MaxHistoryMessages int
	MaxToolRounds      int
	TenantCacheTTL     time.Duration
	TenantCacheSize    int
	StreamBufferTTL    time.Duration
	WeatherAPIURL      string
}

// LoadConfig loads the Concierge configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:               GetEnv("PORT", "18080"),
		DatabaseURL:        RequireEnv("DATABASE_URL"),
		RedisURL:           GetEnv("REDIS_URL", ""),
		RootDomain:         GetEnv("ROOT_DOMAIN", "localhost"),
		LLMProvider:        GetEnv("LLM_PROVIDER", "openai"),
		LLMModel:           GetEnv("LLM_MODEL", ""),
		LLMAPIKey:          GetEnv("LLM_API_KEY", ""),
		LLMAPIURL:          GetEnv("LLM_API_URL", ""),
		SearchAPIURL:       GetEnv("SEARCH_API_URL", ""),
		SearchAPIKey:       GetEnv("SEARCH_API_KEY", ""),
		SearchLimit:        GetEnvInt("SEARCH_LIMIT", 5),
		KafkaBrokers:       parseList(GetEnv("KAFKA_BROKERS", "")),
		KafkaClusterID:     GetEnv("KAFKA_CLUSTER_ID", "local"),
		AnalyticsTopic:     GetEnv("ANALYTICS_KAFKA_TOPIC", "analytics_events"),
		GuestDailyLimit:    GetEnvInt("GUEST_DAILY_MESSAGE_LIMIT", 20),
		RegularDailyLimit:  GetEnvInt("REGULAR_DAILY_MESSAGE_LIMIT", 100),
		MaxHistoryMessages: GetEnvInt("MAX_HISTORY_MESSAGES", 20),
		MaxToolRounds:      GetEnvInt("MAX_TOOL_ROUNDS", 5),
		TenantCacheTTL:     parseDuration(GetEnv("TENANT_CACHE_TTL", "10m"), 10*time.Minute),
		TenantCacheSize:    GetEnvInt("TENANT_CACHE_SIZE", 100),
		StreamBufferTTL:    parseDuration(GetEnv("STREAM_BUFFER_TTL", "1h"), time.Hour),
		WeatherAPIURL:      GetEnv("WEATHER_API_URL", "https://api.open-meteo.com/v1/forecast"),
	}
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
