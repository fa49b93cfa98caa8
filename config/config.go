package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	API      APIConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// APIConfig points at the remote product/review service.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration // zero means no timeout
}

type CacheConfig struct {
	StaleTime       time.Duration
	GCTime          time.Duration
	JanitorInterval time.Duration
}

// DatabaseConfig backs the mutation failure journal. Empty URL disables it.
type DatabaseConfig struct {
	URL string
}

// RedisConfig backs the submission guard. Empty Addr uses an in-process guard.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig carries catalog events between front end instances. No brokers
// disables publishing and the invalidation worker.
type KafkaConfig struct {
	Brokers       []string
	TopicCatalog  string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint   string
	TraceSampleRatio float64
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	apiTimeout, _ := strconv.Atoi(getEnv("API_TIMEOUT_SECONDS", "0"))
	staleSeconds, _ := strconv.Atoi(getEnv("CACHE_STALE_SECONDS", "0"))
	gcSeconds, _ := strconv.Atoi(getEnv("CACHE_GC_SECONDS", "300"))
	janitorSeconds, _ := strconv.Atoi(getEnv("CACHE_JANITOR_SECONDS", "60"))
	sampleRatio, err := strconv.ParseFloat(getEnv("TRACE_SAMPLE_RATIO", "1"), 64)
	if err != nil || sampleRatio < 0 || sampleRatio > 1 {
		sampleRatio = 1
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", ""),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("API_BASE_URL", "https://test-api.nova-techs.com"), "/"),
			Timeout: time.Duration(apiTimeout) * time.Second,
		},
		Cache: CacheConfig{
			StaleTime:       time.Duration(staleSeconds) * time.Second,
			GCTime:          time.Duration(gcSeconds) * time.Second,
			JanitorInterval: time.Duration(janitorSeconds) * time.Second,
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicCatalog:  getEnv("KAFKA_TOPIC_CATALOG_EVENTS", "catalog-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", ""),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", ""),
			TraceSampleRatio: sampleRatio,
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, api=%s", cfg.Server.Env, cfg.Server.Port, cfg.API.BaseURL)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
