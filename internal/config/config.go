package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory        = "memory"
	BackendSQLite        = "sqlite"
	BackendRedis         = "redis"
	BackendElasticsearch = "elasticsearch"
)

// Common contains store and profile parameters shared by every service.
type Common struct {
	StoreBackend       string
	ElasticsearchAddr  string
	ElasticsearchIndex string
	SQLitePath         string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisPrefix        string
	ProfilePath        string
}

// Search holds credentials and limits for the Custom Search API.
type Search struct {
	GoogleAPIKey      string
	SearchEngineID    string
	PageLimit         int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Search
	BindAddr string
}

// Worker holds configuration for the Kafka -> store worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// CLI configures the command line client.
type CLI struct {
	Common
	Search
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	search, err := loadSearch()
	if err != nil {
		return nil, err
	}
	return &API{
		Common:   common,
		Search:   search,
		BindAddr: getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
	}, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Common:         common,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "results_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "results-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.StoreBackend == BackendMemory {
		return nil, fmt.Errorf("STORE_BACKEND=memory is not shared with readers; use sqlite, redis or elasticsearch")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	c := &Retention{
		Common:    common,
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "168h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}
	if c.StoreBackend == BackendMemory {
		return nil, fmt.Errorf("STORE_BACKEND=memory has nothing to expire; use sqlite, redis or elasticsearch")
	}

	return c, nil
}

// LoadCLI builds the command line configuration. Kafka settings are optional
// and only needed by the publish command.
func LoadCLI() (*CLI, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	search, err := loadSearch()
	if err != nil {
		return nil, err
	}
	return &CLI{
		Common:       common,
		Search:       search,
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "results_raw"),
	}, nil
}

func loadCommon() (Common, error) {
	c := Common{
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "items"),
		SQLitePath:         getEnv("SQLITE_PATH", "data/items.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getInt("REDIS_DB", 0),
		RedisPrefix:        getEnv("REDIS_PREFIX", "facets:"),
		ProfilePath:        getEnv("PROFILE_PATH", ""),
	}

	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendElasticsearch:
	default:
		return Common{}, fmt.Errorf("STORE_BACKEND %q is not one of memory, sqlite, redis, elasticsearch", c.StoreBackend)
	}
	if c.RedisDB < 0 {
		return Common{}, fmt.Errorf("REDIS_DB cannot be negative")
	}

	return c, nil
}

func loadSearch() (Search, error) {
	s := Search{
		GoogleAPIKey:      getEnv("GOOGLE_API_KEY", ""),
		SearchEngineID:    getEnv("GOOGLE_CSE_ID", ""),
		PageLimit:         getInt("SEARCH_PAGE_LIMIT", 3),
		Timeout:           getDuration("SEARCH_TIMEOUT", "10s"),
		RequestsPerSecond: getFloat("SEARCH_RPS", 5),
	}

	// The API serves at most 100 results, ten per page.
	if s.PageLimit <= 0 || s.PageLimit > 10 {
		return Search{}, fmt.Errorf("SEARCH_PAGE_LIMIT must be between 1 and 10")
	}
	if s.RequestsPerSecond <= 0 {
		return Search{}, fmt.Errorf("SEARCH_RPS must be positive")
	}

	return s, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
