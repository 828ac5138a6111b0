// Package config loads the process-wide immutable configuration object.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the single immutable configuration object loaded at process
// start, with nested sub-configs per concern.
type Config struct {
	Database     DatabaseConfig
	Supervisor   SupervisorConfig
	Scraper      ScraperConfig
	RateGovernor RateGovernorConfig
	Embedding    EmbeddingConfig
	Suggestions  SuggestionsConfig
	Providers    ProvidersConfig
	Security     SecurityConfig
	Monitoring   MonitoringConfig
	ServerPort   string
	LogLevel     string
}

type DatabaseConfig struct {
	MongoURI       string
	DatabaseName   string
	ConnectTimeout time.Duration
}

type SupervisorConfig struct {
	CheckInterval            time.Duration
	RestartDelay             time.Duration
	RestartCooldown          time.Duration
	MaxSubredditsPerInstance int
	ShutdownGrace            time.Duration
	WorkerBinaryPath         string
}

type ScraperConfig struct {
	DefaultSortingMethods   []string
	DefaultPostsLimit       int
	DefaultCommentBatch     int
	DefaultScrapeInterval   time.Duration
	MaxCommentDepth         int
	SubredditUpdateInterval time.Duration
	InterSortDelay          time.Duration
	InterPostDelay          time.Duration
	MaxRetries              int
	BackoffFactor           float64
}

type RateGovernorConfig struct {
	MinRemaining      int
	ProxyURLs         []string
	UserAgent         string
	RequestTimeout    time.Duration
	CostPerRequest    float64
	RingBufferSize    int
	RequestsPerSecond float64
}

type EmbeddingConfig struct {
	CheckInterval time.Duration
	BatchSize     int
	MaxRetries    int
}

type SuggestionsConfig struct {
	CheckInterval time.Duration
}

type ProvidersConfig struct {
	GeminiAPIKey   string
	EmbeddingModel string
	ChatModel      string
}

type SecurityConfig struct {
	WebAuthUser       string
	WebAuthPassword   string
	CredentialKeyPath string
}

type MonitoringConfig struct {
	SentryDSN       string
	OTelServiceName string
	OTelEndpoint    string
}

// Load reads a .env file (if present) then builds Config from the
// environment, applying defaults for everything not explicitly set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI environment variable is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			MongoURI:       mongoURI,
			DatabaseName:   getEnv("DATABASE_NAME", "reddit_fleet"),
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Supervisor: SupervisorConfig{
			CheckInterval:            getEnvDuration("SUPERVISOR_CHECK_INTERVAL", 30*time.Second),
			RestartDelay:             getEnvDuration("SUPERVISOR_RESTART_DELAY", 5*time.Second),
			RestartCooldown:          getEnvDuration("SUPERVISOR_RESTART_COOLDOWN", 30*time.Second),
			MaxSubredditsPerInstance: getEnvInt("SUPERVISOR_MAX_SUBREDDITS", 30),
			ShutdownGrace:            getEnvDuration("SUPERVISOR_SHUTDOWN_GRACE", 15*time.Second),
			WorkerBinaryPath:         getEnv("SUPERVISOR_WORKER_BINARY", ""),
		},
		Scraper: ScraperConfig{
			DefaultSortingMethods:   getEnvStringSlice("SCRAPER_SORTING_METHODS", []string{"new", "hot", "rising"}),
			DefaultPostsLimit:       getEnvInt("SCRAPER_DEFAULT_POST_LIMIT", 25),
			DefaultCommentBatch:     getEnvInt("SCRAPER_DEFAULT_COMMENT_BATCH", 20),
			DefaultScrapeInterval:   getEnvDuration("SCRAPER_SCRAPE_INTERVAL", 5*time.Minute),
			MaxCommentDepth:         getEnvInt("SCRAPER_MAX_COMMENT_DEPTH", 3),
			SubredditUpdateInterval: getEnvDuration("SCRAPER_SUBREDDIT_UPDATE_INTERVAL", 24*time.Hour),
			InterSortDelay:          getEnvDuration("SCRAPER_INTER_SORT_DELAY", 2*time.Second),
			InterPostDelay:          getEnvDuration("SCRAPER_INTER_POST_DELAY", 2*time.Second),
			MaxRetries:              getEnvInt("SCRAPER_MAX_RETRIES", 3),
			BackoffFactor:           getEnvFloat("SCRAPER_BACKOFF_FACTOR", 2.0),
		},
		RateGovernor: RateGovernorConfig{
			MinRemaining:   getEnvInt("RATE_GOVERNOR_MIN_REMAINING", 50),
			ProxyURLs:      getEnvStringSlice("REDDIT_PROXY_URLS", nil),
			UserAgent:      getEnv("REDDIT_USER_AGENT", "Mozilla/5.0 (fleet-controller)"),
			RequestTimeout: getEnvDuration("REDDIT_REQUEST_TIMEOUT", 30*time.Second),
			CostPerRequest:    getEnvFloat("RATE_GOVERNOR_COST_PER_REQUEST", 0.00024),
			RingBufferSize:    getEnvInt("RATE_GOVERNOR_RING_BUFFER_SIZE", 10000),
			RequestsPerSecond: getEnvFloat("RATE_GOVERNOR_REQUESTS_PER_SECOND", 1.0),
		},
		Embedding: EmbeddingConfig{
			CheckInterval: getEnvDuration("EMBEDDING_CHECK_INTERVAL", 60*time.Second),
			BatchSize:     getEnvInt("EMBEDDING_BATCH_SIZE", 10),
			MaxRetries:    getEnvInt("EMBEDDING_MAX_RETRIES", 3),
		},
		Suggestions: SuggestionsConfig{
			CheckInterval: getEnvDuration("SUGGESTIONS_CHECK_INTERVAL", 60*time.Second),
		},
		Providers: ProvidersConfig{
			GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			ChatModel:      getEnv("CHAT_MODEL", "gemini-2.5-flash"),
		},
		Security: SecurityConfig{
			WebAuthUser:       os.Getenv("WEB_AUTH_USER"),
			WebAuthPassword:   os.Getenv("WEB_AUTH_PASSWORD"),
			CredentialKeyPath: getEnv("CREDENTIAL_KEY_PATH", "./fleet.key"),
		},
		Monitoring: MonitoringConfig{
			SentryDSN:       os.Getenv("SENTRY_DSN"),
			OTelServiceName: getEnv("OTEL_SERVICE_NAME", "reddit-fleet-controller"),
			OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
