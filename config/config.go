// Package config provides application configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	defaultRelayPort  = "4000"
	defaultRelayRoute = "/tavus/webhook"
	defaultTavusURL   = "https://tavusapi.com/v2"
)

// Config holds all application configuration. It is built once at startup
// and treated as read-only afterwards.
type Config struct {
	// Relay configuration
	RelayPort        string
	RelayRoute       string
	RelayMetricsAddr string
	DownstreamURL    string

	// Session API configuration
	ServerPort         string
	APIToken           string
	SessionTTL         time.Duration
	HistoryTTL         time.Duration
	AutomationInterval time.Duration

	// Tavus configuration
	TavusAPIKey    string
	TavusBaseURL   string
	TavusReplicaID string
	ScenariosPath  string

	// Feedback LLM configuration
	GeminiAPIKey  string
	FeedbackModel string

	// Persistence configuration
	StatePath       string
	DataStoreDriver string
	DataStoreDSN    string

	// Redis / events configuration
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadEnvFile loads KEY=VALUE pairs from the given files into the process
// environment. Variables already set are left untouched and missing files
// are skipped.
func LoadEnvFile(paths ...string) {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to load env file")
		}
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	statePath := getEnv("STATE_PATH", "./state")
	dataStoreDriver := getEnv("DATASTORE_DRIVER", "sqlite")
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDriver == "postgres" && dataStoreDSN == "" {
		dataStoreDSN = os.Getenv("POSTGRES_DSN")
	}
	if dataStoreDSN == "" && dataStoreDriver == "sqlite" {
		dataStoreDSN = filepath.Join(statePath, "cvi-coach.db")
	}

	return &Config{
		RelayPort:          getEnv("PORT", defaultRelayPort),
		RelayRoute:         normalizeRoute(getEnv("RELAY_ROUTE", defaultRelayRoute)),
		RelayMetricsAddr:   getEnv("RELAY_METRICS_ADDR", ""),
		DownstreamURL:      strings.TrimSpace(os.Getenv("N8N_WEBHOOK_URL")),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		APIToken:           os.Getenv("API_TOKEN"),
		SessionTTL:         getEnvDuration("SESSION_TTL", 2*time.Hour),
		HistoryTTL:         getEnvDuration("HISTORY_TTL", 30*24*time.Hour),
		AutomationInterval: getEnvDuration("AUTOMATION_INTERVAL", 5*time.Minute),
		TavusAPIKey:        os.Getenv("TAVUS_API_KEY"),
		TavusBaseURL:       getEnv("TAVUS_BASE_URL", defaultTavusURL),
		TavusReplicaID:     getEnv("TAVUS_REPLICA_ID", ""),
		ScenariosPath:      getEnv("SCENARIOS_PATH", ""),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		FeedbackModel:      getEnv("FEEDBACK_MODEL", "gemini-2.5-flash"),
		StatePath:          statePath,
		DataStoreDriver:    dataStoreDriver,
		DataStoreDSN:       dataStoreDSN,
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisUsername:      getEnv("REDIS_USERNAME", ""),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure:   getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:      getEnv("EVENTS_CHANNEL", "cvi-coach-events"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}
}

// ForwardingEnabled reports whether a downstream automation URL is set.
func (c *Config) ForwardingEnabled() bool {
	return c != nil && c.DownstreamURL != ""
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return defaultRelayRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("invalid duration, using default")
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).Msg("invalid int, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Warn().Str("key", key).Str("value", value).Bool("default", defaultValue).Msg("invalid bool, using default")
		}
	}
	return defaultValue
}
