package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort           string
	GRPCHealthPort     string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	CORSAllowedOrigin  string

	DependencyTimeout time.Duration
	MaxAttempts       int

	CartStore      string // mongo | redis | memory
	MongoURI       string
	MongoDBName    string
	RedisAddr      string
	RedisPassword  string
	CartCache      bool
	CartCacheTTL   time.Duration
	CartTTL        time.Duration

	CatalogDriver         string // sqlite | postgres | http | memory
	CatalogDSN            string
	CatalogMigrationsPath string
	CatalogURL            string

	KafkaBrokers       []string
	KafkaCheckoutTopic string
	KafkaGroupID       string

	OTLPEndpoint string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCHealthPort:     getEnv("GRPC_HEALTH_PORT", "50052"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		CORSAllowedOrigin:  getEnv("CORS_ALLOWED_ORIGIN", "*"),

		DependencyTimeout: getEnvDuration("DEPENDENCY_TIMEOUT", 2*time.Second),
		MaxAttempts:       getEnvInt("MAX_CONFLICT_RETRIES", 3),

		CartStore:     getEnv("CART_STORE", "mongo"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CartCache:     getEnvBool("CART_CACHE_ENABLED", true),
		CartCacheTTL:  getEnvDuration("CART_CACHE_TTL", 15*time.Minute),
		CartTTL:       getEnvDuration("CART_TTL", 90*24*time.Hour),

		CatalogDriver:         getEnv("CATALOG_DRIVER", "sqlite"),
		CatalogDSN:            getEnv("CATALOG_DSN", "catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),
		CatalogURL:            getEnv("CATALOG_URL", ""),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaCheckoutTopic: getEnv("KAFKA_CHECKOUT_TOPIC", "checkout-outbox"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "cart-service-consumer"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CartStore {
	case "mongo", "redis", "memory":
	default:
		return fmt.Errorf("CART_STORE must be mongo, redis or memory, got %q", c.CartStore)
	}
	switch c.CatalogDriver {
	case "sqlite", "postgres", "memory":
	case "http":
		if c.CatalogURL == "" {
			return fmt.Errorf("CATALOG_URL is required when CATALOG_DRIVER=http")
		}
	default:
		return fmt.Errorf("CATALOG_DRIVER must be sqlite, postgres, http or memory, got %q", c.CatalogDriver)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
