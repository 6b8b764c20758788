package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration from environment variables
type Config struct {
	// Gateway
	AppPort  string
	LogLevel string

	// Store API
	StoreAPIURL       string
	StoreAPITimeout   time.Duration
	StoreAPIRateLimit float64 // requests per second, 0 disables limiting
	StoreAPIRateBurst int
	AuthVerifyPath    string

	// Token storage
	TokenStore string // sqlite, mysql, redis or memory
	TokenKey   string
	TokenTTL   time.Duration
	SQLitePath string
	RedisURL   string

	// MySQL token store
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Checkout handoff
	WhatsAppNumber string
	StoreName      string

	// OpenTelemetry
	OTELMetricsEnabled        bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // key1=value1,key2=value2
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
}

// fileConfig mirrors the keys accepted in the optional YAML file
type fileConfig map[string]string

// LoadConfig loads configuration from .env file, an optional YAML file and
// environment variables. Environment variables win over the YAML file,
// which wins over built-in defaults.
func LoadConfig() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			slog.Warn("error loading .env file", slog.String("error", err.Error()))
		}
	}

	file := fileConfig{}
	if path := os.Getenv("STOREFRONT_CONFIG_FILE"); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	l := loader{file: file}
	cfg := &Config{
		AppPort:  l.str("APP_PORT", "8080"),
		LogLevel: l.str("LOG_LEVEL", "info"),

		StoreAPIURL:       strings.TrimRight(l.str("STORE_API_URL", "http://localhost:8001/api"), "/"),
		StoreAPITimeout:   l.duration("STORE_API_TIMEOUT", 15*time.Second),
		StoreAPIRateLimit: l.float("STORE_API_RATE_LIMIT", 10),
		StoreAPIRateBurst: l.int("STORE_API_RATE_BURST", 20),
		AuthVerifyPath:    l.str("AUTH_VERIFY_PATH", "/auth/me"),

		TokenStore: strings.ToLower(l.str("TOKEN_STORE", "sqlite")),
		TokenKey:   l.str("TOKEN_KEY", "token"),
		TokenTTL:   l.duration("TOKEN_TTL", 30*24*time.Hour),
		SQLitePath: l.str("SQLITE_PATH", "storefront.db"),
		RedisURL:   l.str("REDIS_URL", "redis://localhost:6379/2"),

		DBHost:     l.str("DB_HOST", "localhost"),
		DBPort:     l.str("DB_PORT", "3306"),
		DBUser:     l.str("DB_USER", "root"),
		DBPassword: l.str("DB_PASSWORD", "password"),
		DBName:     l.str("DB_NAME", "storefront"),

		WhatsAppNumber: l.str("WHATSAPP_NUMBER", "5521999999999"),
		StoreName:      l.str("STORE_NAME", "Estofados Premium Outlet"),

		OTELMetricsEnabled:        l.bool("OTEL_METRICS_ENABLED", true),
		OTELExporterOTLPEndpoint:  l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   l.str("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  l.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           l.str("OTEL_SERVICE_NAME", "storefront"),
		OTELServiceVersion:        l.str("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: l.str("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.TokenStore {
	case "sqlite", "mysql", "redis", "memory":
	default:
		return fmt.Errorf("unsupported TOKEN_STORE %q", c.TokenStore)
	}
	if c.StoreAPIURL == "" {
		return fmt.Errorf("STORE_API_URL must not be empty")
	}
	if c.TokenKey == "" {
		return fmt.Errorf("TOKEN_KEY must not be empty")
	}
	return nil
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	out := make(fileConfig, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case nil:
			out[strings.ToUpper(k)] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("config file key %q must be a scalar value", k)
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(v)
		}
	}
	return out, nil
}

type loader struct {
	file fileConfig
}

func (l loader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := l.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (l loader) bool(key string, defaultValue bool) bool {
	if value := l.str(key, ""); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (l loader) int(key string, defaultValue int) int {
	if value := l.str(key, ""); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer setting", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func (l loader) float(key string, defaultValue float64) float64 {
	if value := l.str(key, ""); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid number setting", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func (l loader) duration(key string, defaultValue time.Duration) time.Duration {
	if value := l.str(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration setting", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}
