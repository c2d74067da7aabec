package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Env  string // "production" or "development"
	Port string

	// PostgreSQL
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnMaxLife   time.Duration
	MigrationsOnRun bool

	// Sessions
	SessionSecret string
	SessionName   string
	SecureCookies bool

	// Access gate
	AllowUnassignedSchema bool
	TrustProxyHeaders     bool

	// Telemetry; tracing is disabled when the endpoint is empty
	OTLPEndpoint string
	OTLPInsecure bool

	// Location used to decide which loans are overdue
	Location *time.Location
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("APP_ENV", "production"),
		Port:        getEnv("PORT", "8080"),
		SessionName: getEnv("SESSION_NAME", "lendingdesk"),
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET is required and must be at least 32 bytes")
	}

	var err error
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.DBConnMaxLife, err = getDuration("DB_CONN_MAX_LIFETIME", time.Hour); err != nil {
		return nil, err
	}
	if cfg.MigrationsOnRun, err = getBool("MIGRATE_ON_START", false); err != nil {
		return nil, err
	}
	if cfg.SecureCookies, err = getBool("SECURE_COOKIES", cfg.Env == "production"); err != nil {
		return nil, err
	}
	if cfg.AllowUnassignedSchema, err = getBool("GATE_ALLOW_UNASSIGNED_SCHEMA", true); err != nil {
		return nil, err
	}
	if cfg.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return nil, err
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if cfg.OTLPInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}

	tz := getEnv("APP_TIMEZONE", "UTC")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", tz, err)
	}

	return cfg, nil
}

// Development reports whether the app runs with development defaults.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
