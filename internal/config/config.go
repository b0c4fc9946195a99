package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module loads configuration once at startup.
var Module = fx.Provide(Load)

// OrgConfig is the per-organization configuration block, discovered from the
// environment by the presence of <SLUG>_CONNECTOR_API_KEY.
type OrgConfig struct {
	Slug               string
	ConnectorAPIKey    string
	EventbriteToken    string
	EventbriteOrgID    string
	TypeMap            map[string]string
	PaypalClientID     string
	PaypalClientSecret string
	PaypalProperty     string
}

// HasEventbrite reports whether the org is configured for Eventbrite imports.
func (o OrgConfig) HasEventbrite() bool { return o.EventbriteToken != "" }

// HasPaypal reports whether the org is configured for PayPal imports.
func (o OrgConfig) HasPaypal() bool { return o.PaypalClientID != "" }

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel  string
	LogFormat string

	HTTPAddr string

	OtelEnabled  bool
	OTLPEndpoint string
	OTLPProtocol string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ImportInterval       time.Duration
	PaypalImportDays     int
	EventbriteMaxAgeDays int
	WorkerMaxRetries     int
	WorkerRetryBackoff   time.Duration

	Orgs []OrgConfig
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "donorsync"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OtelEnabled:  getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol: getenv("OTLP_PROTOCOL", "grpc"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "donorsync"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 0),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 0),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ImportInterval:       getenvDuration("IMPORT_INTERVAL", 24*time.Hour),
		PaypalImportDays:     getenvInt("PAYPAL_IMPORT_DAYS", 3),
		EventbriteMaxAgeDays: getenvInt("EVENTBRITE_MAX_AGE_DAYS", 90),
		WorkerMaxRetries:     getenvInt("WORKER_MAX_RETRIES", 1),
		WorkerRetryBackoff:   getenvDuration("WORKER_RETRY_BACKOFF", 5*time.Second),
	}

	cfg.Orgs = loadOrgs()
	return cfg
}

// loadOrgs discovers organization blocks from the environment. A slug is any
// lowercase prefix of a *_CONNECTOR_API_KEY variable.
func loadOrgs() []OrgConfig {
	slugs := map[string]struct{}{}
	for _, entry := range os.Environ() {
		key, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if slug, found := strings.CutSuffix(key, "_CONNECTOR_API_KEY"); found && slug != "" {
			slugs[strings.ToLower(slug)] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(slugs))
	for slug := range slugs {
		ordered = append(ordered, slug)
	}
	sort.Strings(ordered)

	orgs := make([]OrgConfig, 0, len(ordered))
	for _, slug := range ordered {
		prefix := strings.ToUpper(slug) + "_"
		org := OrgConfig{
			Slug:               slug,
			ConnectorAPIKey:    getenv(prefix+"CONNECTOR_API_KEY", ""),
			EventbriteToken:    getenv(prefix+"EVENTBRITE_TOKEN", ""),
			EventbriteOrgID:    getenv(prefix+"EVENTBRITE_ORG_ID", ""),
			PaypalClientID:     getenv(prefix+"PAYPAL_CLIENT_ID", ""),
			PaypalClientSecret: getenv(prefix+"PAYPAL_CLIENT_SECRET", ""),
			PaypalProperty:     getenv(prefix+"PAYPAL_PROPERTY", "Property1"),
		}
		if org.EventbriteToken != "" {
			org.TypeMap = parseTypeMap(getenv(prefix+"TYPE_MAP", ""))
		}
		orgs = append(orgs, org)
	}
	return orgs
}

// parseTypeMap parses "paid:Event Ticket,free:Ignore" style mappings from
// ticket category to CRM record type name.
func parseTypeMap(raw string) map[string]string {
	out := map[string]string{}
	for _, mapping := range strings.Split(raw, ",") {
		mapping = strings.TrimSpace(mapping)
		if mapping == "" {
			continue
		}
		category, recordType, ok := strings.Cut(mapping, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(category)] = strings.TrimSpace(recordType)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
