package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Calendar    CalendarConfig
	Upstream    UpstreamConfig
	Reconciler  ReconcilerConfig
	Aggregation AggregationConfig
	Cache       CacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// CalendarConfig defines the business schedule used for duration math.
// BusinessDays holds ISO weekday numbers (1=Monday .. 7=Sunday).
type CalendarConfig struct {
	Timezone     string
	BusinessDays []int
	StartHour    int
	EndHour      int
}

// UpstreamConfig points at the ticketing provider's snapshot API.
type UpstreamConfig struct {
	BaseURL           string
	APIToken          string
	PageSize          int
	WindowDays        int
	RequestTimeoutSec int
	PacingMillis      int
	MaxRetries        int
	RetryBaseMillis   int
}

// ReconcilerConfig controls the closure-count reconciliation cadences.
type ReconcilerConfig struct {
	ShortSchedule string
	LongSchedule  string
	LookbackDays  int
}

// AggregationConfig controls the scheduled aggregation runs.
type AggregationConfig struct {
	Schedule string
}

// CacheConfig sets the freshness windows for cached read responses.
type CacheConfig struct {
	TTLSeconds        int
	StaleAfterSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	businessDays, err := parseISOWeekdays(getEnv("CALENDAR_BUSINESS_DAYS", "1,2,3,4,5"))
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_BUSINESS_DAYS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-insights"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Calendar: CalendarConfig{
			Timezone:     getEnv("CALENDAR_TIMEZONE", "Europe/Berlin"),
			BusinessDays: businessDays,
			StartHour:    getEnvAsInt("CALENDAR_START_HOUR", 9),
			EndHour:      getEnvAsInt("CALENDAR_END_HOUR", 17),
		},
		Upstream: UpstreamConfig{
			BaseURL:           getEnv("UPSTREAM_BASE_URL", ""),
			APIToken:          os.Getenv("UPSTREAM_API_TOKEN"),
			PageSize:          getEnvAsInt("UPSTREAM_PAGE_SIZE", 100),
			WindowDays:        getEnvAsInt("UPSTREAM_WINDOW_DAYS", 5),
			RequestTimeoutSec: getEnvAsInt("UPSTREAM_REQUEST_TIMEOUT_SECONDS", 15),
			PacingMillis:      getEnvAsInt("UPSTREAM_PACING_MILLIS", 250),
			MaxRetries:        getEnvAsInt("UPSTREAM_MAX_RETRIES", 3),
			RetryBaseMillis:   getEnvAsInt("UPSTREAM_RETRY_BASE_MILLIS", 500),
		},
		Reconciler: ReconcilerConfig{
			ShortSchedule: getEnv("RECONCILER_SHORT_SCHEDULE", "@every 5m"),
			LongSchedule:  getEnv("RECONCILER_LONG_SCHEDULE", "@every 1h"),
			LookbackDays:  getEnvAsInt("RECONCILER_LOOKBACK_DAYS", 30),
		},
		Aggregation: AggregationConfig{
			Schedule: getEnv("AGGREGATION_SCHEDULE", "30 0 * * *"),
		},
		Cache: CacheConfig{
			TTLSeconds:        getEnvAsInt("CACHE_TTL_SECONDS", 900),
			StaleAfterSeconds: getEnvAsInt("CACHE_STALE_AFTER_SECONDS", 300),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Weekdays converts the ISO weekday numbers into time.Weekday form.
func (c CalendarConfig) Weekdays() map[time.Weekday]bool {
	days := make(map[time.Weekday]bool, len(c.BusinessDays))
	for _, iso := range c.BusinessDays {
		days[time.Weekday(iso%7)] = true
	}
	return days
}

// Pacing returns the delay inserted between upstream window requests.
func (u UpstreamConfig) Pacing() time.Duration {
	if u.PacingMillis <= 0 {
		return 0
	}
	return time.Duration(u.PacingMillis) * time.Millisecond
}

// RequestTimeout returns the per-request upstream timeout.
func (u UpstreamConfig) RequestTimeout() time.Duration {
	if u.RequestTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(u.RequestTimeoutSec) * time.Second
}

// RetryBase returns the initial backoff delay for upstream retries.
func (u UpstreamConfig) RetryBase() time.Duration {
	if u.RetryBaseMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(u.RetryBaseMillis) * time.Millisecond
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// StaleAfter returns the preferred freshness window.
func (c CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

func parseISOWeekdays(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	days := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		day, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		if day < 1 || day > 7 {
			return nil, fmt.Errorf("weekday %d out of range 1-7", day)
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no weekdays configured")
	}
	return days, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
