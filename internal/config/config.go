package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	PublicBaseURL      string
	CORSAllowedOrigins []string

	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	PasswordResetTTL      time.Duration
	RefreshCookieName     string
	RefreshCookieDomain   string
	RefreshCookieSecure   bool
	RefreshCookieSameSite http.SameSite

	// Pricing defaults applied until the settings row is first written.
	ExchangeRateDefault decimal.Decimal
	CostPerPound        decimal.Decimal
	BaseTaxEnabled      bool
	SettingsCacheTTL    time.Duration

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	NotifyEmailTopics  map[string]bool
	NotifyOnPurchased  bool
	NotifyOnDelivered  bool

	WebhookDeliveryEnabled    bool
	WebhookRequestTimeout     time.Duration
	WebhookAllowInsecureTLS   bool
	WebhookBackoffBaseSec     int
	WebhookDefaultMaxAttempts int
	WebhookReplayTTL          time.Duration
	EventWorkerConcurrency    int

	DeliveryTrackReplayTTL time.Duration

	QueueRedisPrefix        string
	QueueConcurrencyWebhook int
	QueueVisibilityTimeout  time.Duration
	QueueSoftDeadline       time.Duration
	QueueBackoffBase        time.Duration
	QueueBackoffJitter      float64

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	AnalyticsCacheTTL     time.Duration
	AnalyticsDefaultRange int

	IdempotencyTTL time.Duration

	AuditEnabled      bool
	AuditSamplingRate float64

	RateLimitEnabled bool
	RateLimitWindow  time.Duration
	RateLimitMax     int

	SecurityHeadersEnabled bool
	BodyLimitBytes         int64

	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBStatementCacheCapacity int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		PublicBaseURL:      valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		AccessTokenTTL:        parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		RefreshTokenTTL:       parseDuration(k.String("REFRESH_TOKEN_TTL"), "720h"),
		PasswordResetTTL:      parseDuration(k.String("PASSWORD_RESET_TTL"), "24h"),
		RefreshCookieName:     valueOrDefault(k.String("REFRESH_COOKIE_NAME"), "rt"),
		RefreshCookieDomain:   strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		RefreshCookieSecure:   parseBool(k.String("COOKIE_SECURE")),
		RefreshCookieSameSite: parseSameSite(k.String("COOKIE_SAMESITE")),

		ExchangeRateDefault: parseDecimal(k.String("EXCHANGE_RATE_DEFAULT"), "1"),
		CostPerPound:        parseDecimal(k.String("COST_PER_POUND"), "3.5"),
		BaseTaxEnabled:      parseBoolDefault(k.String("BASE_TAX_ENABLED"), true),
		SettingsCacheTTL:    parseDuration(k.String("SETTINGS_CACHE_TTL"), "5m"),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@envioex.local"),
		NotifyEmailTopics:  parseTopicToggles(k.String("NOTIFY_EMAIL_TOPICS")),
		NotifyOnPurchased:  parseBoolDefault(k.String("NOTIFY_ON_PURCHASED"), true),
		NotifyOnDelivered:  parseBoolDefault(k.String("NOTIFY_ON_DELIVERED"), true),

		WebhookDeliveryEnabled:    parseBoolDefault(k.String("WEBHOOK_DELIVERY_ENABLED"), true),
		WebhookRequestTimeout:     parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "5s"),
		WebhookAllowInsecureTLS:   parseBool(k.String("WEBHOOK_ALLOW_INSECURE_TLS")),
		WebhookBackoffBaseSec:     parseInt(k.String("WEBHOOK_BACKOFF_BASE_SEC"), 30),
		WebhookDefaultMaxAttempts: parseInt(k.String("WEBHOOK_DEFAULT_MAX_ATTEMPTS"), 5),
		WebhookReplayTTL:          parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		EventWorkerConcurrency:    parseInt(k.String("EVENT_WORKER_CONCURRENCY"), 1),

		DeliveryTrackReplayTTL: parseDuration(k.String("DELIVERY_TRACK_REPLAY_TTL"), "24h"),

		QueueRedisPrefix:        valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "envioex"),
		QueueConcurrencyWebhook: parseInt(k.String("QUEUE_CONCURRENCY_WEBHOOK"), 4),
		QueueVisibilityTimeout:  parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "30s"),
		QueueSoftDeadline:       parseDuration(k.String("QUEUE_SOFT_DEADLINE"), "25s"),
		QueueBackoffBase:        parseDuration(k.String("QUEUE_BACKOFF_BASE"), "500ms"),
		QueueBackoffJitter:      parseFloat(k.String("QUEUE_BACKOFF_JITTER"), 0.2),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "100ms"),

		AnalyticsCacheTTL:     parseDuration(k.String("ANALYTICS_CACHE_TTL"), "60s"),
		AnalyticsDefaultRange: parseInt(k.String("ANALYTICS_DEFAULT_RANGE_DAYS"), 30),

		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		AuditEnabled:      parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		AuditSamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),

		RateLimitEnabled: parseBoolDefault(k.String("RATE_LIMIT_ENABLED"), true),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 120),

		SecurityHeadersEnabled: parseBoolDefault(k.String("SECURE_HEADERS_ENABLED"), true),
		BodyLimitBytes:         int64(parseInt(k.String("SECURE_BODY_LIMIT_BYTES"), 1<<20)),

		DBMaxOpenConns:           parseInt(k.String("DB_MAX_OPEN_CONNS"), 0),
		DBMaxIdleConns:           parseInt(k.String("DB_MAX_IDLE_CONNS"), 0),
		DBStatementCacheCapacity: parseInt(k.String("DB_STATEMENT_CACHE_CAPACITY"), -1),
	}

	if cfg.RefreshCookieSameSite == http.SameSiteDefaultMode {
		cfg.RefreshCookieSameSite = http.SameSiteLaxMode
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if !cfg.ExchangeRateDefault.IsPositive() {
		return nil, errors.New("EXCHANGE_RATE_DEFAULT must be greater than zero")
	}
	if !cfg.CostPerPound.IsPositive() {
		return nil, errors.New("COST_PER_POUND must be greater than zero")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDecimal(value, fallback string) decimal.Decimal {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		parsed, _ = decimal.NewFromString(fallback)
	}
	return parsed
}

// parseTopicToggles reads a CSV of topic=bool pairs, e.g.
// "order.purchased=true,invoice.created=false". Bare topics default to true.
func parseTopicToggles(value string) map[string]bool {
	entries := splitAndTrim(value)
	if len(entries) == 0 {
		return nil
	}
	toggles := make(map[string]bool, len(entries))
	for _, entry := range entries {
		topic, raw, found := strings.Cut(entry, "=")
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" {
			continue
		}
		if !found {
			toggles[topic] = true
			continue
		}
		toggles[topic] = parseBool(raw)
	}
	return toggles
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
