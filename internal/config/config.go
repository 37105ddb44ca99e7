// Package config provides application configuration loaded from environment
// variables (optionally seeded from a .env file and a CONFIG_FILE) with
// defaults and validation. It centralizes server, storage, auth, support
// bridge and observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// AuthConfig holds token and session settings.
type AuthConfig struct {
	AccessSecret  string        // JWT_ACCESS_SECRET
	RefreshSecret string        // JWT_REFRESH_SECRET
	AccessTTL     time.Duration // ACCESS_TOKEN_TTL, also the cookie max age
	RefreshTTL    time.Duration // REFRESH_TOKEN_TTL
	MaxSessions   int           // MAX_SESSIONS_PER_USER
	CookieSecure  bool          // COOKIE_SECURE
}

// SupportConfig configures the Telegram support bridge. The bridge is off
// when BotToken or ChatID is empty.
type SupportConfig struct {
	BotToken    string        // TELEGRAM_BOT_TOKEN
	ChatID      string        // TELEGRAM_CHAT_ID
	ThreadID    string        // TELEGRAM_THREAD_ID (forum topic)
	SyncSecret  string        // TELEGRAM_SYNC_SECRET, empty leaves sync open
	APIEndpoint string        // TELEGRAM_API_ENDPOINT, "%s" placeholders for token and method
	HTTPTimeout time.Duration // TELEGRAM_HTTP_TIMEOUT
	Brand       string        // SUPPORT_BRAND
}

// Enabled reports whether outbound relay is configured.
func (s SupportConfig) Enabled() bool {
	return s.BotToken != "" && s.ChatID != ""
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DataDir string // directory of the JSON tables
	DBPath  string // SQLite path for idempotency records

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Auth    AuthConfig
	Support SupportConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration, applies defaults, normalizes values, and
// validates the result. Sources, highest priority first: process
// environment, the .env file named by ENV_FILE (default ".env"), the file
// named by CONFIG_FILE.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}
	v := viper.New()
	v.AutomaticEnv()
	if f := strings.TrimSpace(os.Getenv("CONFIG_FILE")); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
	}
	src := source{v}

	dataDir := src.str("DATA_DIR", "data")
	cfg := Config{
		// Server
		Port:              src.str("PORT", "8080"),
		ReadTimeout:       src.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: src.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      src.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       src.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    src.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(src.str("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(src.str("LOG_LEVEL", "info")),
		LogPretty:      src.bool("LOG_PRETTY", false),
		SwaggerEnabled: src.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(src.str("API_BASE_PATH", "/api")),

		// Storage
		DataDir: dataDir,
		DBPath:  src.str("DB_PATH", strings.TrimRight(dataDir, "/")+"/app.db"),

		// Rate limiting
		RateRPS:   src.float("RATE_RPS", 5.0),
		RateBurst: src.int("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(src.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: src.bool("ENABLE_HSTS", false),
			HSTSMaxAge: src.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: src.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth: AuthConfig{
			AccessSecret:  src.str("JWT_ACCESS_SECRET", "dev-access-secret"),
			RefreshSecret: src.str("JWT_REFRESH_SECRET", "dev-refresh-secret"),
			AccessTTL:     src.dur("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL:    src.dur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			MaxSessions:   src.int("MAX_SESSIONS_PER_USER", 5),
			CookieSecure:  src.bool("COOKIE_SECURE", false),
		},

		Support: SupportConfig{
			BotToken:    strings.TrimSpace(src.str("TELEGRAM_BOT_TOKEN", "")),
			ChatID:      strings.TrimSpace(src.str("TELEGRAM_CHAT_ID", "")),
			ThreadID:    strings.TrimSpace(src.str("TELEGRAM_THREAD_ID", "")),
			SyncSecret:  src.str("TELEGRAM_SYNC_SECRET", ""),
			APIEndpoint: src.str("TELEGRAM_API_ENDPOINT", ""),
			HTTPTimeout: src.dur("TELEGRAM_HTTP_TIMEOUT", 10*time.Second),
			Brand:       src.str("SUPPORT_BRAND", "OpenMart"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     src.bool("OTEL_ENABLED", false),
			Endpoint:    src.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    src.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: src.str("OTEL_SERVICE_NAME", "e-commerce"),
			SampleRatio: src.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	// Thread ids are compared as canonical decimals ("007" matches inbound 7);
	// non-numeric ones are ignored.
	if n, err := strconv.ParseInt(strings.TrimSpace(cfg.Support.ThreadID), 10, 64); err == nil {
		cfg.Support.ThreadID = strconv.FormatInt(n, 10)
	} else {
		cfg.Support.ThreadID = ""
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("DATA_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.AccessSecret) == "" || strings.TrimSpace(cfg.Auth.RefreshSecret) == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must not be empty")
	}
	if cfg.Auth.AccessSecret == cfg.Auth.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL and REFRESH_TOKEN_TTL must be > 0")
	}
	if cfg.Auth.MaxSessions < 1 {
		return errors.New("MAX_SESSIONS_PER_USER must be >= 1")
	}
	if cfg.Support.HTTPTimeout <= 0 {
		return errors.New("TELEGRAM_HTTP_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// loadDotenv seeds the process environment from ENV_FILE (default ".env").
// Variables already set win; a missing file is not an error.
func loadDotenv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// source reads typed values through viper, falling back to def when a key
// is unset, empty or unparsable.
type source struct {
	v *viper.Viper
}

func (s source) str(k, def string) string {
	if val := s.v.GetString(k); val != "" {
		return val
	}
	return def
}

func (s source) float(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s.v.GetString(k)), 64); err == nil {
		return f
	}
	return def
}

func (s source) int(k string, def int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(s.v.GetString(k))); err == nil {
		return i
	}
	return def
}

func (s source) bool(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s.v.GetString(k))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func (s source) dur(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s.v.GetString(k))); err == nil {
		return d
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
