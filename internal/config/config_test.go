package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Keep tests independent of a developer's .env.
func TestMain(m *testing.M) {
	os.Setenv("ENV_FILE", filepath.Join(os.TempDir(), "e-commerce-config-test-missing.env"))
	os.Unsetenv("PORT")
	os.Unsetenv("CONFIG_FILE")
	os.Exit(m.Run())
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	assert.Panics(t, func() { _ = MustLoad() })
}

func TestMustLoad_Defaults(t *testing.T) {
	var cfg Config
	require.NotPanics(t, func() { cfg = MustLoad() })

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/api", cfg.APIBasePath)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "data/app.db", cfg.DBPath)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 5, cfg.Auth.MaxSessions)
	assert.Equal(t, "OpenMart", cfg.Support.Brand)
	assert.False(t, cfg.Support.Enabled())
	assert.Equal(t, "e-commerce", cfg.OTEL.ServiceName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "shop/api/")
	t.Setenv("DATA_DIR", "/var/lib/shop")
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")
	t.Setenv("JWT_ACCESS_SECRET", "a1")
	t.Setenv("JWT_REFRESH_SECRET", "r1")
	t.Setenv("MAX_SESSIONS_PER_USER", "3")
	t.Setenv("COOKIE_SECURE", "1")
	t.Setenv("TELEGRAM_BOT_TOKEN", " tok ")
	t.Setenv("TELEGRAM_CHAT_ID", "-100")
	t.Setenv("TELEGRAM_THREAD_ID", "abc")
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 8192, cfg.MaxHeaderBytes)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.SwaggerEnabled)
	assert.Equal(t, "/shop/api", cfg.APIBasePath)
	assert.Equal(t, "/var/lib/shop/app.db", cfg.DBPath, "DB_PATH follows DATA_DIR")
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Security.EnableHSTS)
	assert.Equal(t, 24*time.Hour, cfg.Security.HSTSMaxAge)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 3, cfg.Auth.MaxSessions)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, "tok", cfg.Support.BotToken)
	assert.Empty(t, cfg.Support.ThreadID, "non-numeric thread id dropped")
	assert.True(t, cfg.Support.Enabled())
	assert.True(t, cfg.OTEL.Enabled)
	assert.False(t, cfg.OTEL.Insecure)
	assert.Equal(t, 0.75, cfg.OTEL.SampleRatio)
}

func TestLoad_ThreadIDCanonical(t *testing.T) {
	for raw, want := range map[string]string{
		"007":   "7",
		" 42 ":  "42",
		"-0012": "-12",
		"topic": "",
		"":      "",
		"12abc": "",
	} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("TELEGRAM_THREAD_ID", raw)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, want, cfg.Support.ThreadID)
		})
	}
}

func TestLoad_DotenvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SUPPORT_BRAND=FromDotenv\nTELEGRAM_THREAD_ID=42\n"), 0o600))
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("PORT: 9090\nRATE_BURST: 20\n"), 0o600))

	t.Setenv("ENV_FILE", envFile)
	t.Setenv("CONFIG_FILE", cfgFile)
	// godotenv writes straight into the process environment
	t.Cleanup(func() {
		os.Unsetenv("SUPPORT_BRAND")
		os.Unsetenv("TELEGRAM_THREAD_ID")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "FromDotenv", cfg.Support.Brand)
	assert.Equal(t, "42", cfg.Support.ThreadID)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 20, cfg.RateBurst)

	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))
	_, err = Load()
	assert.ErrorContains(t, err, "CONFIG_FILE")
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"PORT", "   ", "PORT must not be empty"},
		{"READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"DATA_DIR", "   ", "DATA_DIR must not be empty"},
		{"DB_PATH", "   ", "DB_PATH must not be empty"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"JWT_REFRESH_SECRET", "dev-access-secret", "must differ"},
		{"ACCESS_TOKEN_TTL", "-5m", "ACCESS_TOKEN_TTL"},
		{"MAX_SESSIONS_PER_USER", "0", "MAX_SESSIONS_PER_USER"},
		{"TELEGRAM_HTTP_TIMEOUT", "0s", "TELEGRAM_HTTP_TIMEOUT"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestSource_FallsBackOnBadValues(t *testing.T) {
	t.Setenv("F_BAD", "nope")
	t.Setenv("I_BAD", "x")
	t.Setenv("D_BAD", "zzz")
	t.Setenv("B_BAD", "maybe")
	t.Setenv("D_OK", "150ms")
	t.Setenv("B_OFF", " Off ")

	v := viperForTest()
	assert.Equal(t, 1.23, v.float("F_BAD", 1.23))
	assert.Equal(t, 7, v.int("I_BAD", 7))
	assert.Equal(t, 2*time.Second, v.dur("D_BAD", 2*time.Second))
	assert.True(t, v.bool("B_BAD", true))
	assert.Equal(t, 150*time.Millisecond, v.dur("D_OK", time.Second))
	assert.False(t, v.bool("B_OFF", true))
	assert.Equal(t, "d", v.str("UNSET_KEY", "d"))
}

func viperForTest() source {
	v := viper.New()
	v.AutomaticEnv()
	return source{v}
}

func TestNormalizeBasePathAndCSV(t *testing.T) {
	assert.Equal(t, "/", normalizeBasePath(""))
	assert.Equal(t, "/v1", normalizeBasePath("v1"))
	assert.Equal(t, "/v1", normalizeBasePath("/v1/"))
	assert.Equal(t, "/", normalizeBasePath(" / "))
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, ,b ,  c  ,"))
}
