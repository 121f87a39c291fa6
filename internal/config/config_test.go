package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no stray .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_PATH", filepath.Join(dir, "db", "test.db"))
	return dir
}

func TestFromEnvDefaults(t *testing.T) {
	isolate(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 7, cfg.CodeLength)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, "best-effort", cfg.ClickPolicy)
	assert.Equal(t, "X-Vercel-IP-Country", cfg.CountryHeader)
	assert.Zero(t, cfg.CleanupInterval)
	assert.DirExists(t, filepath.Dir(cfg.DBPath))
}

func TestFromEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://sho.rt///")
	t.Setenv("CODE_LENGTH", "-1")
	t.Setenv("RATE_LIMIT", "2:30")
	t.Setenv("CLEANUP_INTERVAL", "3600")
	t.Setenv("CLICK_POLICY", "STRICT")
	t.Setenv("TZ_NAME", "Europe/Berlin")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://sho.rt", cfg.BaseURL)
	assert.Equal(t, 7, cfg.CodeLength)
	assert.Equal(t, 2, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateWindow)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, "strict", cfg.ClickPolicy)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	isolate(t)
	t.Setenv("RATE_LIMIT", "lots")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("RATE_LIMIT", "")
	t.Setenv("CLICK_POLICY", "sometimes")
	_, err = FromEnv()
	assert.Error(t, err)

	t.Setenv("CLICK_POLICY", "")
	t.Setenv("TZ_NAME", "Mars/Olympus")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestYAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "urlitrim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
base_url: https://from.yaml
rate_limit: 5
rate_window: 2m
cleanup_interval: 10m
redis_addr: localhost:6379
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, "https://from.yaml", cfg.BaseURL)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.Equal(t, 2*time.Minute, cfg.RateWindow)
	assert.Equal(t, 10*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestDotEnvDoesNotOverride(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CRON_SECRET=from-dotenv\nSENTRY_ENV=from-dotenv\n"), 0o600))
	t.Setenv("SENTRY_ENV", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CRON_SECRET") })

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.CronSecret)
	assert.Equal(t, "from-env", cfg.SentryEnv)
}

func TestParseRateLimit(t *testing.T) {
	cases := []struct {
		in     string
		limit  int
		window time.Duration
		ok     bool
	}{
		{"10", 10, 0, true},
		{"10:60", 10, time.Minute, true},
		{" 3 : 5s ", 3, 5 * time.Second, true},
		{"0", 0, 0, true},
		{"ten", 0, 0, false},
		{"10:", 0, 0, false},
	}
	for _, tc := range cases {
		limit, window, ok := parseRateLimit(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.limit, limit, tc.in)
			assert.Equal(t, tc.window, window, tc.in)
		}
	}
}
