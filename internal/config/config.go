package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration with sensible defaults for local dev.
type Config struct {
	Port       int    `yaml:"port"`        // HTTP port (default 8080)
	BaseURL    string `yaml:"base_url"`    // e.g., http://localhost:8080 (no trailing slash)
	DBPath     string `yaml:"db_path"`     // e.g., ./data/urlitrim.db
	CodeLength int    `yaml:"code_length"` // base62 code length (default 7)

	// Fixed-window limit for POST /api/shorten. RateLimit <= 0 disables it.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`

	// Redis backs the rate limiter when RedisAddr is set; otherwise limits
	// are kept in process memory.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	CleanupInterval time.Duration `yaml:"cleanup_interval"` // 0 disables the in-process sweep
	CronSecret      string        `yaml:"cron_secret"`      // bearer token for GET /api/cleanup
	CountryHeader   string        `yaml:"country_header"`   // edge geo header carrying an ISO country code
	Timezone        string        `yaml:"timezone"`         // calendar for daily/hourly stats
	ClickPolicy     string        `yaml:"click_policy"`     // best-effort | strict

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text | json
	LogFile   string `yaml:"log_file"`   // empty logs to stderr

	SentryDSN string `yaml:"sentry_dsn"`
	SentryEnv string `yaml:"sentry_env"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:          8080,
		BaseURL:       "http://localhost:8080",
		DBPath:        "./data/urlitrim.db",
		CodeLength:    7,
		RateLimit:     10,
		RateWindow:    time.Minute,
		CountryHeader: "X-Vercel-IP-Country",
		Timezone:      "UTC",
		ClickPolicy:   "best-effort",
		LogLevel:      "info",
		LogFormat:     "text",
		SentryEnv:     "development",
	}
}

// FromEnv loads configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
// Recognized: PORT, BASE_URL, DB_PATH, CODE_LENGTH, RATE_LIMIT,
// REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, CLEANUP_INTERVAL, CRON_SECRET,
// COUNTRY_HEADER, TZ_NAME, CLICK_POLICY, LOG_LEVEL, LOG_FORMAT, LOG_FILE,
// SENTRY_DSN, SENTRY_ENV.
// A local ".env" file is loaded first if present; it never overrides
// variables already set in the environment.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.BaseURL = getEnv("BASE_URL", cfg.BaseURL)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.CodeLength = getEnvInt("CODE_LENGTH", cfg.CodeLength)

	if rl := strings.TrimSpace(os.Getenv("RATE_LIMIT")); rl != "" {
		limit, window, ok := parseRateLimit(rl)
		if !ok {
			return Config{}, fmt.Errorf("RATE_LIMIT %q: want LIMIT or LIMIT:WINDOW_SECONDS", rl)
		}
		cfg.RateLimit = limit
		if window > 0 {
			cfg.RateWindow = window
		}
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.CronSecret = getEnv("CRON_SECRET", cfg.CronSecret)
	cfg.CountryHeader = getEnv("COUNTRY_HEADER", cfg.CountryHeader)
	cfg.Timezone = getEnv("TZ_NAME", cfg.Timezone)
	cfg.ClickPolicy = getEnv("CLICK_POLICY", cfg.ClickPolicy)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	cfg.SentryDSN = getEnv("SENTRY_DSN", cfg.SentryDSN)
	cfg.SentryEnv = getEnv("SENTRY_ENV", cfg.SentryEnv)

	return cfg.sanitize()
}

// Location resolves Timezone, falling back to UTC when it is empty.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) sanitize() (Config, error) {
	c.BaseURL = sanitizeBaseURL(c.BaseURL)
	c.DBPath = getDBPath(c.DBPath)
	if c.CodeLength <= 0 {
		c.CodeLength = 7
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.CleanupInterval < 0 {
		c.CleanupInterval = 0
	}
	c.ClickPolicy = strings.ToLower(strings.TrimSpace(c.ClickPolicy))
	switch c.ClickPolicy {
	case "", "best-effort":
		c.ClickPolicy = "best-effort"
	case "strict":
	default:
		return Config{}, fmt.Errorf("CLICK_POLICY %q: want best-effort or strict", c.ClickPolicy)
	}
	if _, err := c.Location(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s", "1h") or bare seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func sanitizeBaseURL(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	if s == "" {
		return "http://localhost:8080"
	}
	return s
}

func getDBPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = "./data/urlitrim.db"
	}
	if p == ":memory:" || strings.HasPrefix(p, "file:") {
		return p
	}
	// Normalize to OS-specific path; create parent dir if possible (best-effort).
	p = filepath.Clean(p)
	if dir := filepath.Dir(p); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return p
}

var rateRe = regexp.MustCompile(`^\s*(\d+)\s*(?::\s*(\d+)\s*s?\s*)?$`)

// parseRateLimit accepts "10" or "10:60" (limit:window seconds).
func parseRateLimit(s string) (limit int, window time.Duration, ok bool) {
	m := rateRe.FindStringSubmatch(strings.ToLower(s))
	if len(m) == 0 {
		return 0, 0, false
	}
	limit, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		secs, _ := strconv.Atoi(m[2])
		window = time.Duration(secs) * time.Second
	}
	return limit, window, true
}
