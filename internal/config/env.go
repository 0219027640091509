package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ScanConfig controls rasterization, enhancement and decoding.
type ScanConfig struct {
	Workers     int
	DPI         float64
	BlockSize   int
	Offset      float64
	MaxSymbols  int
	ContentOnly bool
}

// CacheConfig configures the optional Redis result cache.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// SourceConfig configures how remote input references are fetched.
type SourceConfig struct {
	HTTPTimeout     time.Duration
	DecryptPassword string
}

// ConverterConfig configures office document conversion.
type ConverterConfig struct {
	LibreOfficeBin string
	Timeout        time.Duration
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	File string
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Scan      ScanConfig
	Cache     CacheConfig
	Source    SourceConfig
	Converter ConverterConfig
	Metrics   MetricsConfig
}

// Scan defaults: 200 DPI rendering, 51px Gaussian neighbourhood, C=7.
const (
	DefaultDPI        = 200
	DefaultBlockSize  = 51
	DefaultOffset     = 7
	DefaultMaxSymbols = 64
)

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Stdout carries CSV, so the default level keeps stderr quiet.
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "warn"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_dmscan",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Scan = ScanConfig{
		Workers:     parseInt(getEnv("DMSCAN_WORKERS", ""), runtime.NumCPU()),
		DPI:         parseFloat(getEnv("DMSCAN_DPI", ""), DefaultDPI),
		BlockSize:   parseInt(getEnv("DMSCAN_BLOCK_SIZE", ""), DefaultBlockSize),
		Offset:      parseFloat(getEnv("DMSCAN_OFFSET", ""), DefaultOffset),
		MaxSymbols:  parseInt(getEnv("DMSCAN_MAX_SYMBOLS", ""), DefaultMaxSymbols),
		ContentOnly: parseBool(getEnv("DMSCAN_CONTENT_ONLY", "0")),
	}
	if cfg.Scan.Workers <= 0 {
		cfg.Scan.Workers = runtime.NumCPU()
	}

	cfg.Cache = CacheConfig{
		RedisURL: getEnv("CACHE_REDIS_URL", ""),
		TTL:      parseDuration(getEnv("CACHE_TTL", "24h"), 24*time.Hour),
	}

	cfg.Source = SourceConfig{
		HTTPTimeout:     parseDuration(getEnv("SOURCE_HTTP_TIMEOUT", "60s"), 60*time.Second),
		DecryptPassword: getEnv("SOURCE_DECRYPT_PASSWORD", ""),
	}

	cfg.Converter = ConverterConfig{
		LibreOfficeBin: getEnv("LIBREOFFICE_BIN", "libreoffice"),
		Timeout:        parseDuration(getEnv("LIBREOFFICE_TIMEOUT", "180s"), 180*time.Second),
	}

	cfg.Metrics = MetricsConfig{
		File: getEnv("METRICS_FILE", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
