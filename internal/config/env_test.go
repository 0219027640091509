package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "DMSCAN_WORKERS", "DMSCAN_DPI", "DMSCAN_BLOCK_SIZE", "DMSCAN_OFFSET", "CACHE_REDIS_URL", "CACHE_TTL", "DMSCAN_CONTENT_ONLY"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, runtime.NumCPU(), cfg.Scan.Workers)
	assert.Equal(t, float64(DefaultDPI), cfg.Scan.DPI)
	assert.Equal(t, DefaultBlockSize, cfg.Scan.BlockSize)
	assert.Equal(t, float64(DefaultOffset), cfg.Scan.Offset)
	assert.False(t, cfg.Scan.ContentOnly)
	assert.Empty(t, cfg.Cache.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "dev_dmscan", cfg.Axiom.Dataset)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DMSCAN_WORKERS", "3")
	t.Setenv("DMSCAN_DPI", "300")
	t.Setenv("DMSCAN_BLOCK_SIZE", "31")
	t.Setenv("DMSCAN_OFFSET", "4.5")
	t.Setenv("DMSCAN_CONTENT_ONLY", "yes")
	t.Setenv("CACHE_TTL", "90m")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.Scan.Workers)
	assert.Equal(t, 300.0, cfg.Scan.DPI)
	assert.Equal(t, 31, cfg.Scan.BlockSize)
	assert.Equal(t, 4.5, cfg.Scan.Offset)
	assert.True(t, cfg.Scan.ContentOnly)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DMSCAN_WORKERS", "-2")
	t.Setenv("DMSCAN_DPI", "lots")
	t.Setenv("CACHE_TTL", "tomorrow")

	cfg := FromEnv()

	assert.Equal(t, runtime.NumCPU(), cfg.Scan.Workers)
	assert.Equal(t, float64(DefaultDPI), cfg.Scan.DPI)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "TRUE": true, " on ": true, "yes": true, "0": false, "": false, "nope": false} {
		assert.Equal(t, want, parseBool(in), in)
	}
}
