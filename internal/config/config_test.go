package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, ":2112", cfg.MetricsAddress)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.PresignTTL)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, []byte("dev-secret"), cfg.JWTSecret)
	assert.Equal(t, []string{"mp4", "mov", "avi", "webm", "mkv", "flv", "wmv"}, cfg.AllowedExtensions)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLIPSCRIBE_ADDRESS", ":9999")
	t.Setenv("CLIPSCRIBE_PRESIGN_TTL", "15m")
	t.Setenv("CLIPSCRIBE_WORKERS", "12")
	t.Setenv("CLIPSCRIBE_S3_USE_SSL", "true")
	t.Setenv("CLIPSCRIBE_ALLOWED_EXTENSIONS", "MP4, MOV")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Address)
	assert.Equal(t, 15*time.Minute, cfg.PresignTTL)
	assert.Equal(t, 12, cfg.WorkerConcurrency)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, []string{"mp4", "mov"}, cfg.AllowedExtensions)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"int", "CLIPSCRIBE_WORKERS", "many"},
		{"duration", "CLIPSCRIBE_FFMPEG_TIMEOUT", "soon"},
		{"bool", "CLIPSCRIBE_S3_USE_SSL", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
			assert.Contains(t, err.Error(), tc.value)
		})
	}
}

func TestLoadNormalizesOutOfRangeValues(t *testing.T) {
	t.Setenv("CLIPSCRIBE_WORKERS", "-2")
	t.Setenv("CLIPSCRIBE_PRESIGN_TTL", "-1h")
	t.Setenv("CLIPSCRIBE_MAX_RETRIES", "-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, time.Hour, cfg.PresignTTL)
	assert.Equal(t, 3, cfg.MaxRetries)
}
