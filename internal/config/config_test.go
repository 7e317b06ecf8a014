package config_test

import (
	"testing"
	"time"

	"maize-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "./models/maize", cfg.ModelPath)
	assert.Equal(t, "./models/cache", cfg.ModelCacheDir)
	assert.Equal(t, int64(10), cfg.MaxUploadMB)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 30*time.Second, cfg.InferTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "us-east-1", cfg.S3Region)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PATH", "s3://models/maize/v2")
	t.Setenv("MAX_UPLOAD_MB", "25")
	t.Setenv("INFER_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("S3_ENDPOINT_URL", "http://localhost:9000")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "s3://models/maize/v2", cfg.ModelPath)
	assert.Equal(t, int64(25), cfg.MaxUploadMB)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 5*time.Second, cfg.InferTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "http://localhost:9000", cfg.S3EndpointURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric port", key: "PORT", value: "not-a-port"},
		{name: "zero upload limit", key: "MAX_UPLOAD_MB", value: "0"},
		{name: "negative upload limit", key: "MAX_UPLOAD_MB", value: "-5"},
		{name: "zero timeout", key: "INFER_TIMEOUT", value: "0s"},
		{name: "unparsable timeout", key: "INFER_TIMEOUT", value: "eventually"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
