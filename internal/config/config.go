package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration, populated from the environment.
// MODEL_PATH accepts a local directory or an s3://bucket/prefix location;
// S3 artifacts are staged under MODEL_CACHE_DIR before loading.
type Config struct {
	Port             int           `env:"PORT" envDefault:"8000"`
	ModelPath        string        `env:"MODEL_PATH" envDefault:"./models/maize"`
	ModelCacheDir    string        `env:"MODEL_CACHE_DIR" envDefault:"./models/cache"`
	MaxUploadMB      int64         `env:"MAX_UPLOAD_MB" envDefault:"10"`
	InferTimeout     time.Duration `env:"INFER_TIMEOUT" envDefault:"30s"`
	CORSOrigins      []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	OnnxRuntimeDylib string        `env:"ONNX_RUNTIME_DYLIB"`
	LogFile          string        `env:"LOG_FILE"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}
	if cfg.InferTimeout <= 0 {
		return nil, fmt.Errorf("INFER_TIMEOUT must be positive, got %s", cfg.InferTimeout)
	}

	return &cfg, nil
}

// MaxUploadBytes is the per-file upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}
