package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Source fetches a model artifact and returns a local directory holding it.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// NewSource picks an implementation from the path scheme: s3://bucket/prefix
// is staged through cacheDir, anything else is treated as a directory on
// disk.
func NewSource(path, cacheDir string, cfg S3Config) (Source, error) {
	if strings.HasPrefix(path, "s3://") {
		return NewS3Source(path, cacheDir, cfg)
	}
	return &LocalSource{Dir: path}, nil
}

// LocalSource serves a model artifact straight from a directory.
type LocalSource struct {
	Dir string
}

func (s *LocalSource) Fetch(ctx context.Context) (string, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return "", fmt.Errorf("model directory %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("model path %s is not a directory", s.Dir)
	}
	return s.Dir, nil
}

func ParseS3Path(s3Path string) (bucket, key string, err error) {
	parsed, err := url.Parse(s3Path)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 path '%s': %w", s3Path, err)
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid scheme in S3 path '%s', expected 's3'", s3Path)
	}
	bucket = parsed.Host
	key = strings.TrimPrefix(parsed.Path, "/")
	return bucket, key, nil
}
