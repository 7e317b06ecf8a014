package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config carries the connection settings for an S3-compatible endpoint.
// EndpointURL is only needed for non-AWS deployments such as MinIO.
type S3Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

type S3Api interface {
	manager.DownloadAPIClient
	manager.ListObjectsV2APIClient
}

// S3Source stages every object under s3://bucket/prefix into a fresh
// directory below cacheDir. Nested prefixes are flattened; model artifacts
// are expected to be a flat set of files.
type S3Source struct {
	client   S3Api
	bucket   string
	prefix   string
	cacheDir string
}

func NewS3Source(s3Path, cacheDir string, cfg S3Config) (*S3Source, error) {
	bucket, prefix, err := ParseS3Path(s3Path)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, fmt.Errorf("missing bucket in S3 path '%s'", s3Path)
	}

	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}

	return &S3Source{client: client, bucket: bucket, prefix: prefix, cacheDir: cacheDir}, nil
}

// NewS3SourceFromClient wires in an existing client; tests use this.
func NewS3SourceFromClient(client S3Api, bucket, prefix, cacheDir string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix, cacheDir: cacheDir}
}

func NewS3Client(cfg S3Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) { // nolint:staticcheck
		if cfg.EndpointURL != "" {
			return aws.Endpoint{ // nolint:staticcheck
				PartitionID:       "aws",
				URL:               cfg.EndpointURL,
				SigningRegion:     cfg.Region,
				HostnameImmutable: true, // Important for MinIO
			}, nil
		}
		// fallback to default AWS endpoint resolution
		return aws.Endpoint{}, &aws.EndpointNotFoundError{} // nolint:staticcheck
	})

	opts := []func(*aws_config.LoadOptions) error{
		aws_config.WithRegion(cfg.Region),
		aws_config.WithEndpointResolverWithOptions(resolver), // nolint:staticcheck
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true // Use path-style addressing (needed for MinIO)
	}), nil
}

func (s *S3Source) Fetch(ctx context.Context) (string, error) {
	keys, err := s.list(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no objects found under s3://%s/%s", s.bucket, s.prefix)
	}

	dir := filepath.Join(s.cacheDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}

	downloader := manager.NewDownloader(s.client)
	for _, key := range keys {
		if err := s.downloadFile(ctx, downloader, key, filepath.Join(dir, filepath.Base(key))); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}

	slog.Info("staged model artifact", "bucket", s.bucket, "prefix", s.prefix, "files", len(keys), "dir", dir)
	return dir, nil
}

func (s *S3Source) list(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && !strings.HasSuffix(*obj.Key, "/") { // Exclude "directories"
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func (s *S3Source) downloadFile(ctx context.Context, downloader *manager.Downloader, key, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", localPath, err)
	}
	defer file.Close()

	if _, err := downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to download s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
