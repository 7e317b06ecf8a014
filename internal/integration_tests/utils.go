package integrationtests

import (
	"context"
	"strings"
	"testing"

	"maize-backend/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func s3TestConfig(endpoint string) storage.S3Config {
	return storage.S3Config{
		EndpointURL:     endpoint,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
		Region:          "us-east-1",
	}
}

func seedBucket(t *testing.T, ctx context.Context, endpoint, bucket string, objects map[string]string) {
	t.Helper()

	client, err := storage.NewS3Client(s3TestConfig(endpoint))
	require.NoError(t, err)

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	for key, content := range objects {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(content),
		})
		require.NoError(t, err)
	}
}
