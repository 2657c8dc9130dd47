// internal/media/s3.go
// Package media provides S3-compatible storage for clip, reference, and
// result payloads. It handles presigned URL generation so clients transfer
// video bytes directly against object storage instead of streaming through
// the synthesis service.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadURLTTL is how long presigned upload URLs stay valid.
const UploadURLTTL = 15 * time.Minute

// S3Client wraps the AWS S3 client for media operations.
// It provides methods for generating presigned upload and download URLs.
type S3Client struct {
	client *s3.Client // AWS S3 client
	bucket string     // S3 bucket name for media storage
}

// NewS3Client creates a new S3 client for media operations.
// It supports both AWS S3 and S3-compatible services like MinIO.
// Parameters:
//   - endpoint: S3 service endpoint URL
//   - region: AWS region (or equivalent for S3-compatible services)
//   - bucket: S3 bucket name for media storage
//   - accessKey: Access key for authentication
//   - secretKey: Secret key for authentication
// Returns:
//   - *S3Client: Initialized S3 client
//   - error: Any error that occurred during initialization
func NewS3Client(endpoint, region, bucket, accessKey, secretKey string) (*S3Client, error) {
	// Load AWS configuration with custom endpoint and credentials
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		// Configure static credentials
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with path-style addressing for compatibility
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO and other S3-compatible services
	})

	return &S3Client{
		client: client,
		bucket: bucket,
	}, nil
}

// ObjectKey builds the bucket key for one asset payload. Clips are grouped
// under their owning session; references and results live in flat prefixes.
func ObjectKey(kind, sessionID, filename string) string {
	if sessionID != "" {
		return fmt.Sprintf("%ss/%s/%s", kind, sessionID, filename)
	}
	return fmt.Sprintf("%ss/%s", kind, filename)
}

// GenerateUploadURL generates a presigned URL for uploading one media file.
// This allows clients to upload directly to S3 without streaming through the
// synthesis service.
// Parameters:
//   - ctx: Context for the operation
//   - key: S3 object key where the file will be stored
//   - expires: Duration until the presigned URL expires
// Returns:
//   - string: Presigned URL for uploading
//   - error: Any error that occurred during URL generation
func (s *S3Client) GenerateUploadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)

	// Generate a presigned PUT URL for direct client upload
	presignResult, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignResult.URL, nil
}

// GenerateDownloadURL generates a presigned GET URL for retrieving one media
// file, used for result playback links in the catalog.
func (s *S3Client) GenerateDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)

	presignResult, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignResult.URL, nil
}

// ObjectExists reports whether an object is present in the bucket, along
// with its size. Used to confirm client uploads before generation starts.
func (s *S3Client) ObjectExists(ctx context.Context, key string) (bool, int64, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to get object metadata: %w", err)
	}

	var size int64
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return true, size, nil
}
