package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/aminofox/hlspack/pkg/logger"
)

// S3Storage implements an S3-compatible storage backend for segment and
// playlist delivery.
type S3Storage struct {
	client *s3.Client
	config StorageConfig
	logger logger.Logger
}

// NewS3Storage creates a new S3 storage backend
func NewS3Storage(cfg StorageConfig, log logger.Logger) (*S3Storage, error) {
	if cfg.Type != StorageTypeS3 {
		return nil, fmt.Errorf("invalid storage type: %s", cfg.Type)
	}

	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, logger.FormatText)
	}

	// Load AWS configuration
	var awsConfig aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		// Use static credentials
		awsConfig, err = config.LoadDefaultConfig(context.TODO(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsConfig, err = config.LoadDefaultConfig(context.TODO(),
			config.WithRegion(cfg.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true // For S3-compatible services like MinIO
		},
	}

	// Set custom endpoint if provided (for S3-compatible storage)
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsConfig, s3Options...)

	return &S3Storage{
		client: client,
		config: cfg,
		logger: log,
	}, nil
}

// Upload uploads data to S3
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	// Read data into buffer (for retry capability)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	// Retry logic
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("Retrying S3 upload",
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "key", Value: key},
			)
			time.Sleep(s.config.RetryDelay)
		}

		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(s.normalizeKey(key)),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String(contentType),
		}

		_, err := s.client.PutObject(ctx, input)
		if err != nil {
			lastErr = err
			continue
		}

		s.logger.Debug("S3 upload completed",
			logger.Field{Key: "bucket", Value: s.config.Bucket},
			logger.Field{Key: "key", Value: key},
			logger.Field{Key: "size", Value: size},
		)

		return nil
	}

	return fmt.Errorf("S3 upload failed after %d attempts: %w", s.config.MaxRetries+1, lastErr)
}

// Download downloads data from S3
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, nil
}

// Delete removes an object from S3
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	_, err := s.client.DeleteObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// Exists checks if an object exists in S3
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	_, err := s.client.HeadObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// List lists objects in S3 with the given prefix
func (s *S3Storage) List(ctx context.Context, prefix string, maxKeys int) ([]StorageObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.normalizeKey(prefix)),
	}

	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(maxKeys))
	}

	objects := make([]StorageObject, 0)

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, StorageObject{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ContentType:  contentTypeFor(aws.ToString(obj.Key)),
			})

			if maxKeys > 0 && len(objects) >= maxKeys {
				return objects, nil
			}
		}
	}

	return objects, nil
}

// Close closes the S3 storage backend
func (s *S3Storage) Close() error {
	return nil
}

// normalizeKey joins the configured prefix and strips leading slashes
func (s *S3Storage) normalizeKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.config.Prefix != "" {
		key = path.Join(s.config.Prefix, key)
	}
	return key
}

// isNotFoundError checks if an error is a "not found" error
func (s *S3Storage) isNotFoundError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound"
	}
	return false
}
