package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// publicReadPolicy grants anonymous GetObject on a bucket. Applied to the
// tiles bucket only, so map clients can fetch tiles without credentials.
const publicReadPolicy = `{
	"Version": "2012-10-17",
	"Statement": [
		{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}
	]
}`

type S3Config struct {
	// Endpoint points at an S3-compatible store (MinIO in the default
	// deployment). Empty means AWS proper.
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Buckets    Buckets
	MaxRetries int
	// RetryBase is the backoff unit; attempt n sleeps RetryBase << n.
	RetryBase time.Duration
}

// S3Store implements ObjectStore over aws-sdk-go-v2 against S3 or any
// S3-compatible endpoint.
type S3Store struct {
	client     *s3.Client
	buckets    Buckets
	maxRetries int
	retryBase  time.Duration
	logger     *log.Logger
}

func NewS3Store(ctx context.Context, cfg S3Config, logger *log.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and most S3-compatible stores require path-style
			// addressing.
			o.UsePathStyle = true
		}
	})

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}

	return &S3Store{
		client:     client,
		buckets:    cfg.Buckets,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		logger:     logger,
	}, nil
}

func (s *S3Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{BucketRasters, BucketTiles} {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Store) ensureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !isBucketAlreadyOwned(err) {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	if s.logger != nil {
		s.logger.Printf("created bucket %s", bucket)
	}

	if bucket == BucketTiles {
		policy := fmt.Sprintf(publicReadPolicy, bucket)
		_, err = s.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
			Bucket: aws.String(bucket),
			Policy: aws.String(policy),
		})
		if err != nil {
			return fmt.Errorf("set public policy on %s: %w", bucket, err)
		}
	}
	return nil
}

func (s *S3Store) Upload(ctx context.Context, localPath, key, bucket, contentType string) (string, error) {
	bucket = s.buckets.Normalize(bucket)

	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("upload source %s: %w", localPath, err)
	}

	err := s.withRetries(ctx, "upload "+key, func() error {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return err
		}

		file, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		input := &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   file,
		}
		if contentType != "" {
			input.ContentType = aws.String(contentType)
		}
		_, err = s.client.PutObject(ctx, input)
		return err
	})
	if err != nil {
		return "", err
	}
	return Ref(bucket, key), nil
}

func (s *S3Store) Download(ctx context.Context, key, localPath, bucket string) (string, error) {
	bucket = s.buckets.Normalize(bucket)

	// Existence check first so a missing object is distinguishable from a
	// transient backend failure and is not retried.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return "", fmt.Errorf("head object %s/%s: %w", bucket, key, err)
	}

	err = s.withRetries(ctx, "download "+key, func() error {
		output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer output.Body.Close()

		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return err
		}
		file, err := os.Create(localPath)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(file, output.Body)
		return err
	})
	if err != nil {
		return "", err
	}
	return localPath, nil
}

func (s *S3Store) List(ctx context.Context, prefix, bucket string) ([]ObjectInfo, error) {
	bucket = s.buckets.Normalize(bucket)

	var objects []ObjectInfo
	err := s.withRetries(ctx, "list "+prefix, func() error {
		objects = objects[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, object := range page.Contents {
				objects = append(objects, ObjectInfo{
					Key:  aws.ToString(object.Key),
					Size: aws.ToInt64(object.Size),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (s *S3Store) Delete(ctx context.Context, key, bucket string) error {
	bucket = s.buckets.Normalize(bucket)
	return s.withRetries(ctx, "delete "+key, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

// withRetries runs op up to maxRetries times with exponential backoff,
// honoring context cancellation between attempts.
func (s *S3Store) withRetries(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if s.logger != nil {
			s.logger.Printf("storage %s attempt %d/%d failed: %v", op, attempt+1, s.maxRetries, lastErr)
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, op, s.maxRetries, lastErr)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func isBucketAlreadyOwned(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var exists *types.BucketAlreadyExists
	return errors.As(err, &exists)
}
