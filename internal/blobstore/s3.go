package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/logging"
)

// DefaultMaxRetries bounds the number of attempts a transient S3 failure
// is retried before the operation gives up.
const DefaultMaxRetries = 3

// S3Config configures the S3-compatible blob client (works against AWS S3
// or any S3-compatible endpoint such as MinIO by overriding Endpoint).
type S3Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Bucket     string
	UsePathStyle bool
	MaxRetries int
}

// S3Client is the aws-sdk-go-v2-backed Blob Store Client implementation.
type S3Client struct {
	client     *s3.Client
	bucket     string
	presign    *s3.PresignClient
	maxRetries int
}

// NewS3Client builds an S3Client and ensures the configured bucket exists.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "actions"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	sc := &S3Client{
		client:     client,
		bucket:     cfg.Bucket,
		presign:    s3.NewPresignClient(client),
		maxRetries: cfg.MaxRetries,
	}

	if err := sc.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return sc, nil
}

func (c *S3Client) ensureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.bucket})
	if err == nil {
		return nil
	}
	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &c.bucket})
	if err != nil {
		return fmt.Errorf("ensure bucket %s: %w", c.bucket, err)
	}
	logging.Op().Info("created blob bucket", "bucket", c.bucket)
	return nil
}

// retry runs op up to maxRetries times, returning the last error if every
// attempt fails. Grounded on the teacher's connection-retry idiom,
// generalized from Postgres reconnects to arbitrary S3 calls.
func (c *S3Client) retry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := op(); err != nil {
			lastErr = err
			logging.Op().Warn("blob operation failed, retrying", "attempt", attempt+1, "max", c.maxRetries, "err", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("blob operation failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *S3Client) Put(ctx context.Context, namespace, actionName string, code []byte, binary bool) (string, error) {
	codeHash := domain.HashCode(code)
	key := ObjectPath(namespace, actionName, codeHash)

	contentType := "text/plain"
	if binary {
		contentType = "application/octet-stream"
	}

	err := c.retry(ctx, func() error {
		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &c.bucket,
			Key:         &key,
			Body:        bytes.NewReader(code),
			ContentType: &contentType,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return codeHash, nil
}

func (c *S3Client) Get(ctx context.Context, namespace, actionName, codeHash string) ([]byte, error) {
	key := ObjectPath(namespace, actionName, codeHash)

	var body []byte
	err := c.retry(ctx, func() error {
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err := io.ReadAll(out.Body)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	return body, err
}

func (c *S3Client) Delete(ctx context.Context, namespace, actionName, codeHash string) error {
	key := ObjectPath(namespace, actionName, codeHash)
	return c.retry(ctx, func() error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &key})
		return err
	})
}

func (c *S3Client) PresignedGet(ctx context.Context, namespace, actionName, codeHash string, expires time.Duration) (string, error) {
	key := ObjectPath(namespace, actionName, codeHash)

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
