// Package smoke checks that a running backend actually serves AWS APIs, by
// doing an S3 bucket and object round-trip through the real AWS SDK.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/blackwell-systems/localstack-control-plane/internal/httpapi"
)

const (
	// DefaultRegion is the region LocalStack answers in unless configured otherwise.
	DefaultRegion = "us-east-1"
	// AccessKey is the dummy key pair LocalStack accepts.
	AccessKey = "test"

	objectKey = "smoke-object"
	content   = "Hello, LocalStack!"
)

// Options configures a probe
type Options struct {
	Region string
	// Bucket defaults to a random name so parallel pipelines never collide.
	Bucket string
	// Keep leaves the bucket and object in place.
	Keep   bool
	Logger *slog.Logger
}

// Result describes a successful round-trip
type Result struct {
	Endpoint string
	Bucket   string
	Key      string
	Content  string
	Elapsed  time.Duration
}

// NewClient returns an S3 client for endpoint using path-style addressing.
func NewClient(ctx context.Context, endpoint, region string) (*s3.Client, error) {
	if region == "" {
		region = DefaultRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(AccessKey, AccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(httpapi.NormalizeEndpoint(endpoint))
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// Run creates a bucket, writes an object, reads it back and compares the
// content. Unless Keep is set, both are removed afterwards.
func Run(ctx context.Context, endpoint string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = "lsci-smoke-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}

	client, err := NewClient(ctx, endpoint, opts.Region)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	logger.Debug("smoke bucket created", "bucket", bucket)

	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
		Body:   strings.NewReader(content),
	}); err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	data, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read object content: %w", err)
	}
	if string(data) != content {
		return nil, fmt.Errorf("object content mismatch: got %q, want %q", data, content)
	}

	result := &Result{
		Endpoint: httpapi.NormalizeEndpoint(endpoint),
		Bucket:   bucket,
		Key:      objectKey,
		Content:  string(data),
		Elapsed:  time.Since(start),
	}

	if !opts.Keep {
		if err := cleanup(ctx, client, bucket); err != nil {
			return result, err
		}
	}

	logger.Info("smoke test passed", "endpoint", result.Endpoint, "bucket", bucket, "elapsed", result.Elapsed)
	return result, nil
}

func cleanup(ctx context.Context, client *s3.Client, bucket string) error {
	_, objErr := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	_, bucketErr := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	if err := errors.Join(objErr, bucketErr); err != nil {
		return fmt.Errorf("failed to clean up bucket %s: %w", bucket, err)
	}
	return nil
}
