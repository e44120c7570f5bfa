// Package s3 exports artifacts to an S3-compatible bucket (AWS S3 or MinIO).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aretw0/strata/internal/logging"
)

// PutObjectAPI is the subset of *s3.Client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds construction parameters. Credentials fall back to the
// default AWS chain when AccessKeyID is empty.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; e.g. a MinIO URL
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Sink implements ports.ExportSink by writing one object per artifact.
type Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithPrefix prepends prefix to every object key.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

// New builds an S3 client from cfg and returns a Sink over it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewFromClient(client, cfg.Bucket, append([]Option{WithPrefix(cfg.Prefix)}, opts...)...), nil
}

// NewFromClient creates a Sink over an existing client.
func NewFromClient(client PutObjectAPI, bucket string, opts ...Option) *Sink {
	s := &Sink{client: client, bucket: bucket, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the object key an artifact is stored under.
func (s *Sink) Key(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads data as a single object.
func (s *Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid export key %q", key)
	}
	objectKey := s.Key(key)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	s.logger.Debug("exported artifact", "bucket", s.bucket, "key", objectKey, "bytes", len(data))
	return nil
}
