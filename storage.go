package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore keeps the raw uploads. Put is a single attempt.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	R2      R2Config    `yaml:"r2"`
	Minio   MinioConfig `yaml:"minio"`
}

func NewObjectStore(ctx context.Context, cfg StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "r2":
		return newR2Store(ctx, cfg.R2)
	case "minio":
		return newMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

type r2Store struct {
	client *s3.Client
	bucket string
}

func newR2Store(ctx context.Context, r2Config R2Config) (*r2Store, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2Config.AccessKey, r2Config.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating aws config: %w", err)
	}

	endpoint := r2Config.Endpoint
	customEndpoint := endpoint != ""
	if !customEndpoint {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2Config.AccountID)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = customEndpoint
	})
	return &r2Store{client: client, bucket: r2Config.Bucket}, nil
}

func (s *r2Store) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// newMinioStore connects and makes sure the bucket exists.
func newMinioStore(ctx context.Context, cfg MinioConfig) (*minioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &minioStore{client: cli, bucket: cfg.Bucket}, nil
}

func (s *minioStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}
