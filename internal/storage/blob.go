package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"
)

// Blob stores an object and returns its public URL.
type Blob interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type BlobConfig struct {
	Backend        string
	Dir            string
	PublicURL      string
	GCSBucket      string
	GCSCredentials string
	S3Bucket       string
	S3Region       string
}

func NewBlob(ctx context.Context, cfg BlobConfig) (Blob, error) {
	switch cfg.Backend {
	case "", "local":
		return &LocalBlob{Dir: cfg.Dir, PublicURL: cfg.PublicURL}, nil
	case "gcs":
		var opts []option.ClientOption
		if cfg.GCSCredentials != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GCSCredentials)))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return &GCSBlob{bucket: client.Bucket(cfg.GCSBucket), name: cfg.GCSBucket}, nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return &S3Blob{client: s3.NewFromConfig(awsCfg), bucket: cfg.S3Bucket, region: cfg.S3Region}, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// LocalBlob writes under Dir; the server exposes Dir at PublicURL.
type LocalBlob struct {
	Dir       string
	PublicURL string
}

func (l *LocalBlob) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	path := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return strings.TrimRight(l.PublicURL, "/") + "/" + key, nil
}

type GCSBlob struct {
	bucket *gcs.BucketHandle
	name   string
}

func (g *GCSBlob) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return gcsURL(g.name, key), nil
}

type S3Blob struct {
	client *s3.Client
	bucket string
	region string
}

func (b *S3Blob) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return s3URL(b.bucket, b.region, key), nil
}

func gcsURL(bucket, key string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + key
}

func s3URL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}
