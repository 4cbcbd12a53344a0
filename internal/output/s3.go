package output

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ContentType is the media type of uploaded documents.
const ContentType = "application/vnd.cyclonedx+json"

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// S3Publisher uploads rendered documents to an S3-compatible bucket.
type S3Publisher struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string

	mu          sync.Mutex
	bucketReady bool
}

func NewS3Publisher(cfg S3Config) (*S3Publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Publisher{
		client:     client,
		bucketName: bucket,
		region:     region,
		prefix:     cfg.Prefix,
	}, nil
}

// ensureBucket creates the bucket if needed. Only success is remembered;
// a failed check is tried again by the next Publish.
func (p *S3Publisher) ensureBucket(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bucketReady {
		return nil
	}

	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return err
		}
	}
	p.bucketReady = true
	return nil
}

// Publish uploads data as fileName under the configured prefix and returns
// the s3:// location.
func (p *S3Publisher) Publish(ctx context.Context, fileName string, data []byte) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("publisher is nil")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", fmt.Errorf("file name is required")
	}
	if err := p.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	key := objectKey(p.prefix, fileName)
	_, err := p.client.PutObject(ctx, p.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return "s3://" + p.bucketName + "/" + key, nil
}

func objectKey(prefix, name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
