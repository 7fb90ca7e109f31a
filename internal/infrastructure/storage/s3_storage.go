// Package storage archives raw webhook payloads to S3 compatible storage.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/config"
)

// objectAPI is the part of the S3 client the archive uses
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3PayloadArchive writes rejected webhook bodies to a bucket under
// {prefix}/{connector}/{reason}/{yyyy}/{mm}/{dd}/{tenant}-{unixnano}-{hash}.json
type S3PayloadArchive struct {
	client objectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3PayloadArchive builds an archive from storage configuration. Any S3
// compatible endpoint (AWS, MinIO, RustFS) works.
func NewS3PayloadArchive(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3PayloadArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newS3PayloadArchive(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3PayloadArchive(client objectAPI, bucket, prefix string, logger *zap.Logger) *S3PayloadArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3PayloadArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("payload_archive"),
	}
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// EnsureBucket creates the bucket when it does not exist
func (a *S3PayloadArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("check bucket: %w", err)
	}

	a.logger.Info("creating payload archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Archive stores the payload and returns its object key
func (a *S3PayloadArchive) Archive(ctx context.Context, p integration.ArchivedPayload) (string, error) {
	key := a.objectKey(p)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(p.Body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"connector":  p.Connector.String(),
			"tenant":     p.TenantSlug,
			"event-type": p.EventType,
			"reason":     string(p.Reason),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive payload: %w", err)
	}
	return key, nil
}

func (a *S3PayloadArchive) objectKey(p integration.ArchivedPayload) string {
	sum := sha256.Sum256(p.Body)
	tenant := p.TenantSlug
	if tenant == "" {
		tenant = "unattributed"
	}
	at := p.ReceivedAt.UTC()
	name := fmt.Sprintf("%s-%d-%s.json", tenant, at.UnixNano(), hex.EncodeToString(sum[:8]))
	return path.Join(a.prefix, p.Connector.String(), string(p.Reason), at.Format("2006/01/02"), name)
}

var _ integration.PayloadArchive = (*S3PayloadArchive)(nil)
