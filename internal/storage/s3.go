package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/config"
)

const s3Scheme = "s3://"

// ErrInvalidRef is returned for references that do not name a bucket and key.
var ErrInvalidRef = errors.New("invalid object reference")

// S3Client fetches documents from and uploads exports to S3-compatible storage.
type S3Client struct {
	client        *s3.Client
	uploader      *manager.Uploader
	defaultBucket string
}

// NewS3Client creates a client from the storage configuration. Static keys
// override the default credential chain; a custom endpoint switches to
// path-style addressing for MinIO and similar servers.
func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*S3Client, error) {
	var opts []func(*awscfg.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:        cli,
		uploader:      manager.NewUploader(cli),
		defaultBucket: cfg.S3Bucket,
	}, nil
}

// Handles reports whether ref is an s3:// reference.
func (s *S3Client) Handles(ref string) bool {
	return strings.HasPrefix(ref, s3Scheme)
}

// ModTime returns the object's LastModified time.
func (s *S3Client) ModTime(ctx context.Context, ref string) (time.Time, error) {
	bucket, key, err := ParseRef(ref, s.defaultBucket)
	if err != nil {
		return time.Time{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("head %s: %w", ref, err)
	}
	if out.LastModified == nil {
		return time.Time{}, nil
	}
	return *out.LastModified, nil
}

// Fetch downloads the object named by ref into dst.
func (s *S3Client) Fetch(ctx context.Context, ref, dst string) error {
	bucket, key, err := ParseRef(ref, s.defaultBucket)
	if err != nil {
		return err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Fetch: GetObject failed")
		return fmt.Errorf("get %s: %w", ref, err)
	}
	defer result.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, result.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("download %s: %w", ref, err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("Fetch: object downloaded")
	return nil
}

// Upload stores localPath under ref using multipart upload for large files.
func (s *S3Client) Upload(ctx context.Context, localPath, ref string) error {
	bucket, key, err := ParseRef(ref, s.defaultBucket)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Upload: failed")
		return fmt.Errorf("upload %s: %w", ref, err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Msg("Upload: successful")
	return nil
}

// Ping checks that the default bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.defaultBucket == "" {
		return errors.New("bucket not configured")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.defaultBucket)})
	return err
}

// ParseRef splits s3://bucket/key. The form s3:///key (empty bucket) uses
// defaultBucket.
func ParseRef(ref, defaultBucket string) (bucket, key string, err error) {
	if !strings.HasPrefix(ref, s3Scheme) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	rest := strings.TrimPrefix(ref, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return bucket, key, nil
}

func contentType(key string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".djvu"), strings.HasSuffix(lower, ".djv"):
		return "image/vnd.djvu"
	}
	return "application/octet-stream"
}
