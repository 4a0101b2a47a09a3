package backup

import (
	"context"
	"io"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
	stringpool "github.com/ajitpratap0/snowlift/pkg/strings"
)

const (
	defaultUploadPartSize = 16 * 1024 * 1024
	defaultConcurrency    = 4
)

// Uploader copies a finished dump to off-site storage
type Uploader interface {
	// Name identifies the target in logs
	Name() string
	// Upload stores the file at localPath under name and returns its URI
	Upload(ctx context.Context, localPath, name string) (string, error)
	Close() error
}

// s3API is the subset of the S3 transfer manager used here
type s3API interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader streams dumps to an S3 bucket with multipart uploads
type S3Uploader struct {
	api    s3API
	bucket string
	prefix string
}

// NewS3Uploader builds an uploader from the default AWS credential chain
func NewS3Uploader(ctx context.Context, bucket, prefix, region string) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeBackup, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = defaultUploadPartSize
		u.Concurrency = defaultConcurrency
	})

	return &S3Uploader{api: uploader, bucket: bucket, prefix: prefix}, nil
}

// Name implements Uploader
func (u *S3Uploader) Name() string { return "s3" }

// Upload implements Uploader
func (u *S3Uploader) Upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open dump for upload")
	}
	defer f.Close()

	key := path.Join(u.prefix, name)
	_, err = u.api.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(name)),
		Metadata: map[string]string{
			"source":  "pg_dump",
			"created": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", err
	}
	return stringpool.Concat("s3://", u.bucket, "/", key), nil
}

// Close implements Uploader
func (u *S3Uploader) Close() error { return nil }

// GCSUploader writes dumps to a Cloud Storage bucket
type GCSUploader struct {
	client *storage.Client
	bucket string
	prefix string

	newWriter func(ctx context.Context, bucket, object string) io.WriteCloser
}

// NewGCSUploader builds an uploader using credentialsFile, or application
// default credentials when it is empty.
func NewGCSUploader(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeBackup, "failed to create GCS client")
	}

	u := &GCSUploader{client: client, bucket: bucket, prefix: prefix}
	u.newWriter = func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType(object)
		w.Metadata = map[string]string{"source": "pg_dump"}
		return w
	}
	return u, nil
}

// Name implements Uploader
func (u *GCSUploader) Name() string { return "gcs" }

// Upload implements Uploader
func (u *GCSUploader) Upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open dump for upload")
	}
	defer f.Close()

	object := path.Join(u.prefix, name)
	w := u.newWriter(ctx, u.bucket, object)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", err
	}
	// the object is committed on Close
	if err := w.Close(); err != nil {
		return "", err
	}
	return stringpool.Concat("gs://", u.bucket, "/", object), nil
}

// Close implements Uploader
func (u *GCSUploader) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}

// NewUploaders builds the uploaders enabled in cfg
func NewUploaders(ctx context.Context, cfg config.BackupConfig) ([]Uploader, error) {
	var uploaders []Uploader

	if cfg.S3Bucket != "" {
		u, err := NewS3Uploader(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		uploaders = append(uploaders, u)
	}

	if cfg.GCSBucket != "" {
		u, err := NewGCSUploader(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
		if err != nil {
			CloseAll(uploaders)
			return nil, err
		}
		uploaders = append(uploaders, u)
	}

	return uploaders, nil
}

// CloseAll closes every uploader, returning the first error
func CloseAll(uploaders []Uploader) error {
	var first error
	for _, u := range uploaders {
		if err := u.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".sql":
		return "application/sql"
	case ".gz":
		return "application/gzip"
	case ".zst":
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}
