package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/platform"
)

// Content types per audio format
const (
	ContentTypeMP3     = "audio/mpeg"
	ContentTypeWAV     = "audio/wav"
	ContentTypeDefault = "application/octet-stream"
)

// DefaultPrefix is the object key prefix used when none is configured
const DefaultPrefix = "audio"

// Config holds the connection settings of the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	Prefix    string
}

// objectStore is the subset of *minio.Client used by Uploader
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies finished audio files into a bucket.
type Uploader struct {
	client objectStore
	bucket string
	region string
	prefix string
	logger *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

// NewUploader connects to the object store described by cfg
func NewUploader(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return newUploader(client, cfg, logger), nil
}

func newUploader(client objectStore, cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: prefix,
		logger: logger,
	}
}

// EnsureBucket creates the bucket if it does not exist yet. The check runs once.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	u.bucketOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.bucketErr = fmt.Errorf("check bucket %s: %w", u.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			u.bucketErr = fmt.Errorf("create bucket %s: %w", u.bucket, err)
			return
		}
		u.logger.Info("created bucket", "bucket", u.bucket)
	})
	return u.bucketErr
}

// Upload stores dir/filename under <prefix>/<jobID>/<filename> and returns the
// object key. The local file is located with platform.FindFileWithFallback
// because yt-dlp may have sanitized the title.
func (u *Uploader) Upload(ctx context.Context, jobID, dir, filename string) (string, error) {
	if err := u.EnsureBucket(ctx); err != nil {
		return "", err
	}

	localPath, err := platform.FindFileWithFallback(dir, filename)
	if err != nil {
		return "", err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	key := ObjectKey(u.prefix, jobID, filepath.Base(localPath))
	_, err = u.client.PutObject(ctx, u.bucket, key, file, stat.Size(), minio.PutObjectOptions{
		ContentType: ContentTypeFor(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	u.logger.Debug("uploaded audio", "bucket", u.bucket, "key", key, "size", stat.Size())
	return key, nil
}

// ObjectKey builds <prefix>/<jobID>/<filename>
func ObjectKey(prefix, jobID, filename string) string {
	return path.Join(prefix, jobID, filename)
}

// ContentTypeFor returns the audio content type for a file name
func ContentTypeFor(name string) string {
	switch model.Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")) {
	case model.FormatMP3:
		return ContentTypeMP3
	case model.FormatWAV:
		return ContentTypeWAV
	default:
		return ContentTypeDefault
	}
}
