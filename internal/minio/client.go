// Package minio delivers generated videos to an S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Config holds the object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
}

// Enabled reports whether delivery to object storage was configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Client handles MinIO operations.
type Client struct {
	minioClient *minio.Client
	endpoint    *url.URL
	bucket      string
	prefix      string
}

// NewClient creates a new MinIO client.
func NewClient(cfg Config) (*Client, error) {
	logrus.WithFields(logrus.Fields{
		"endpoint":       cfg.Endpoint,
		"bucket":         cfg.Bucket,
		"access_key_set": cfg.AccessKey != "",
		"secret_key_set": cfg.SecretKey != "",
	}).Debug("MinIO configuration check")

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("minio access key is required (VEO_MINIO_ACCESS_KEY)")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio secret key is required (VEO_MINIO_SECRET_KEY)")
	}

	// Parse endpoint URL
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid minio endpoint '%s': %w (expected format: https://hostname:port)", cfg.Endpoint, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid minio endpoint scheme '%s': must be http or https", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("invalid minio endpoint '%s': missing hostname", cfg.Endpoint)
	}

	minioClient, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client for %s: %w", u.Host, err)
	}

	return &Client{
		minioClient: minioClient,
		endpoint:    u,
		bucket:      cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	logrus.WithField("bucket", c.bucket).Info("Created video bucket")
	return nil
}

// ObjectKey returns the key a video file is stored under.
func (c *Client) ObjectKey(jobID, filename string) string {
	return path.Join(c.prefix, jobID, filename)
}

// ObjectURL returns the URL of key on the configured endpoint.
func (c *Client) ObjectURL(key string) string {
	u := *c.endpoint
	u.Path = "/" + path.Join(c.bucket, key)
	return u.String()
}

// PublishVideo uploads data as jobID/filename and returns the object URL.
func (c *Client) PublishVideo(ctx context.Context, jobID, filename, contentType string, data []byte) (string, error) {
	if jobID == "" || filename == "" {
		return "", fmt.Errorf("job id and filename are required")
	}
	if contentType == "" {
		contentType = "video/mp4"
	}

	key := c.ObjectKey(jobID, filename)
	info, err := c.minioClient.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
		UserMetadata:       map[string]string{"job-id": jobID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": c.bucket,
		"key":    key,
		"size":   info.Size,
	}).Info("Uploaded generated video")

	return c.ObjectURL(key), nil
}
