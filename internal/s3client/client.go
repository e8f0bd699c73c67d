// Package s3client stores uploaded images (post covers and attachments) in
// S3-compatible object storage. Tests and --test mode use gofakes3.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by GetObject for a key with no object.
var ErrObjectNotFound = errors.New("s3client: object not found")

// Config selects the bucket and how to reach it.
type Config struct {
	Endpoint        string // empty for AWS itself
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string // base URL objects are served from
	UsePathStyle    bool   // gofakes3 and MinIO
}

// Client reads and writes objects in one bucket.
type Client struct {
	api       *s3.Client
	bucket    string
	publicURL string
}

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// New builds a Client from cfg. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Client, error) {
	api, err := newAPI(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewFromS3Client(api, cfg.BucketName, cfg.PublicURL), nil
}

func newAPI(ctx context.Context, cfg Config) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}
	sdk, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load aws config: %w", err)
	}
	return s3.NewFromConfig(sdk, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewFromS3Client wraps an existing SDK client.
func NewFromS3Client(api *s3.Client, bucket, publicURL string) *Client {
	return &Client{api: api, bucket: bucket, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// WithPublicURL returns a copy of c whose public URLs start at publicURL.
func (c *Client) WithPublicURL(publicURL string) *Client {
	cp := *c
	cp.publicURL = strings.TrimSuffix(publicURL, "/")
	return &cp
}

// BucketName returns the bucket c writes to.
func (c *Client) BucketName() string { return c.bucket }

// ImageKey returns a fresh key under images/<userID>/ with the lowercased
// extension ext (".png").
func ImageKey(userID, ext string) string {
	return path.Join("images", userID, uuid.NewString()+strings.ToLower(ext))
}

// GetPublicURL returns the URL browsers load key from.
func (c *Client) GetPublicURL(key string) string {
	return c.publicURL + "/" + strings.TrimPrefix(key, "/")
}

// EnsureBucket creates the bucket unless it already exists.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.bucket}); err == nil {
		return nil
	}
	if _, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &c.bucket}); err != nil {
		return fmt.Errorf("s3client: create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// PutObject writes content under key.
func (c *Client) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &key,
		Body:        bytes.NewReader(content),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3client: put %s: %w", key, err)
	}
	return nil
}

// GetObject reads the object at key, or returns ErrObjectNotFound.
func (c *Client) GetObject(ctx context.Context, key string) (*Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if isNotFound(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3client: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3client: read %s: %w", key, err)
	}
	return &Object{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

// DeleteObject removes key. A missing key is not an error.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &key}); err != nil {
		return fmt.Errorf("s3client: delete %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every object whose key starts with prefix and reports
// how many were removed.
func (c *Client) DeleteAll(ctx context.Context, prefix string) (int, error) {
	pages := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: &prefix,
	})
	n := 0
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return n, fmt.Errorf("s3client: list %s*: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if err := c.DeleteObject(ctx, aws.ToString(obj.Key)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
