// Package source opens volume payloads (manifests, TEI, content metadata) from the
// local filesystem or S3.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrUnsupportedScheme is returned for URIs that are neither paths, file:// nor s3://.
var ErrUnsupportedScheme = errors.New("source: unsupported uri scheme")

// S3Config configures the S3 client. Empty keys fall back to the default AWS
// credential chain.
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // S3-compatible endpoint, e.g. MinIO
}

// ObjectGetter is the part of the S3 API the opener needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Opener opens payload URIs. The S3 client is built on first use.
type Opener struct {
	cfg S3Config

	once  sync.Once
	s3    ObjectGetter
	s3Err error
}

func New(cfg S3Config) *Opener {
	return &Opener{cfg: cfg}
}

// NewWithS3 returns an opener that uses client for s3:// URIs.
func NewWithS3(client ObjectGetter) *Opener {
	o := &Opener{s3: client}
	o.once.Do(func() {})
	return o
}

// Open returns a reader for uri. The caller closes it.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return openFile(uri)
	}
	switch scheme {
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", uri, err)
		}
		return openFile(u.Path)
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return nil, fmt.Errorf("s3 uri %q needs a bucket and a key", uri)
		}
		return o.openObject(ctx, bucket, key)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri)
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func (o *Opener) openObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	o.once.Do(func() { o.s3, o.s3Err = newS3Client(ctx, o.cfg) })
	if o.s3Err != nil {
		return nil, o.s3Err
	}
	resp, err := o.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
