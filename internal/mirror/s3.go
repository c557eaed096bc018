package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"webdl/internal/config"
)

const versionKey = "webdl-version"

// S3API is the part of the S3 client the mirror uses.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Mirror stores blobs at <prefix>/media/<name> and metadata at
// <prefix>/metadata/<host id>/<name> in one bucket. The metadata version is kept in
// the object's user metadata.
type S3Mirror struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader *manager.Uploader
}

var _ Mirror = (*S3Mirror)(nil)

// NewS3Mirror wraps an existing client.
func NewS3Mirror(name, bucket, prefix string, client S3API) *S3Mirror {
	return &S3Mirror{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// NewS3MirrorFromConfig loads AWS configuration for the mirror's region, endpoint and
// optional static credentials.
func NewS3MirrorFromConfig(ctx context.Context, cfg config.MirrorConfig) (*S3Mirror, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 mirror requires s3_bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Mirror(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

func (m *S3Mirror) Name() string { return m.name }

func (m *S3Mirror) blobKey(name string) string { return path.Join(m.prefix, "media", name) }

func (m *S3Mirror) metaKey(hostID, name string) string {
	return path.Join(m.prefix, "metadata", hostID, name)
}

func (m *S3Mirror) put(ctx context.Context, key string, r io.Reader, size int64, meta map[string]string) error {
	_, err := m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		Metadata:      meta,
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}

func (m *S3Mirror) get(ctx context.Context, key string, w io.Writer) error {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(m.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("downloading s3://%s/%s: %w", m.bucket, key, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}

func (m *S3Mirror) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(m.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", m.bucket, key, err)
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nk)
}

func (m *S3Mirror) PutBlob(ctx context.Context, name string, r io.Reader, size int64) error {
	return m.put(ctx, m.blobKey(name), r, size, nil)
}

func (m *S3Mirror) GetBlob(ctx context.Context, name string, w io.Writer) error {
	return m.get(ctx, m.blobKey(name), w)
}

func (m *S3Mirror) HasBlob(ctx context.Context, name string) (bool, error) {
	out, err := m.head(ctx, m.blobKey(name))
	return out != nil, err
}

func (m *S3Mirror) PutMetadata(ctx context.Context, hostID, name string, r io.Reader, size int64, version int64) error {
	return m.put(ctx, m.metaKey(hostID, name), r, size, map[string]string{versionKey: strconv.FormatInt(version, 10)})
}

func (m *S3Mirror) GetMetadata(ctx context.Context, hostID, name string, w io.Writer) error {
	return m.get(ctx, m.metaKey(hostID, name), w)
}

func (m *S3Mirror) GetMetadataVersion(ctx context.Context, hostID, name string) (int64, error) {
	out, err := m.head(ctx, m.metaKey(hostID, name))
	if err != nil || out == nil {
		return 0, err
	}
	v, ok := out.Metadata[versionKey]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version of %s: %w", m.metaKey(hostID, name), err)
	}
	return n, nil
}

func (m *S3Mirror) ValidateSetup(ctx context.Context) error {
	if _, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(m.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", m.bucket, err)
	}
	return nil
}
