package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
	"github.com/fruitsalade/cloudbridge/internal/logging"
	"github.com/fruitsalade/cloudbridge/internal/metrics"
)

// S3Config configures an S3 or MinIO source.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
}

// ObjectGetter is the subset of the S3 client used by S3Source.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves placeholders with ranged GetObject requests.
type S3Source struct {
	client ObjectGetter
	bucket string
	prefix string
}

// NewS3Source connects to the configured endpoint with static credentials and
// path-style addressing.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 source: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = true
	})

	src := NewS3SourceFromClient(client, cfg.Bucket, cfg.Prefix)

	start := time.Now()
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	metrics.RecordS3Operation("head_bucket", time.Since(start), err == nil)
	if err != nil {
		logging.Warn("Bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}
	return src, nil
}

// NewS3SourceFromClient wraps an existing client.
func NewS3SourceFromClient(client ObjectGetter, bucket, prefix string) *S3Source {
	return &S3Source{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Key maps a sync-root relative path to an object key.
func (s *S3Source) Key(p string) string {
	p = strings.TrimLeft(strings.ReplaceAll(p, `\`, "/"), "/")
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// Pull issues one ranged GetObject for the requested chunk.
func (s *S3Source) Pull(ctx context.Context, req cfbridge.ChunkRequest) cfbridge.ChunkResponse {
	if req.Offset < 0 || req.MaxLength <= 0 {
		return cfbridge.ChunkResponse{Err: fmt.Errorf("get %s [%d,+%d): %w", req.Path, req.Offset, req.MaxLength, cfbridge.ErrInvalidParam)}
	}
	key := s.Key(req.Path)
	start := time.Now()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", req.Offset, req.Offset+req.MaxLength-1)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			// Offset at or past the end of the object.
			metrics.RecordS3Operation("get_object", time.Since(start), true)
			return cfbridge.ChunkResponse{EOF: true}
		}
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		logging.WithContext(ctx).Debug("GetObject failed", zap.String("key", key), zap.Int64("offset", req.Offset), zap.Error(err))
		return cfbridge.ChunkResponse{Err: fmt.Errorf("get object %s: %w", key, err)}
	}
	defer out.Body.Close()

	buf := make([]byte, req.MaxLength)
	n, err := io.ReadFull(out.Body, buf)
	metrics.RecordS3Operation("get_object", time.Since(start), err == nil || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF))
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return cfbridge.ChunkResponse{Data: buf[:n], EOF: true}
	case err != nil:
		return cfbridge.ChunkResponse{Err: fmt.Errorf("read object %s: %w", key, err)}
	}
	return cfbridge.ChunkResponse{Data: buf[:n], EOF: isLastRange(out.ContentRange)}
}

// isLastRange reports whether a Content-Range header ("bytes 0-99/100")
// ends at the last byte of the object.
func isLastRange(contentRange *string) bool {
	if contentRange == nil {
		return false
	}
	var first, last, size int64
	if _, err := fmt.Sscanf(*contentRange, "bytes %d-%d/%d", &first, &last, &size); err != nil {
		return false
	}
	return last+1 == size
}
