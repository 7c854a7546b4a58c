package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/skypro1111/voxgate/internal/config"
)

// S3Client is the subset of the S3 API used by the archive.
// *s3.Client satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Observer is notified of every upload attempt
type Observer interface {
	RecordArchiveUpload(success bool)
}

// Options configures an Archive
type Options struct {
	Bucket           string
	Prefix           string
	UploadsPerSecond float64 // 0 disables throttling
	Burst            int
	Observer         Observer
}

// Archive writes raw uploads to S3-compatible storage under
// {prefix}/{kind}/{yyyy}/{mm}/{dd}/{uuid}.{ext}
type Archive struct {
	client   S3Client
	bucket   string
	prefix   string
	limiter  *rate.Limiter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an archive over an existing S3 client
func New(client S3Client, opts Options, logger *slog.Logger) (*Archive, error) {
	if client == nil {
		return nil, errors.New("archive: s3 client is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.UploadsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.UploadsPerSecond), burst)
	}

	return &Archive{
		client:   client,
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		limiter:  limiter,
		observer: opts.Observer,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Open builds an S3 client from configuration. It returns nil when the
// archive is disabled.
func Open(cfg config.ArchiveConfig, observer Observer, logger *slog.Logger) (*Archive, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	s3opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "voxgate-config",
		}
		s3opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}

	return New(s3.New(s3opts), Options{
		Bucket:           cfg.Bucket,
		Prefix:           cfg.Prefix,
		UploadsPerSecond: cfg.UploadsPerSecond,
		Burst:            cfg.Burst,
		Observer:         observer,
	}, logger)
}

// Store uploads data and returns the object key
func (a *Archive) Store(ctx context.Context, kind string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("archive: empty payload")
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("archive: throttled: %w", err)
	}

	ext, contentType := detectFormat(data)
	key := a.key(kind, ext)

	start := time.Now()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})

	if a.observer != nil {
		a.observer.RecordArchiveUpload(err == nil)
	}

	if err != nil {
		a.logger.Warn("Archive upload failed",
			slog.String("key", key),
			slog.String("error", describe(err)),
		)
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}

	a.logger.Debug("Archived upload",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return key, nil
}

// Delete removes an archived object. Missing keys are not an error.
func (a *Archive) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("archive: delete %s: %w", key, err)
	}
	return nil
}

func (a *Archive) key(kind, ext string) string {
	day := a.now().UTC().Format("2006/01/02")
	return path.Join(a.prefix, kind, day, uuid.NewString()+"."+ext)
}

func detectFormat(data []byte) (ext, contentType string) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav", "audio/wav"
	case len(data) >= 3 && string(data[0:3]) == "ID3",
		len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3", "audio/mpeg"
	default:
		return "bin", "application/octet-stream"
	}
}

// describe adds the S3 error code when there is one
func describe(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	}
	return err.Error()
}
