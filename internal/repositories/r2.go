package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/config"
)

const DefaultPresignExpiry = time.Hour

// R2Store is the blob bucket holding model files. It talks to Cloudflare R2
// through the S3 API, so any S3-compatible endpoint works.
type R2Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	publicBase string
	logger     *zap.Logger
}

// NewR2Store builds the client from static credentials. cfg.Endpoint wins over
// the endpoint derived from the account id.
func NewR2Store(cfg config.R2Config, logger *zap.Logger) (*R2Store, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, errors.New("r2: account id or endpoint required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	if cfg.BucketName == "" {
		return nil, errors.New("r2: bucket name required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      cfg.Region,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		// R2 rejects the default flexible checksums on some operations.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	logger.Info("successfully initialized R2 client", zap.String("bucket", cfg.BucketName))

	return &R2Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.BucketName,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:     logger,
	}, nil
}

func (s *R2Store) Bucket() string { return s.bucket }

// Upload writes body at key, replacing any existing object.
func (s *R2Store) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PublicURL is the unauthenticated URL of key, or "" when the bucket has no
// public base URL. The object may not exist yet.
func (s *R2Store) PublicURL(key string) string {
	if s.publicBase == "" || key == "" {
		return ""
	}
	return s.publicBase + "/" + strings.TrimLeft(key, "/")
}

// PresignGetURL creates a presigned URL for downloading key.
func (s *R2Store) PresignGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// ResolveURL prefers the public URL and falls back to a presigned GET.
func (s *R2Store) ResolveURL(ctx context.Context, key string) (string, error) {
	if u := s.PublicURL(key); u != "" {
		return u, nil
	}
	return s.PresignGetURL(ctx, key, DefaultPresignExpiry)
}

// ObjectExists checks if key exists in the bucket.
// Returns true if the object exists, false if not, and an error if something went wrong.
func (s *R2Store) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
