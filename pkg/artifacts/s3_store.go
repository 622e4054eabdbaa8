package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

// S3Store implements Store using an S3-compatible object store.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string // optional key prefix, e.g. "rulesets/"
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// NewS3Store creates a new S3-backed artifact store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, errdefs.Storage("failed to load AWS config", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) PutArtifact(ctx context.Context, coords Coordinates, data []byte) (string, error) {
	key := s.prefix + coords.ArtifactKey()
	uri := "s3://" + s.bucket + "/" + key

	// Idempotent: versioned keys are immutable, so an existing object is
	// the same content.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return uri, nil
	}

	if err := s.put(ctx, key, data); err != nil {
		return "", err
	}
	return uri, nil
}

func (s *S3Store) GetArtifact(ctx context.Context, coords Coordinates) ([]byte, error) {
	return s.get(ctx, s.prefix+coords.ArtifactKey(), "artifact")
}

func (s *S3Store) WritePointer(ctx context.Context, coords Coordinates, data []byte) (string, error) {
	key := s.prefix + coords.PointerKey()
	if err := s.put(ctx, key, data); err != nil {
		return "", err
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *S3Store) GetPointer(ctx context.Context, coords Coordinates) ([]byte, error) {
	return s.get(ctx, s.prefix+coords.PointerKey(), "runtime pointer")
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errdefs.Storage("s3 put failed for "+key, err)
	}
	return nil
}

func (s *S3Store) get(ctx context.Context, key, what string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, errdefs.NotFound("%s not found at %s", what, key)
		}
		return nil, errdefs.Storage("s3 get failed for "+what+" at "+key, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errdefs.Storage("s3 read failed for "+what+" at "+key, err)
	}
	return data, nil
}
