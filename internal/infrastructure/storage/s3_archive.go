// Package storage archives outbox dead letters to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	infraconfig "github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrArchiveDisabled is returned when no bucket is configured
var ErrArchiveDisabled = errors.New("dead-letter archive bucket is not configured")

// S3DeadLetterArchiver writes one JSON object per dead letter, keyed
// {prefix}/{tenant_id}/{event_type}/{outbox_event_id}.json. Rewriting the same
// dead letter overwrites its object.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, etc.)
type S3DeadLetterArchiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ArchiverOption is a functional option for configuring S3DeadLetterArchiver
type S3ArchiverOption func(*S3DeadLetterArchiver)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ArchiverOption {
	return func(s *S3DeadLetterArchiver) {
		s.logger = logger
	}
}

// NewS3DeadLetterArchiver creates an archiver from configuration. Without
// static credentials the default AWS credential chain is used.
func NewS3DeadLetterArchiver(cfg *infraconfig.StorageConfig, opts ...S3ArchiverOption) (*S3DeadLetterArchiver, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, ErrArchiveDisabled
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("storage access key id and secret access key must be set together")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	a := &S3DeadLetterArchiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during startup so the first dead letter does not pay for it.
func (s *S3DeadLetterArchiver) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating dead-letter bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectKey returns the key a dead letter is archived under
func (s *S3DeadLetterArchiver) ObjectKey(dl *shared.DeadLetter) string {
	return path.Join(s.prefix, dl.TenantID.String(), dl.EventType, dl.OutboxEventID.String()+".json")
}

// archivedDeadLetter is the archived document. Payload is embedded as JSON
// when it is valid JSON, and as a string otherwise.
type archivedDeadLetter struct {
	ID            uuid.UUID       `json:"id"`
	OutboxEventID uuid.UUID       `json:"outbox_event_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error"`
	FailedAt      time.Time       `json:"failed_at"`
	ArchivedAt    time.Time       `json:"archived_at"`
}

func encodeDeadLetter(dl *shared.DeadLetter, archivedAt time.Time) ([]byte, error) {
	payload := json.RawMessage(dl.Payload)
	if !json.Valid(dl.Payload) {
		quoted, err := json.Marshal(string(dl.Payload))
		if err != nil {
			return nil, err
		}
		payload = quoted
	}
	return json.Marshal(archivedDeadLetter{
		ID:            dl.ID,
		OutboxEventID: dl.OutboxEventID,
		TenantID:      dl.TenantID,
		AggregateType: dl.AggregateType,
		AggregateID:   dl.AggregateID,
		EventType:     dl.EventType,
		Payload:       payload,
		Attempts:      dl.Attempts,
		LastError:     dl.LastError,
		FailedAt:      dl.FailedAt,
		ArchivedAt:    archivedAt,
	})
}

// Archive uploads the dead letter
func (s *S3DeadLetterArchiver) Archive(ctx context.Context, dl *shared.DeadLetter) error {
	body, err := encodeDeadLetter(dl, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	key := s.ObjectKey(dl)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload dead letter %s: %w", dl.OutboxEventID, err)
	}

	s.logger.Info("Dead letter archived",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
	)
	return nil
}

// Bucket returns the bucket name
func (s *S3DeadLetterArchiver) Bucket() string {
	return s.bucket
}
