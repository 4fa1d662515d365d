// Package archive keeps a cold copy of usage audit records in S3 as JSON Lines files,
// one object per flushed batch.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lang_gateway/internal/models"
	"lang_gateway/internal/utils"
)

// Archiver stores a batch of usage records and returns where it went
type Archiver interface {
	Archive(ctx context.Context, records []*models.UsageRecord) (string, error)
}

// putObjectAPI is the part of the S3 client the archiver uses
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the bucket usage batches are written to
type Config struct {
	Bucket   string
	Region   string
	Prefix   string // e.g. "usage/"
	Instance string // distinguishes writers sharing a bucket
}

// S3Archiver writes usage batches to S3
type S3Archiver struct {
	client   putObjectAPI
	bucket   string
	prefix   string
	instance string
	logger   *utils.Logger
	now      func() time.Time
}

// NewS3Archiver creates an archiver using the default AWS credential chain
func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newS3Archiver(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3Archiver(client putObjectAPI, cfg Config) *S3Archiver {
	instance := cfg.Instance
	if instance == "" {
		instance = "gateway"
	}
	return &S3Archiver{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		instance: instance,
		logger:   utils.NewLogger("usage-archive"),
		now:      time.Now,
	}
}

// ObjectKey names the object of a batch written at t,
// e.g. usage/2021/02/09/gateway-0-20210209-143022-123456789.jsonl
func (a *S3Archiver) ObjectKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		a.prefix,
		t.Year(),
		t.Month(),
		t.Day(),
		a.instance,
		t.Format("20060102-150405"),
		t.Nanosecond(),
	)
}

// Archive uploads the batch as one JSON Lines object. An empty batch writes nothing.
func (a *S3Archiver) Archive(ctx context.Context, records []*models.UsageRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return "", fmt.Errorf("failed to encode usage record %s: %w", record.ID, err)
		}
	}

	key := a.ObjectKey(a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload usage batch to S3: %w", err)
	}

	a.logger.Debug("Archived usage batch", "key", key, "count", len(records), "bytes", buf.Len())
	return key, nil
}

var _ Archiver = (*S3Archiver)(nil)
