package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"folio/internal/models"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes each snapshot as one JSON object under Prefix.
type S3 struct {
	client objectPutter
	Bucket string
	Region string
	Prefix string
	now    func() time.Time
}

// NewS3 creates an S3 target using the default AWS credential chain.
func NewS3(ctx context.Context, bucket, region, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 backup needs a bucket")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3{
		client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Region: region,
		Prefix: prefix,
		now:    time.Now,
	}, nil
}

// Upload stores pages as <prefix><timestamp>.json.
func (t *S3) Upload(ctx context.Context, pages []models.Page) (string, error) {
	body, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return "", err
	}

	key := t.Prefix + t.now().UTC().Format("20060102T150405Z") + ".json"
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put s3://%s/%s: %v", ErrUpstream, t.Bucket, key, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", t.Bucket, t.Region, key), nil
}
