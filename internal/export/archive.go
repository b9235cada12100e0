package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/enviodev/liqo/logger"
)

// S3ArchiverConfig holds the bucket settings for export archiving.
type S3ArchiverConfig struct {
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archiver keeps a copy of every generated CSV in S3, keyed by date so
// exports are browsable by day.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Log
}

// NewS3Archiver configures the AWS SDK and validates credentials.
func NewS3Archiver(ctx context.Context, cfg S3ArchiverConfig) (*S3Archiver, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("export: load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("export: aws credentials not found")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "exports"
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: prefix,
		log:    logger.GetLogger(),
	}, nil
}

// Archive uploads one CSV under <prefix>/YYYY/MM/DD/<filename>.
func (a *S3Archiver) Archive(ctx context.Context, filename string, data []byte) error {
	key := path.Join(a.prefix, time.Now().UTC().Format("2006/01/02"), filename)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("export: put object %s: %w", key, err)
	}

	a.log.WithComponent("export_archive").WithFields(logger.Fields{
		"key":   key,
		"bytes": len(data),
	}).Debug("archived export")
	return nil
}
