package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3/R2 audit archive configuration
type Config struct {
	Endpoint  string // custom endpoint for R2/MinIO; empty means AWS S3
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3Archive stores verbatim gateway payloads for audit and dispute
// resolution. Writes are best-effort; callers must not fail a settlement on
// archive errors.
type S3Archive struct {
	client *s3.Client
	bucket string
}

// NewS3Archive creates an archive backed by S3 or an S3-compatible store
func NewS3Archive(cfg Config) (*S3Archive, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true // required for MinIO/R2
	})

	return &S3Archive{client: client, bucket: cfg.Bucket}, nil
}

// StorePayload archives a raw gateway payload under the transaction id
func (a *S3Archive) StorePayload(ctx context.Context, transactionID string, payload []byte) error {
	key := "gateway-payloads/" + transactionID + ".json"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive gateway payload: %w", err)
	}
	return nil
}
