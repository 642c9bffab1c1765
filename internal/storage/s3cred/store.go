// Package s3cred keeps tenant credential blobs in an S3 compatible bucket.
package s3cred

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/credfile"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
)

// ObjectClient is the subset of *s3.Client the store uses.
type ObjectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientConfig selects the bucket endpoint. Empty keys fall back to the default AWS
// credential chain; an empty endpoint selects AWS itself.
type ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client. A custom endpoint (MinIO, R2) switches to path style
// addressing.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Store writes blobs to <prefix>/<tenantID>_<configID>/<platform file>. References
// exclude the prefix, matching the file store's layout.
type Store struct {
	client ObjectClient
	bucket string
	prefix string
}

func NewStore(client ObjectClient, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) key(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return s.prefix + "/" + ref
}

// Save uploads blob for the given config and returns its reference.
func (s *Store) Save(ctx context.Context, tenantID, configID string, platform push.Platform, blob []byte) (string, error) {
	ref, err := credfile.ObjectName(tenantID, configID, platform)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(ref)),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload credential: %w", err)
	}
	return ref, nil
}

// ReadCredential implements push.CredentialReader.
func (s *Store) ReadCredential(ctx context.Context, ref string) ([]byte, error) {
	clean := path.Clean(ref)
	if ref == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return nil, &push.ValidationError{Field: "credential_ref", Reason: "must be a relative object name"}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(clean)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &push.NotFoundError{Resource: "credential", ID: ref}
		}
		return nil, fmt.Errorf("failed to download credential %s: %w", ref, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential %s: %w", ref, err)
	}
	return b, nil
}
