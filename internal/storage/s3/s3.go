// Package s3 stores documents in an S3-compatible bucket (AWS S3, MinIO and
// similar). Credentials come from the default AWS chain, a static key pair,
// OIDC web identity, or AssumeRole.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	appconfig "github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/storage"
)

func init() {
	storage.Register("s3", func(cfg *appconfig.Config) (storage.Storage, error) {
		return New(&cfg.Storage.S3)
	})
}

// S3Storage implements storage.Storage on a single bucket
type S3Storage struct {
	client *s3.Client
	bucket string
}

// Supported values of storage.s3.auth_method.
const (
	AuthDefault    = "default"
	AuthStatic     = "static"
	AuthOIDC       = "oidc"
	AuthAssumeRole = "assume_role"
)

// New creates the backend. With no auth_method set, a configured key pair
// selects static credentials and anything else uses the default AWS chain
// (env vars, shared config, IAM role, IMDS).
func New(cfg *appconfig.S3StorageConfig) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	method, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if method == AuthStatic {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if provider := roleProvider(method, cfg, sts.NewFromConfig(awsCfg)); provider != nil {
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		// MinIO and friends need path-style addressing
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// authMethod resolves and validates the configured auth method.
func authMethod(cfg *appconfig.S3StorageConfig) (string, error) {
	method := cfg.AuthMethod
	if method == "" {
		method = AuthDefault
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			method = AuthStatic
		}
	}

	switch method {
	case AuthDefault:
	case AuthStatic:
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return "", fmt.Errorf("access_key_id and secret_access_key are required for static auth")
		}
	case AuthOIDC:
		if cfg.RoleARN == "" {
			return "", fmt.Errorf("role_arn is required for OIDC auth")
		}
		if cfg.WebIdentityTokenFile == "" {
			return "", fmt.Errorf("web_identity_token_file is required for OIDC auth")
		}
	case AuthAssumeRole:
		if cfg.RoleARN == "" {
			return "", fmt.Errorf("role_arn is required for assume_role auth")
		}
	default:
		return "", fmt.Errorf("unsupported auth_method: %s (must be 'default', 'static', 'oidc', or 'assume_role')", method)
	}
	return method, nil
}

// roleProvider returns the STS-backed provider for role based methods, or nil
// when the base config credentials should be used as is.
func roleProvider(method string, cfg *appconfig.S3StorageConfig, client *sts.Client) aws.CredentialsProvider {
	switch method {
	case AuthOIDC:
		return stscreds.NewWebIdentityRoleProvider(client, cfg.RoleARN,
			stscreds.IdentityTokenFile(cfg.WebIdentityTokenFile),
			func(o *stscreds.WebIdentityRoleOptions) {
				if cfg.RoleSessionName != "" {
					o.RoleSessionName = cfg.RoleSessionName
				}
			},
		)
	case AuthAssumeRole:
		return stscreds.NewAssumeRoleProvider(client, cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			if cfg.RoleSessionName != "" {
				o.RoleSessionName = cfg.RoleSessionName
			}
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
		})
	}
	return nil
}

// Upload puts the object with its SHA-256 in the object metadata.
func (s *S3Storage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	payload, err := storage.PreparePayload(reader)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          payload.Body,
		ContentLength: aws.Int64(payload.Size),
		Metadata: map[string]string{
			"sha256": payload.Checksum,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &storage.UploadResult{
		Path:     path,
		Size:     payload.Size,
		Checksum: payload.Checksum,
	}, nil
}

// Download streams the object body
func (s *S3Storage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	return result.Body, nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *S3Storage) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// Exists issues a HEAD for the object. Only a 404 counts as absent; other
// failures (credentials, network) are returned so readiness checks see them.
func (s *S3Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object: %w", err)
	}
	return true, nil
}
