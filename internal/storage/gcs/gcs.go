// Package gcs stores documents in a Google Cloud Storage bucket. Credentials
// come from Application Default Credentials (which also covers Workload
// Identity on GKE and GitHub Actions) or an explicit service account key.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/momofin/momofin-backend/internal/config"
	appstorage "github.com/momofin/momofin-backend/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// Supported values of storage.gcs.auth_method.
const (
	AuthDefault          = "default"
	AuthServiceAccount   = "service_account"
	AuthWorkloadIdentity = "workload_identity"
)

// GCSStorage implements storage.Storage on a single bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// New creates the backend. The client is created eagerly so credential
// problems surface at startup rather than on the first upload.
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// clientOptions translates the auth settings into client options. With no
// auth_method set, configured credentials select service_account.
func clientOptions(cfg *appconfig.GCSStorageConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	method := cfg.AuthMethod
	if method == "" {
		method = AuthDefault
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			method = AuthServiceAccount
		}
	}

	switch method {
	case AuthServiceAccount:
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case AuthDefault, AuthWorkloadIdentity:
		// Application Default Credentials
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", method)
	}
	return opts, nil
}

// Close releases the underlying client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) object(path string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path)
}

// Upload writes the object with its SHA-256 in the object metadata. The
// metadata has to be set before the first byte is written, so the checksum is
// computed up front.
func (s *GCSStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*appstorage.UploadResult, error) {
	payload, err := appstorage.PreparePayload(reader)
	if err != nil {
		return nil, err
	}

	writer := s.object(path).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.Metadata = map[string]string{"sha256": payload.Checksum}

	if _, err := io.Copy(writer, payload.Body); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return &appstorage.UploadResult{
		Path:     path,
		Size:     payload.Size,
		Checksum: payload.Checksum,
	}, nil
}

// Download streams the object
func (s *GCSStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	reader, err := s.object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, appstorage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return reader, nil
}

// Delete removes the object; a missing object is not an error
func (s *GCSStorage) Delete(ctx context.Context, path string) error {
	if err := s.object(path).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// Exists reports whether the object is present
func (s *GCSStorage) Exists(ctx context.Context, path string) (bool, error) {
	if _, err := s.object(path).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
