// Package azure stores documents as block blobs in one Azure Blob Storage
// container, authenticated with the storage account's shared key.
package azure

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// AzureStorage implements storage.Storage on a single container
type AzureStorage struct {
	client        *azblob.Client
	containerName string
}

// New creates the backend
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL(cfg), credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{client: client, containerName: cfg.ContainerName}, nil
}

func serviceURL(cfg *config.AzureStorageConfig) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
}

// Upload stores the blob with its SHA-256 in the blob metadata
func (s *AzureStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	payload, err := storage.PreparePayload(reader)
	if err != nil {
		return nil, err
	}

	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(path)
	_, err = blobClient.Upload(ctx, streaming.NopCloser(payload.Body), &blockblob.UploadOptions{
		Metadata: map[string]*string{"sha256": &payload.Checksum},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.UploadResult{
		Path:     path,
		Size:     payload.Size,
		Checksum: payload.Checksum,
	}, nil
}

// Download streams the blob
func (s *AzureStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.containerName, path, nil)
	if err != nil {
		if notFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes the blob; a missing blob is not an error
func (s *AzureStorage) Delete(ctx context.Context, path string) error {
	if _, err := s.client.DeleteBlob(ctx, s.containerName, path, nil); err != nil && !notFound(err) {
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// Exists reports whether the blob is present
func (s *AzureStorage) Exists(ctx context.Context, path string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(path)
	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get blob properties: %w", err)
	}
	return true, nil
}

func notFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}
