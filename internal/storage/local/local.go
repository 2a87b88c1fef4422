// Package local stores documents on the local filesystem. It suits development
// and single-node deployments; several instances need a shared volume.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/storage"
	"github.com/momofin/momofin-backend/pkg/checksum"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local)
	})
}

// LocalStorage keeps objects as files under basePath
type LocalStorage struct {
	basePath string
}

// New creates the base directory if needed
func New(cfg *config.LocalStorageConfig) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base path is required")
	}
	base, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("invalid storage base path: %w", err)
	}
	if err := os.MkdirAll(base, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: base}, nil
}

// resolve maps an object path to a file path, refusing anything that would
// land outside basePath.
func (s *LocalStorage) resolve(path string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(path))
	if full == s.basePath || !strings.HasPrefix(full, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path: %q", path)
	}
	return full, nil
}

// Upload writes the object, replacing any existing file at path
func (s *LocalStorage) Upload(_ context.Context, path string, reader io.Reader, _ int64) (*storage.UploadResult, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	sha := checksum.NewSHA256Writer()
	written, err := io.Copy(io.MultiWriter(file, sha), reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &storage.UploadResult{
		Path:     path,
		Size:     written,
		Checksum: sha.Sum(),
	}, nil
}

// Download opens the stored file
func (s *LocalStorage) Download(_ context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the file and any parent directories it leaves empty
func (s *LocalStorage) Delete(_ context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// best effort; stops at the first non-empty directory
	for dir := filepath.Dir(fullPath); dir != s.basePath; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Exists reports whether a file is stored at path
func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}
