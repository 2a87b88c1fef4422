// Package storage defines the object store that holds uploaded document bytes.
//
// Backends register themselves with the factory from an init() function in
// their own package, and the server selects one by storage.default_backend:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(cfg)
//	    })
//	}
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Download for a path with no object.
var ErrNotFound = errors.New("object not found")

// Storage is implemented by every document storage backend
type Storage interface {
	// Upload stores size bytes from reader at path
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download returns a reader for the object at path. The caller closes it.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object is stored at path
	Exists(ctx context.Context, path string) (bool, error)
}

// UploadResult describes a stored object
type UploadResult struct {
	Path string
	Size int64
	// Checksum is the hex SHA-256 of the stored bytes
	Checksum string
}
