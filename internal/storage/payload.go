package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/momofin/momofin-backend/pkg/checksum"
)

// Payload is an upload body whose SHA-256 is known before it is sent, so
// backends can attach the checksum as object metadata up front.
type Payload struct {
	Body     io.ReadSeeker
	Size     int64
	Checksum string
}

// PreparePayload fingerprints reader and leaves it positioned at the start.
// Seekable readers are hashed in place; anything else is buffered in memory.
func PreparePayload(reader io.Reader) (*Payload, error) {
	sha := checksum.NewSHA256Writer()

	if rs, ok := reader.(io.ReadSeeker); ok {
		if _, err := io.Copy(sha, rs); err != nil {
			return nil, fmt.Errorf("failed to read data: %w", err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind data: %w", err)
		}
		return &Payload{Body: rs, Size: sha.Size(), Checksum: sha.Sum()}, nil
	}

	data, err := io.ReadAll(io.TeeReader(reader, sha))
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return &Payload{Body: bytes.NewReader(data), Size: int64(len(data)), Checksum: sha.Sum()}, nil
}
