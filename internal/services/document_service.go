package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/db/repositories"
	"github.com/momofin/momofin-backend/internal/storage"
	"github.com/momofin/momofin-backend/internal/telemetry"
	"github.com/momofin/momofin-backend/pkg/checksum"
)

// DocumentStore persists document metadata.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, organizationID, id string) (*models.Document, error)
	GetByDigest(ctx context.Context, organizationID, digest, algorithm string) (*models.Document, error)
}

// VerificationResult is the outcome of checking an uploaded copy against the
// documents registered in the requester's organization.
type VerificationResult struct {
	Valid    bool             `json:"valid"`
	Digest   string           `json:"digest"`
	Document *models.Document `json:"document,omitempty"`
}

// IntegrityReport compares a stored object with the fingerprints recorded when
// it was uploaded. DigestValid covers the keyed digest, ChecksumValid the plain
// SHA-256; only the former proves the bytes were not replaced.
type IntegrityReport struct {
	Document      *models.Document `json:"document"`
	DigestValid   bool             `json:"digestValid"`
	ChecksumValid bool             `json:"checksumValid"`
}

// Intact reports whether both fingerprints still match.
func (r *IntegrityReport) Intact() bool {
	return r.DigestValid && r.ChecksumValid
}

// DocumentService registers documents by keyed digest and verifies copies.
type DocumentService struct {
	docs      DocumentStore
	storage   storage.Storage
	key       []byte
	algorithm string
	tempDir   string
}

// NewDocumentService creates a DocumentService. algorithm must be accepted by
// checksum.IsSupported; config validation guarantees that at startup.
func NewDocumentService(docs DocumentStore, store storage.Storage, key []byte, algorithm string) *DocumentService {
	if canonical, err := checksum.CanonicalAlgorithm(algorithm); err == nil {
		algorithm = canonical
	}
	return &DocumentService{
		docs:      docs,
		storage:   store,
		key:       key,
		algorithm: algorithm,
	}
}

// Algorithm returns the HMAC algorithm used for new digests.
func (s *DocumentService) Algorithm() string {
	return s.algorithm
}

// Submit stores r as a new document owned by user's organization. When the
// organization already holds identical content the existing document is
// returned together with ErrDocumentExists.
func (s *DocumentService) Submit(ctx context.Context, user *models.User, filename string, r io.Reader) (*models.Document, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}

	tmp, err := os.CreateTemp(s.tempDir, "momofin-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	sha := checksum.NewSHA256Writer()
	size, err := io.Copy(io.MultiWriter(tmp, sha), r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", checksum.ErrIO, err)
	}

	start := time.Now()
	digest, err := checksum.ComputeHMACFile(tmp.Name(), s.key, s.algorithm)
	telemetry.DigestDuration.WithLabelValues(s.algorithm).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	existing, err := s.docs.GetByDigest(ctx, user.OrganizationID, digest, s.algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to look up digest: %w", err)
	}
	if existing != nil {
		telemetry.DocumentsTotal.WithLabelValues("duplicate").Inc()
		return existing, ErrDocumentExists
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", checksum.ErrIO, err)
	}

	doc := &models.Document{
		ID:             uuid.New().String(),
		OrganizationID: user.OrganizationID,
		UploadedBy:     user.ID,
		Name:           cleanFilename(filename),
		Size:           size,
		Digest:         digest,
		Algorithm:      s.algorithm,
		SHA256:         sha.Sum(),
	}
	doc.StoragePath = path.Join("documents", doc.OrganizationID, doc.ID, doc.Name)

	if _, err := s.storage.Upload(ctx, doc.StoragePath, tmp, size); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		s.discard(ctx, doc.StoragePath)
		if _, ok := repositories.UniqueViolation(err); ok {
			existing, lookupErr := s.docs.GetByDigest(ctx, user.OrganizationID, digest, s.algorithm)
			if lookupErr == nil && existing != nil {
				telemetry.DocumentsTotal.WithLabelValues("duplicate").Inc()
				return existing, ErrDocumentExists
			}
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	telemetry.DocumentsTotal.WithLabelValues("stored").Inc()
	return doc, nil
}

// Verify computes the keyed digest of r and reports whether it matches a
// document registered in user's organization.
func (s *DocumentService) Verify(ctx context.Context, user *models.User, r io.Reader) (*VerificationResult, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}

	start := time.Now()
	digest, err := checksum.ComputeHMAC(r, s.key, s.algorithm)
	telemetry.DigestDuration.WithLabelValues(s.algorithm).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.GetByDigest(ctx, user.OrganizationID, digest, s.algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to look up digest: %w", err)
	}

	result := &VerificationResult{Valid: doc != nil, Digest: digest, Document: doc}
	if result.Valid {
		telemetry.DocumentsTotal.WithLabelValues("verified").Inc()
	} else {
		telemetry.DocumentsTotal.WithLabelValues("unverified").Inc()
	}
	return result, nil
}

// Get returns a document's metadata if it belongs to user's organization.
func (s *DocumentService) Get(ctx context.Context, user *models.User, id string) (*models.Document, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrDocumentNotFound
	}

	doc, err := s.docs.GetByID(ctx, user.OrganizationID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Open returns a document together with a reader over its stored bytes. The
// caller closes the reader.
func (s *DocumentService) Open(ctx context.Context, user *models.User, id string) (*models.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.download(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// CheckIntegrity re-reads a stored document and checks it against the keyed
// digest and SHA-256 recorded at upload.
func (s *DocumentService) CheckIntegrity(ctx context.Context, user *models.User, id string) (*IntegrityReport, error) {
	doc, rc, err := s.Open(ctx, user, id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	digestOK, err := checksum.VerifyHMAC(rc, s.key, doc.Algorithm, doc.Digest)
	telemetry.DigestDuration.WithLabelValues(doc.Algorithm).Observe(time.Since(start).Seconds())
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to digest stored document: %w", err)
	}

	rc, err = s.download(ctx, doc)
	if err != nil {
		return nil, err
	}
	shaOK, err := checksum.VerifySHA256(rc, doc.SHA256)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to checksum stored document: %w", err)
	}

	report := &IntegrityReport{Document: doc, DigestValid: digestOK, ChecksumValid: shaOK}
	if report.Intact() {
		telemetry.DocumentsTotal.WithLabelValues("intact").Inc()
	} else {
		telemetry.DocumentsTotal.WithLabelValues("corrupted").Inc()
	}
	return report, nil
}

func (s *DocumentService) download(ctx context.Context, doc *models.Document) (io.ReadCloser, error) {
	rc, err := s.storage.Download(ctx, doc.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDocumentContentMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored document: %w", err)
	}
	return rc, nil
}

func (s *DocumentService) discard(ctx context.Context, storagePath string) {
	if err := s.storage.Delete(ctx, storagePath); err != nil {
		slog.Warn("failed to remove orphaned document object", "path", storagePath, "error", err)
	}
}

// cleanFilename reduces a client-supplied name to a single safe path element.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "document"
	}
	return name
}
