// Package documents implements the document integrity endpoints: registering
// an uploaded file's keyed digest, verifying a copy against it, serving the
// stored bytes back and re-checking them in storage.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/momofin/momofin-backend/internal/audit"
	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/middleware"
	"github.com/momofin/momofin-backend/internal/services"
	"github.com/momofin/momofin-backend/pkg/checksum"
)

// formFileField is the multipart field carrying the document
const formFileField = "file"

// maxFormMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const maxFormMemory = 8 << 20

// DocumentService is the subset of services.DocumentService the handlers use.
type DocumentService interface {
	Submit(ctx context.Context, user *models.User, filename string, r io.Reader) (*models.Document, error)
	Verify(ctx context.Context, user *models.User, r io.Reader) (*services.VerificationResult, error)
	Get(ctx context.Context, user *models.User, id string) (*models.Document, error)
	Open(ctx context.Context, user *models.User, id string) (*models.Document, io.ReadCloser, error)
	CheckIntegrity(ctx context.Context, user *models.User, id string) (*services.IntegrityReport, error)
}

// DigestHeader carries "<algorithm>=<hex digest>" on downloaded content.
const DigestHeader = "X-Momofin-Digest"

// Handlers serves the /documents routes
type Handlers struct {
	svc            DocumentService
	recorder       audit.Sink
	maxUploadBytes int64
}

// NewHandlers creates the document handlers. Request bodies larger than
// maxUploadBytes are rejected with 413.
func NewHandlers(svc DocumentService, recorder audit.Sink, maxUploadBytes int64) *Handlers {
	return &Handlers{svc: svc, recorder: recorder, maxUploadBytes: maxUploadBytes}
}

// UploadHandler stores a document and registers its digest
// POST /documents (multipart: file)
func (h *Handlers) UploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{middleware.ErrorKey: "Authentication required"})
			return
		}

		file, header, ok := h.formFile(c)
		if !ok {
			return
		}
		defer file.Close()

		ctx := c.Request.Context()
		doc, err := h.svc.Submit(ctx, user, header.Filename, file)
		switch {
		case errors.Is(err, services.ErrDocumentExists):
			c.JSON(http.StatusConflict, gin.H{
				middleware.ErrorKey: "A document with the same content is already registered",
				"document":          doc,
			})
			return
		case errors.Is(err, checksum.ErrIO):
			c.JSON(http.StatusBadRequest, gin.H{middleware.ErrorKey: "Failed to read uploaded file"})
			return
		case err != nil:
			slog.ErrorContext(ctx, "document upload failed", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{middleware.ErrorKey: "Internal server error"})
			return
		}

		h.recorder.Log(ctx, audit.LevelInfo,
			fmt.Sprintf("Document %s uploaded by user: %s", doc.Name, user.Username),
			c.Request.URL.Path)

		c.JSON(http.StatusCreated, gin.H{"document": doc})
	}
}

// VerifyHandler checks an uploaded copy against the organization's documents
// POST /documents/verify (multipart: file)
func (h *Handlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{middleware.ErrorKey: "Authentication required"})
			return
		}

		file, header, ok := h.formFile(c)
		if !ok {
			return
		}
		defer file.Close()

		ctx := c.Request.Context()
		result, err := h.svc.Verify(ctx, user, file)
		if err != nil {
			if errors.Is(err, checksum.ErrIO) {
				c.JSON(http.StatusBadRequest, gin.H{middleware.ErrorKey: "Failed to read uploaded file"})
				return
			}
			slog.ErrorContext(ctx, "document verification failed", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{middleware.ErrorKey: "Internal server error"})
			return
		}

		level, outcome := audit.LevelInfo, "verified"
		if !result.Valid {
			level, outcome = audit.LevelWarn, "not verified"
		}
		h.recorder.Log(ctx, level,
			fmt.Sprintf("Document %s %s for user: %s", header.Filename, outcome, user.Username),
			c.Request.URL.Path)

		c.JSON(http.StatusOK, result)
	}
}

// GetHandler returns a document's metadata
// GET /documents/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{middleware.ErrorKey: "Authentication required"})
			return
		}

		doc, err := h.svc.Get(c.Request.Context(), user, c.Param("id"))
		if err != nil {
			h.lookupFailed(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"document": doc})
	}
}

// ContentHandler streams a document's stored bytes
// GET /documents/:id/content
func (h *Handlers) ContentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{middleware.ErrorKey: "Authentication required"})
			return
		}

		ctx := c.Request.Context()
		doc, rc, err := h.svc.Open(ctx, user, c.Param("id"))
		if err != nil {
			h.lookupFailed(c, err)
			return
		}
		defer rc.Close()

		c.DataFromReader(http.StatusOK, doc.Size, "application/octet-stream", rc, map[string]string{
			"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}),
			DigestHeader:          doc.Algorithm + "=" + doc.Digest,
		})
	}
}

// IntegrityHandler re-checks a stored document against its recorded digests
// GET /documents/:id/integrity
func (h *Handlers) IntegrityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{middleware.ErrorKey: "Authentication required"})
			return
		}

		ctx := c.Request.Context()
		report, err := h.svc.CheckIntegrity(ctx, user, c.Param("id"))
		if err != nil {
			if errors.Is(err, services.ErrDocumentContentMissing) {
				h.recorder.Log(ctx, audit.LevelError,
					fmt.Sprintf("Document %s is missing from storage", c.Param("id")),
					c.Request.URL.Path)
			}
			h.lookupFailed(c, err)
			return
		}

		if !report.Intact() {
			h.recorder.Log(ctx, audit.LevelError,
				fmt.Sprintf("Document %s failed integrity check for user: %s", report.Document.Name, user.Username),
				c.Request.URL.Path)
		}
		c.JSON(http.StatusOK, report)
	}
}

// lookupFailed writes the response for an error from Get, Open or CheckIntegrity.
func (h *Handlers) lookupFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{middleware.ErrorKey: "Document not found"})
	case errors.Is(err, services.ErrDocumentContentMissing):
		c.JSON(http.StatusNotFound, gin.H{middleware.ErrorKey: "Document content not found"})
	default:
		slog.ErrorContext(c.Request.Context(), "document lookup failed", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{middleware.ErrorKey: "Internal server error"})
	}
}

// formFile extracts the uploaded file, writing the error response itself when
// the body is oversized or malformed.
func (h *Handlers) formFile(c *gin.Context) (multipart.File, *multipart.FileHeader, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				middleware.ErrorKey: fmt.Sprintf("File exceeds the %d byte upload limit", tooLarge.Limit),
			})
			return nil, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{middleware.ErrorKey: "Failed to parse multipart form"})
		return nil, nil, false
	}

	file, header, err := c.Request.FormFile(formFileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{middleware.ErrorKey: "No file provided"})
		return nil, nil, false
	}
	return file, header, true
}
