package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/safego"
	"github.com/momofin/momofin-backend/internal/telemetry"
)

// Log levels accepted by Sink.Log.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

const defaultWriteTimeout = 5 * time.Second

// Sink accepts activity log entries. Implementations never fail the caller.
type Sink interface {
	Log(ctx context.Context, level, message, requestURI string)
}

// Store persists activity log entries.
type Store interface {
	Create(ctx context.Context, entry *models.LogEntry) error
}

// Recorder is the Sink used by the HTTP handlers. Persistence and shipping
// happen in the background; Close waits for them.
type Recorder struct {
	store        Store
	shipper      Shipper
	logger       *slog.Logger
	writeTimeout time.Duration
	inflight     safego.Group
	closed       atomic.Bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger entries are mirrored to. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithShipper forwards entries to shipper in addition to the store.
func WithShipper(shipper Shipper) RecorderOption {
	return func(r *Recorder) { r.shipper = shipper }
}

// WithWriteTimeout bounds each background write.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.writeTimeout = d }
}

// NewRecorder creates a Recorder. store may be nil, in which case entries are
// only logged and shipped.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:        store,
		logger:       slog.Default(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Log records an entry. It returns immediately.
func (r *Recorder) Log(ctx context.Context, level, message, requestURI string) {
	entry := &models.LogEntry{
		Level:      normalizeLevel(level),
		Message:    message,
		RequestURI: requestURI,
		CreatedAt:  time.Now().UTC(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		entry.UserID = optional(actor.UserID)
		entry.OrganizationID = optional(actor.OrganizationID)
	}
	entry.RequestID = optional(RequestIDFromContext(ctx))

	r.logger.LogAttrs(ctx, slogLevel(entry.Level), message,
		slog.String("request_uri", requestURI),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)

	if r.closed.Load() {
		r.logger.Warn("activity log entry dropped after shutdown", "message", message)
		return
	}

	r.inflight.Go(func() {
		r.write(entry)
	})
}

func (r *Recorder) write(entry *models.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if r.store != nil {
		if err := r.store.Create(ctx, entry); err != nil {
			telemetry.ActivityLogWriteErrorsTotal.Inc()
			r.logger.Error("failed to persist activity log entry", "error", err, "message", entry.Message)
		}
	}
	if r.shipper != nil {
		if err := r.shipper.Ship(ctx, entry); err != nil {
			r.logger.Warn("failed to ship activity log entry", "error", err)
		}
	}
}

// Close stops accepting entries, waits for in-flight writes until ctx is done
// and closes the shipper.
func (r *Recorder) Close(ctx context.Context) error {
	r.closed.Store(true)
	waitErr := r.inflight.Wait(ctx)

	var shipErr error
	if r.shipper != nil {
		shipErr = r.shipper.Close()
	}
	return errors.Join(waitErr, shipErr)
}

func normalizeLevel(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case LevelDebug, LevelInfo, LevelError:
		return l
	case LevelWarn, "WARNING":
		return LevelWarn
	default:
		return LevelInfo
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
