// Package audit records authentication and document activity. Every entry is
// written to the application log, persisted to the log_entries table and
// optionally forwarded to external destinations through a Shipper.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/safego"
	"github.com/momofin/momofin-backend/pkg/checksum"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultFlushInterval  = 5 * time.Second
	webhookQueueSize      = 1000
)

// Shipper forwards activity log entries to an external destination.
type Shipper interface {
	Ship(ctx context.Context, entry *models.LogEntry) error
	Close() error
}

// ShipperConfig selects and configures one shipper.
type ShipperConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Type    string         `mapstructure:"type"` // "webhook" or "file"
	Webhook *WebhookConfig `mapstructure:"webhook"`
	File    *FileConfig    `mapstructure:"file"`
}

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
	// SigningSecret, when set, signs each body; see SignatureHeader
	SigningSecret string `mapstructure:"signing_secret"`
	// BatchSize is how many entries to batch before sending (0 = no batching)
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper creates a MultiShipper from configs, skipping disabled ones.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{
		shippers: make([]Shipper, 0),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Len returns the number of active shippers.
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers and returns the last error.
func (ms *MultiShipper) Ship(ctx context.Context, entry *models.LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("activity log shipper failed", "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body, prefixed with
// "sha256=", when the shipper has a signing secret.
const SignatureHeader = "X-Momofin-Signature"

// WebhookShipper POSTs entries as JSON. With BatchSize set, entries are queued
// and sent as a JSON array when the batch fills, every FlushInterval, and on
// Close.
type WebhookShipper struct {
	url        string
	headers    map[string]string
	secret     []byte
	client     *http.Client
	timeout    time.Duration
	batchSize  int
	flushEvery time.Duration

	// closeMu guards closed; Ship holds it shared so a queued entry is
	// always seen by run before stop is closed.
	closeMu sync.RWMutex
	closed  bool
	queue   chan *models.LogEntry
	stop    chan struct{}
	done    chan struct{}
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}

	ws := &WebhookShipper{
		url:        cfg.URL,
		headers:    cfg.Headers,
		secret:     []byte(cfg.SigningSecret),
		timeout:    cfg.Timeout,
		batchSize:  cfg.BatchSize,
		flushEvery: cfg.FlushInterval,
		queue:      make(chan *models.LogEntry, webhookQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if ws.timeout <= 0 {
		ws.timeout = defaultWebhookTimeout
	}
	if ws.flushEvery <= 0 {
		ws.flushEvery = defaultFlushInterval
	}
	ws.client = &http.Client{Timeout: ws.timeout}

	if ws.batchSize > 0 {
		safego.Go(ws.run)
	} else {
		close(ws.done)
	}
	return ws, nil
}

// run owns the pending batch; nothing else touches it.
func (ws *WebhookShipper) run() {
	defer close(ws.done)

	ticker := time.NewTicker(ws.flushEvery)
	defer ticker.Stop()

	var pending []*models.LogEntry
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
		defer cancel()
		if err := ws.post(ctx, pending); err != nil {
			slog.Error("failed to send activity log batch", "entries", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case entry := <-ws.queue:
			pending = append(pending, entry)
			if len(pending) >= ws.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ws.stop:
			for {
				select {
				case entry := <-ws.queue:
					pending = append(pending, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Ship sends an entry to the webhook, or queues it when batching is enabled.
// A full queue or a closed shipper falls back to a direct send.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *models.LogEntry) error {
	if ws.batchSize > 0 {
		ws.closeMu.RLock()
		if !ws.closed {
			select {
			case ws.queue <- entry:
				ws.closeMu.RUnlock()
				return nil
			default:
			}
		}
		ws.closeMu.RUnlock()
	}
	return ws.post(ctx, entry)
}

func (ws *WebhookShipper) post(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal activity log payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}
	if len(ws.secret) > 0 {
		sig, err := checksum.ComputeHMAC(bytes.NewReader(data), ws.secret, checksum.DefaultAlgorithm)
		if err != nil {
			return fmt.Errorf("failed to sign webhook body: %w", err)
		}
		req.Header.Set(SignatureHeader, "sha256="+sig)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any queued batch and stops the batch processor.
func (ws *WebhookShipper) Close() error {
	ws.closeMu.Lock()
	if !ws.closed {
		ws.closed = true
		close(ws.stop)
	}
	ws.closeMu.Unlock()
	<-ws.done
	return nil
}

// FileShipper appends entries as JSON lines. When MaxSizeMB is set the live
// file is rotated to path.1 before a write would push it past the limit,
// keeping at most MaxBackups old files.
type FileShipper struct {
	path     string
	maxBytes int64
	backups  int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileShipper opens (or creates) the log file for appending.
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	fs := &FileShipper{
		path:     cfg.Path,
		maxBytes: int64(cfg.MaxSizeMB) << 20,
		backups:  cfg.MaxBackups,
	}
	if err := fs.open(); err != nil {
		return nil, fmt.Errorf("failed to open activity log file: %w", err)
	}
	return fs, nil
}

func (fs *FileShipper) open() error {
	file, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	fs.file, fs.size = file, info.Size()
	return nil
}

// Ship writes an entry as one line
func (fs *FileShipper) Ship(_ context.Context, entry *models.LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal activity log entry: %w", err)
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxBytes > 0 && fs.size > 0 && fs.size+int64(len(line)) > fs.maxBytes {
		if err := fs.rotate(); err != nil {
			slog.Error("failed to rotate activity log file", "path", fs.path, "error", err)
		}
	}

	n, err := fs.file.Write(line)
	fs.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write activity log entry: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and reopens.
// Without backups the live file is simply truncated.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	if fs.backups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.path, fs.backups))
		for i := fs.backups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", fs.path, i), fmt.Sprintf("%s.%d", fs.path, i+1))
		}
		if err := os.Rename(fs.path, fs.path+".1"); err != nil {
			return err
		}
	} else if err := os.Truncate(fs.path, 0); err != nil {
		return err
	}

	return fs.open()
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
