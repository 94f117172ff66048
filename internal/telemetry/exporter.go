package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MetricsExporter defines the interface for exporting metrics.
type MetricsExporter interface {
	// Export writes a metrics snapshot.
	Export(snapshot MetricsSnapshot) error
	// Close releases resources.
	Close() error
}

// MetricsSnapshot is a point-in-time metrics record.
type MetricsSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"` // memory.swept, etc.
	Metrics   map[string]interface{} `json:"metrics"`
	Labels    map[string]string      `json:"labels,omitempty"`
}

// JSONFileExporter appends snapshots to a JSONL file. With a size limit the
// file is rotated to <path>.1 before a write would exceed it, so a long
// running sweeper keeps at most two files.
type JSONFileExporter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxBytes int64
}

// ExporterOption configures a JSONFileExporter.
type ExporterOption func(*JSONFileExporter)

// WithMaxBytes rotates the file once it would grow past n bytes. Zero
// disables rotation.
func WithMaxBytes(n int64) ExporterOption {
	return func(e *JSONFileExporter) { e.maxBytes = n }
}

// NewJSONFileExporter creates or appends to the given path.
func NewJSONFileExporter(path string, opts ...ExporterOption) (*JSONFileExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	e := &JSONFileExporter{path: path}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.open(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *JSONFileExporter) open() error {
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open metrics file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat metrics file: %w", err)
	}
	e.file = f
	e.size = info.Size()
	return nil
}

// rotate moves the current file to <path>.1, replacing any older rotation.
func (e *JSONFileExporter) rotate() error {
	if err := e.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(e.path, e.path+".1"); err != nil {
		return fmt.Errorf("failed to rotate metrics file: %w", err)
	}
	return e.open()
}

// Export writes a single snapshot as a JSON line.
func (e *JSONFileExporter) Export(snapshot MetricsSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.maxBytes > 0 && e.size > 0 && e.size+int64(len(data)) > e.maxBytes {
		if err := e.rotate(); err != nil {
			return err
		}
	}
	n, err := e.file.Write(data)
	e.size += int64(n)
	return err
}

// Close closes the underlying file.
func (e *JSONFileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}
