package storage

import (
	"log/slog"
	"strings"
	"sync"
)

// WriterRegistry manages one JSONLWriter per stream name under a shared
// subdirectory, e.g. one tip log per media type.
type WriterRegistry struct {
	baseDir    string
	subDir     string
	maxSizeMB  int
	bufferSize int

	writers map[string]*JSONLWriter
	mu      sync.RWMutex
}

// NewWriterRegistry creates a new WriterRegistry for managing multiple JSONL writers.
func NewWriterRegistry(baseDir, subDir string, bufferSize int, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		baseDir:    baseDir,
		subDir:     subDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]*JSONLWriter),
	}
}

// GetWriter returns (or creates) the writer for stream. Names are reduced to
// a filesystem-safe segment first.
func (r *WriterRegistry) GetWriter(stream string) *JSONLWriter {
	name := SafeSegment(stream)

	r.mu.RLock()
	if writer, ok := r.writers[name]; ok {
		r.mu.RUnlock()
		return writer
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if writer, ok := r.writers[name]; ok {
		return writer
	}

	writer := NewJSONLWriter(r.baseDir, r.subDir, name, r.bufferSize, r.maxSizeMB)
	r.writers[name] = writer
	slog.Info("Created new JSONL writer", "subdir", r.subDir, "stream", name)
	return writer
}

// Close closes all managed writers.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for name, writer := range r.writers {
		if err := writer.Close(); err != nil {
			slog.Error("Failed to close writer", "stream", name, "error", err)
			lastErr = err
		}
	}
	r.writers = make(map[string]*JSONLWriter)
	return lastErr
}

// SafeSegment lowercases s and replaces anything outside [a-z0-9_-] with
// '_'. An empty result becomes "default".
func SafeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
