package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix marks a zstd-compressed trace file.
const CompressedSuffix = ".zst"

// Logger defines the interface for trace event logging.
type Logger interface {
	Log(event Event) error
	Close() error
}

// JSONLogger writes events as newline-delimited JSON (NDJSON). Paths ending
// in ".zst" are zstd-compressed.
type JSONLogger struct {
	mu   sync.Mutex
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
	path string
}

// NewJSONLogger creates a logger that writes NDJSON to the given path.
// Parent directories are created automatically.
func NewJSONLogger(path string) (*JSONLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}

	l := &JSONLogger{file: f, path: path}
	var w io.Writer = f
	if strings.HasSuffix(path, CompressedSuffix) {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		l.zw = zw
		w = zw
	}
	l.enc = json.NewEncoder(w)
	return l, nil
}

// Log writes a single event as one JSON line.
func (l *JSONLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(event)
}

// Close flushes and closes the underlying file.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.zw != nil {
		if err := l.zw.Close(); err != nil {
			l.file.Close() //nolint:errcheck
			return fmt.Errorf("flushing compressed trace: %w", err)
		}
	}
	return l.file.Close()
}

// Path returns the file path of the trace.
func (l *JSONLogger) Path() string {
	return l.path
}

// NopLogger discards all events. Useful as a default when tracing is disabled.
type NopLogger struct{}

// Log is a no-op.
func (NopLogger) Log(Event) error { return nil }

// Close is a no-op.
func (NopLogger) Close() error { return nil }

// DefaultLogPath returns a timestamped trace path for taskID inside dir.
func DefaultLogPath(dir, taskID string, compress bool) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s-%s-trace.jsonl", ts, sanitize(taskID))
	if compress {
		name += CompressedSuffix
	}
	return filepath.Join(dir, name)
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
