package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/SureOnThisShiningNight/openrank/internal/record"
)

// ResultLog is the append-only JSON Lines file enrichment records go to.
// Existing content is never rewritten; a restart keeps appending.
type ResultLog struct {
	path string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenResultLog opens path for appending, creating it (and its directory)
// when missing. A torn final line left by a crash is terminated first so the
// next record starts on a line of its own.
func OpenResultLog(path string) (*ResultLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	if err := terminateTail(path, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &ResultLog{path: path, file: f}, nil
}

func terminateTail(path string, w io.Writer) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("inspect output file: %w", err)
	}
	defer func() { _ = r.Close() }()

	info, err := r.Stat()
	if err != nil {
		return fmt.Errorf("inspect output file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("inspect output file: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("terminate torn line: %w", err)
	}
	return nil
}

func (l *ResultLog) Path() string {
	return l.path
}

// Append writes rec as one line and syncs it to stable storage before
// returning. The line goes out in a single write call.
func (l *ResultLog) Append(rec record.Record) error {
	line, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("append to closed output file %s", l.path)
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append record %d: %w", rec.ID, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync output file: %w", err)
	}
	return nil
}

func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// EncodeRecord renders rec as a newline-terminated JSON line. Non-ASCII text
// is kept as UTF-8.
func EncodeRecord(rec record.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record %d: %w", rec.ID, err)
	}
	return buf.Bytes(), nil
}
