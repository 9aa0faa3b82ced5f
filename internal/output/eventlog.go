package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EventLog is a Sink appending every progress event to a file, one JSON
// object per line. Successive runs append to the same file, so it doubles as
// a history of sweeps.
type EventLog struct {
	path string
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func OpenEventLog(path string) (*EventLog, error) {
	if path == "" {
		return nil, fmt.Errorf("events file path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create events directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &EventLog{path: path, file: f, enc: enc}, nil
}

func (l *EventLog) Write(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("events file %s is closed", l.path)
	}
	return l.enc.Encode(e)
}

// Close is idempotent.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
