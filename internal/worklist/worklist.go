// Package worklist loads the ordered input dataset for an enrichment sweep.
//
// The input is JSON Lines. Each line must carry an integer "总序号" (the
// item id) and a string "github链接" (the repository reference); any other
// fields are ignored. Order of lines is the order of processing.
package worklist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Item is one unit of work.
type Item struct {
	ID        int64
	Reference string
}

type line struct {
	ID        *int64  `json:"总序号"`
	Reference *string `json:"github链接"`
}

// LoadError reports that the dataset as a whole could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load work items: %v", e.Err)
	}
	return fmt.Sprintf("load work items from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads the dataset at path.
func Load(path string, logger *zap.Logger) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	items, err := Read(f, logger)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return items, nil
}

// Read parses a dataset from r. Lines that are not valid items are skipped
// with a warning; only I/O failures abort.
func Read(r io.Reader, logger *zap.Logger) ([]Item, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var items []Item
	seen := make(map[int64]int)
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			lineNo++
			if item, ok := parseLine(raw, lineNo, logger); ok {
				if first, dup := seen[item.ID]; dup {
					logger.Warn("duplicate item id; resume will match the first occurrence",
						zap.Int64("id", item.ID), zap.Int("line", lineNo), zap.Int("first_line", first))
				} else {
					seen[item.ID] = lineNo
				}
				items = append(items, item)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{Err: err}
		}
	}
	return items, nil
}

func parseLine(raw []byte, lineNo int, logger *zap.Logger) (Item, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Item{}, false
	}

	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		logger.Warn("skipping unparsable line", zap.Int("line", lineNo), zap.Error(err))
		return Item{}, false
	}
	if l.ID == nil || l.Reference == nil {
		logger.Warn("skipping line without id or reference", zap.Int("line", lineNo))
		return Item{}, false
	}
	return Item{ID: *l.ID, Reference: *l.Reference}, true
}

// IndexOf returns the position of the first item with the given id, or -1.
func IndexOf(items []Item, id int64) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
