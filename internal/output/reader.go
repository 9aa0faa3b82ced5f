package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/SureOnThisShiningNight/openrank/internal/record"
)

// ReadRecords parses a result log. Lines that are not valid records (for
// example a line torn by a crash) are counted in corrupt and skipped.
func ReadRecords(r io.Reader) (records []record.Record, corrupt int, err error) {
	br := bufio.NewReader(r)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var rec record.Record
			if err := json.Unmarshal(line, &rec); err != nil || rec.ID == 0 && rec.Reference == "" {
				corrupt++
			} else {
				records = append(records, rec)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return records, corrupt, nil
		}
		if readErr != nil {
			return records, corrupt, fmt.Errorf("read result log: %w", readErr)
		}
	}
}

// ReadRecordsFile is ReadRecords on the file at path. A missing file reads as
// empty.
func ReadRecordsFile(path string) ([]record.Record, int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open result log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadRecords(f)
}

// Dedupe keeps one record per id: the last one written, placed where the id
// first appeared.
func Dedupe(records []record.Record) []record.Record {
	pos := make(map[int64]int, len(records))
	out := make([]record.Record, 0, len(records))
	for _, rec := range records {
		if i, ok := pos[rec.ID]; ok {
			out[i] = rec
			continue
		}
		pos[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}

// WriteRecords writes records as JSON Lines.
func WriteRecords(w io.Writer, records []record.Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		line, err := EncodeRecord(rec)
		if err != nil {
			return err
		}
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("write record %d: %w", rec.ID, err)
		}
	}
	return bw.Flush()
}

// LogStats summarizes a result log.
type LogStats struct {
	Lines      int
	Corrupt    int
	Distinct   int
	Duplicates int
	Succeeded  int
	Failed     int
	// Errors counts failed records per error class, e.g. "RemoteAPIError".
	Errors map[string]int
}

// Summarize computes LogStats over records as read from the log. Success and
// failure counts use the deduplicated view.
func Summarize(records []record.Record, corrupt int) LogStats {
	st := LogStats{Lines: len(records) + corrupt, Corrupt: corrupt, Errors: map[string]int{}}
	unique := Dedupe(records)
	st.Distinct = len(unique)
	st.Duplicates = len(records) - len(unique)
	for _, rec := range unique {
		if !rec.Failed() {
			st.Succeeded++
			continue
		}
		st.Failed++
		st.Errors[errorClass(rec.ErrorMessage())]++
	}
	return st
}

func errorClass(msg string) string {
	if i := strings.IndexByte(msg, ':'); i > 0 {
		return msg[:i]
	}
	return msg
}
