package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Console formats.
const (
	FormatText   = "text"
	FormatNDJSON = "ndjson"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	skipColor = color.New(color.FgYellow)
	headColor = color.New(color.Bold)
)

// ConsoleSink renders progress events for a human (text) or a pipeline
// (ndjson).
type ConsoleSink struct {
	writer io.Writer
	format string
	quiet  bool
	mu     sync.Mutex
}

// NewConsoleSink returns a sink writing to w, stdout when nil. In quiet mode
// per-item lines are suppressed and only the run banners are printed.
func NewConsoleSink(w io.Writer, format string, quiet bool) (*ConsoleSink, error) {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatNDJSON {
		return nil, fmt.Errorf("unsupported console format: %s", format)
	}
	return &ConsoleSink{writer: w, format: format, quiet: quiet}, nil
}

func (s *ConsoleSink) Write(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quiet && e.Type != EventRunStarted && e.Type != EventRunFinished {
		return nil
	}
	if s.format == FormatNDJSON {
		enc := json.NewEncoder(s.writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(e)
	}
	return s.writeText(e)
}

func (s *ConsoleSink) writeText(e Event) error {
	var err error
	switch e.Type {
	case EventRunStarted:
		err = s.runStarted(e.Stats)
	case EventItemStarted:
		_, err = fmt.Fprintf(s.writer, "[%d/%d] #%d %s\n", e.Index, e.Total, e.ID, e.Reference)
	case EventItemSkipped:
		_, err = skipColor.Fprintf(s.writer, "  skipped: %s\n", e.Reason)
	case EventItemFinished:
		err = s.itemFinished(e)
	case EventRunFinished:
		err = s.runFinished(e.Stats)
	}
	return err
}

func (s *ConsoleSink) runStarted(st *Stats) error {
	if st == nil {
		return nil
	}
	if st.ResumedFrom != nil {
		_, err := headColor.Fprintf(s.writer, "Resuming after #%d: %s of %s items left\n",
			*st.ResumedFrom, humanize.Comma(int64(st.Total-st.StartOffset)), humanize.Comma(int64(st.Total)))
		return err
	}
	_, err := headColor.Fprintf(s.writer, "Starting sweep over %s items\n", humanize.Comma(int64(st.Total)))
	return err
}

func (s *ConsoleSink) itemFinished(e Event) error {
	rec := e.Record
	if rec == nil {
		return nil
	}
	if rec.Failed() {
		_, err := failColor.Fprintf(s.writer, "  %s\n", rec.ErrorMessage())
		return err
	}
	var parts []string
	if rec.Stargazers != nil {
		parts = append(parts, "stars "+humanize.Comma(int64(*rec.Stargazers)))
	}
	parts = append(parts, "contributors "+humanize.Comma(int64(len(rec.Contributors))))
	if rec.TotalCommits != nil {
		parts = append(parts, "commits "+humanize.Comma(int64(*rec.TotalCommits)))
	}
	if rec.PushedAt != nil {
		parts = append(parts, "pushed "+humanize.Time(*rec.PushedAt))
	}
	_, err := okColor.Fprintf(s.writer, "  ok %s\n", strings.Join(parts, ", "))
	return err
}

func (s *ConsoleSink) runFinished(st *Stats) error {
	if st == nil {
		return nil
	}
	elapsed := time.Duration(st.Seconds * float64(time.Second)).Round(time.Second)
	_, err := headColor.Fprintf(s.writer, "Sweep %s: %s processed (%s ok, %s failed, %s skipped) in %s\n",
		st.State,
		humanize.Comma(int64(st.Processed)),
		humanize.Comma(int64(st.Succeeded)),
		humanize.Comma(int64(st.Failed)),
		humanize.Comma(int64(st.Skipped)),
		elapsed)
	return err
}

func (s *ConsoleSink) Close() error {
	return nil
}
