package output

import "github.com/SureOnThisShiningNight/openrank/internal/record"

// Event types, in the order a sweep emits them.
const (
	EventRunStarted   = "run.started"
	EventItemStarted  = "item.started"
	EventItemSkipped  = "item.skipped"
	EventItemFinished = "item.finished"
	EventRunFinished  = "run.finished"
)

// Event is a progress notification from the run controller. Console sinks
// render it; in ndjson console mode it is written verbatim, one per line.
type Event struct {
	Type string `json:"type"`
	// Index is the 1-based position of the item in the work list.
	Index     int            `json:"index,omitempty"`
	Total     int            `json:"total,omitempty"`
	ID        int64          `json:"id,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Record    *record.Record `json:"record,omitempty"`
	Stats     *Stats         `json:"stats,omitempty"`
}

// Stats describes a sweep, at start (resume point) or at the end (counts).
type Stats struct {
	State       string  `json:"state"`
	Total       int     `json:"total"`
	StartOffset int     `json:"start_offset"`
	ResumedFrom *int64  `json:"resumed_from,omitempty"`
	Processed   int     `json:"processed"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	Seconds     float64 `json:"seconds,omitempty"`
}
