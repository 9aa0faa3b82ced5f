package engine

import (
	"fmt"
	"time"
)

// State is the run controller's position in a sweep.
type State int

const (
	StateIdle State = iota
	StateResuming
	StateRunning
	StateCompleted
	StateInterrupted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResuming:
		return "resuming"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Summary is what a Run reports back.
type Summary struct {
	State State
	Total int
	// StartOffset is the index of the first item dispatched this run.
	StartOffset int
	// ResumedFrom is the checkpoint id the run resumed after, nil on a fresh
	// start or a restart.
	ResumedFrom *int64
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
	Elapsed     time.Duration
}

// SinkError means a record could not be appended to the result log. The
// checkpoint was not advanced past the item.
type SinkError struct {
	ID  int64
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("append record for item %d: %v", e.ID, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// CheckpointError means the checkpoint could not be saved or cleared.
type CheckpointError struct {
	ID int64
	// Clearing is set when removing the checkpoint after completion failed.
	Clearing bool
	Err      error
}

func (e *CheckpointError) Error() string {
	if e.Clearing {
		return fmt.Sprintf("clear checkpoint: %v", e.Err)
	}
	return fmt.Sprintf("save checkpoint %d: %v", e.ID, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// Exit codes.
const (
	ExitOK          = 0
	ExitFatal       = 3
	ExitInterrupted = 130
)

// ExitCode maps the outcome of a run to the process exit status. Per-item
// failures never change it; only fatal errors and interruption do.
//
//	0   = sweep completed
//	3   = fatal error (load, auth, config, result log or checkpoint I/O)
//	130 = interrupted between items
func ExitCode(state State, err error) int {
	switch {
	case err != nil:
		return ExitFatal
	case state == StateInterrupted:
		return ExitInterrupted
	case state == StateCompleted:
		return ExitOK
	default:
		return ExitFatal
	}
}
