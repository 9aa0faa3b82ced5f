// Package engine is the run controller: it walks the work list in order,
// resuming after the checkpointed id, and for each item resolves the
// reference, enriches it, appends the record and advances the checkpoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SureOnThisShiningNight/openrank/internal/checkpoint"
	"github.com/SureOnThisShiningNight/openrank/internal/metrics"
	"github.com/SureOnThisShiningNight/openrank/internal/output"
	"github.com/SureOnThisShiningNight/openrank/internal/record"
	"github.com/SureOnThisShiningNight/openrank/internal/resolve"
	"github.com/SureOnThisShiningNight/openrank/internal/worklist"
)

// Enricher turns a resolved item into a record. It never fails: remote
// errors are reported on the record itself.
type Enricher interface {
	Enrich(ctx context.Context, item worklist.Item, target resolve.Target) record.Record
}

// Appender is the durable destination for records.
type Appender interface {
	Append(rec record.Record) error
}

type Engine struct {
	items       []worklist.Item
	checkpoints checkpoint.Store
	enricher    Enricher
	results     Appender

	out                output.Sink
	logger             *zap.Logger
	metrics            *metrics.Metrics
	recordUnresolvable bool
	now                func() time.Time
}

type Option func(*Engine)

// WithOutput sends progress events to s.
func WithOutput(s output.Sink) Option {
	return func(e *Engine) { e.out = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRecordUnresolvable makes unresolvable references produce an error
// record instead of being skipped silently.
func WithRecordUnresolvable(on bool) Option {
	return func(e *Engine) { e.recordUnresolvable = on }
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(items []worklist.Item, store checkpoint.Store, enricher Enricher, results Appender, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is nil")
	}
	if enricher == nil {
		return nil, errors.New("enricher is nil")
	}
	if results == nil {
		return nil, errors.New("result log is nil")
	}
	e := &Engine{
		items:       items,
		checkpoints: store,
		enricher:    enricher,
		results:     results,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// ResumeOffset returns the index of the first item to dispatch and the
// checkpoint id it was derived from.
func (e *Engine) ResumeOffset() (int, *int64) {
	return ResumePoint(e.items, e.checkpoints, e.logger)
}

// ResumePoint computes where a sweep over items picks up given the stored
// checkpoint: right after the first item carrying the checkpointed id. A
// checkpoint id missing from the work list restarts the sweep at 0.
func ResumePoint(items []worklist.Item, store checkpoint.Store, logger *zap.Logger) (int, *int64) {
	last, ok := store.Load()
	if !ok {
		return 0, nil
	}
	idx := worklist.IndexOf(items, last)
	if idx < 0 {
		if logger != nil {
			logger.Warn("checkpoint id not found in work list, restarting from the beginning",
				zap.Int64("checkpoint", last), zap.Int("items", len(items)))
		}
		return 0, nil
	}
	return idx + 1, &last
}

// Run performs one sweep. Cancelling ctx stops the sweep between items and
// returns a StateInterrupted summary with a nil error; the item in flight is
// always finished. A non-nil error means the sweep stopped on a fatal
// failure and the checkpoint still names the last fully recorded item.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	start := e.now()
	sum := Summary{State: StateIdle, Total: len(e.items)}

	sum.State = StateResuming
	sum.StartOffset, sum.ResumedFrom = e.ResumeOffset()
	if sum.ResumedFrom != nil {
		e.logger.Info("resuming sweep",
			zap.Int64("after_id", *sum.ResumedFrom),
			zap.Int("offset", sum.StartOffset),
			zap.Int("remaining", len(e.items)-sum.StartOffset))
	} else {
		e.logger.Info("starting sweep", zap.Int("items", len(e.items)))
	}
	e.emit(output.Event{Type: output.EventRunStarted, Total: len(e.items), Stats: stats(sum)})

	sum.State = StateRunning
	for i := sum.StartOffset; i < len(e.items); i++ {
		if ctx.Err() != nil {
			sum.State = StateInterrupted
			e.logger.Warn("sweep interrupted", zap.Int("next_offset", i), zap.Error(context.Cause(ctx)))
			return e.finish(start, sum, nil)
		}
		e.metrics.Remaining(len(e.items) - i)

		outcome, err := e.process(ctx, i, e.items[i])
		if err != nil {
			sum.State = StateFailed
			e.logger.Error("sweep aborted", zap.Int64("id", e.items[i].ID), zap.Error(err))
			return e.finish(start, sum, err)
		}
		sum.Processed++
		switch outcome {
		case metrics.OutcomeSuccess:
			sum.Succeeded++
		case metrics.OutcomeFailed:
			sum.Failed++
		case metrics.OutcomeSkipped:
			sum.Skipped++
		}
	}
	e.metrics.Remaining(0)

	if err := e.checkpoints.Clear(); err != nil {
		sum.State = StateFailed
		return e.finish(start, sum, &CheckpointError{Clearing: true, Err: err})
	}
	sum.State = StateCompleted
	e.logger.Info("sweep completed",
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped))
	return e.finish(start, sum, nil)
}

func (e *Engine) finish(start time.Time, sum Summary, err error) (Summary, error) {
	sum.Elapsed = e.now().Sub(start)
	e.emit(output.Event{Type: output.EventRunFinished, Total: sum.Total, Stats: stats(sum)})
	return sum, err
}

// process handles one item: resolve, enrich, append, then checkpoint. The
// remote calls run on a context detached from ctx so a signal never cuts an
// item short.
func (e *Engine) process(ctx context.Context, idx int, item worklist.Item) (string, error) {
	log := e.logger.With(zap.Int64("id", item.ID), zap.String("reference", item.Reference))
	e.emit(output.Event{Type: output.EventItemStarted, Index: idx + 1, Total: len(e.items), ID: item.ID, Reference: item.Reference})

	var rec record.Record
	target, err := resolve.Resolve(item.Reference)
	switch {
	case err != nil && !e.recordUnresolvable:
		log.Warn("skipping unresolvable reference", zap.Error(err))
		if err := e.advance(item); err != nil {
			return "", err
		}
		e.metrics.ItemProcessed(metrics.OutcomeSkipped)
		e.emit(output.Event{Type: output.EventItemSkipped, Index: idx + 1, Total: len(e.items), ID: item.ID, Reference: item.Reference, Reason: err.Error()})
		return metrics.OutcomeSkipped, nil
	case err != nil:
		rec = record.New(item.ID, item.Reference, "", "")
		rec.SetError(unresolvableMessage(item.Reference, err))
	default:
		rec = e.enricher.Enrich(context.WithoutCancel(ctx), item, target)
	}

	if err := e.results.Append(rec); err != nil {
		return "", &SinkError{ID: item.ID, Err: err}
	}
	if err := e.advance(item); err != nil {
		return "", err
	}

	outcome := metrics.OutcomeSuccess
	if rec.Failed() {
		outcome = metrics.OutcomeFailed
		log.Warn("item recorded with error", zap.String("error", rec.ErrorMessage()))
	} else {
		log.Debug("item recorded")
	}
	e.metrics.ItemProcessed(outcome)
	e.emit(output.Event{Type: output.EventItemFinished, Index: idx + 1, Total: len(e.items), ID: item.ID, Reference: item.Reference, Record: &rec})
	return outcome, nil
}

func (e *Engine) advance(item worklist.Item) error {
	if err := e.checkpoints.Save(item.ID); err != nil {
		return &CheckpointError{ID: item.ID, Err: err}
	}
	e.metrics.Checkpoint(item.ID)
	return nil
}

func unresolvableMessage(ref string, err error) string {
	class := "MalformedReference"
	if errors.Is(err, resolve.ErrUnsupportedReference) {
		class = "UnsupportedReferenceKind"
	}
	return fmt.Sprintf("%s: %s", class, ref)
}

func (e *Engine) emit(ev output.Event) {
	if e.out == nil {
		return
	}
	if err := e.out.Write(ev); err != nil {
		e.logger.Debug("progress output failed", zap.String("event", ev.Type), zap.Error(err))
	}
}

func stats(s Summary) *output.Stats {
	return &output.Stats{
		State:       s.State.String(),
		Total:       s.Total,
		StartOffset: s.StartOffset,
		ResumedFrom: s.ResumedFrom,
		Processed:   s.Processed,
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		Skipped:     s.Skipped,
		Seconds:     s.Elapsed.Seconds(),
	}
}
