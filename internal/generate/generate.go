// Package generate drives one generation request from prompt to finished text.
package generate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/trendbrief/internal/llm"
	"github.com/ppiankov/trendbrief/internal/model"
)

// Sink receives chunks as they arrive. It is called synchronously; returning an
// error means the consumer is gone and generation is cancelled.
type Sink func(chunk model.StreamChunk) error

// Result is the terminal outcome of a run
type Result struct {
	State  model.GenerationState
	Text   string // Complete text; empty unless State is COMPLETE
	Chunks int
	Err    error
}

// Report converts the result into the report section
func (r Result) Report(backend, modelRef string, d time.Duration) model.GenerationReport {
	rep := model.GenerationReport{
		State:      r.State,
		Backend:    backend,
		Model:      modelRef,
		Chunks:     r.Chunks,
		DurationMS: d.Milliseconds(),
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	return rep
}

// Orchestrator runs a single generation and tracks its state.
// An Orchestrator is used once.
type Orchestrator struct {
	backend llm.Backend
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	state model.GenerationState
	trace []model.GenerationState
}

// New creates an orchestrator. backend may be nil when only short-circuit runs are expected.
func New(backend llm.Backend, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		timeout: timeout,
		logger:  logger.With("component", "generate"),
		state:   model.StateIdle,
		trace:   []model.GenerationState{model.StateIdle},
	}
}

// State returns the current state
func (o *Orchestrator) State() model.GenerationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Trace returns every state visited, in order
func (o *Orchestrator) Trace() []model.GenerationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.GenerationState(nil), o.trace...)
}

// BackendName returns the backend name or "" when none is configured
func (o *Orchestrator) BackendName() string {
	if o.backend == nil {
		return ""
	}
	return o.backend.Name()
}

func (o *Orchestrator) transition(s model.GenerationState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Terminal() {
		return
	}
	o.state = s
	o.trace = append(o.trace, s)
}

// ShortCircuit completes without calling the backend, emitting sentinel as the only chunk
func (o *Orchestrator) ShortCircuit(sentinel string, sink Sink) Result {
	o.transition(model.StateShortCircuit)
	if sink != nil {
		if err := sink(model.StreamChunk{Index: 0, Text: sentinel, Done: true}); err != nil {
			o.transition(model.StateCancelled)
			return Result{State: model.StateCancelled, Err: err}
		}
	}
	o.transition(model.StateComplete)
	return Result{State: model.StateComplete, Text: sentinel, Chunks: 1}
}

// Run generates text for req. Chunks go to sink when it is non-nil; the full text is
// returned once the run is COMPLETE. Partial text is discarded on any other outcome.
func (o *Orchestrator) Run(ctx context.Context, req model.GenerationRequest, sink Sink) Result {
	if o.backend == nil {
		o.transition(model.StateFailed)
		err := &model.GenerationError{Backend: "none", Err: errors.New("no generation backend configured")}
		return Result{State: model.StateFailed, Err: err}
	}

	o.transition(model.StateGenerating)
	o.logger.Debug("generation started", "backend", o.backend.Name(), "request", req)

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	stream, err := o.backend.Stream(runCtx, req)
	if err != nil {
		return o.fail(ctx, runCtx, err, 0)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			o.logger.Debug("closing stream", "error", cerr)
		}
	}()

	var text strings.Builder
	index := 0
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return o.fail(ctx, runCtx, err, index)
		}
		if index == 0 {
			o.transition(model.StateStreaming)
		}
		if sink != nil {
			if serr := sink(model.StreamChunk{Index: index, Text: fragment}); serr != nil {
				o.transition(model.StateCancelled)
				o.logger.Info("generation cancelled", "reason", "sink closed", "chunks", index)
				return Result{State: model.StateCancelled, Chunks: index, Err: serr}
			}
		}
		text.WriteString(fragment)
		index++

		// Stop promptly even if the backend keeps producing after cancellation
		if runCtx.Err() != nil {
			return o.fail(ctx, runCtx, runCtx.Err(), index)
		}
	}

	if sink != nil {
		if err := sink(model.StreamChunk{Index: index, Done: true}); err != nil {
			o.transition(model.StateCancelled)
			return Result{State: model.StateCancelled, Chunks: index, Err: err}
		}
	}

	o.transition(model.StateComplete)
	o.logger.Debug("generation complete", "chunks", index, "chars", text.Len())
	return Result{State: model.StateComplete, Text: text.String(), Chunks: index}
}

// fail classifies err as caller cancellation, timeout or backend failure
func (o *Orchestrator) fail(callerCtx, runCtx context.Context, err error, chunks int) Result {
	backend := o.backend.Name()
	switch {
	case callerCtx.Err() != nil && errors.Is(callerCtx.Err(), context.Canceled):
		o.transition(model.StateCancelled)
		o.logger.Info("generation cancelled", "reason", "caller", "chunks", chunks)
		return Result{State: model.StateCancelled, Chunks: chunks, Err: callerCtx.Err()}

	case runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		o.transition(model.StateFailed)
		gerr := &model.GenerationError{Backend: backend, Timeout: true, Err: context.DeadlineExceeded}
		o.logger.Warn("generation timed out", "backend", backend, "chunks", chunks)
		return Result{State: model.StateFailed, Chunks: chunks, Err: gerr}

	default:
		o.transition(model.StateFailed)
		gerr := &model.GenerationError{Backend: backend, Err: err}
		o.logger.Warn("generation failed", "backend", backend, "chunks", chunks, "error", err)
		return Result{State: model.StateFailed, Chunks: chunks, Err: gerr}
	}
}
