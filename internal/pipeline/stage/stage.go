// Package stage implements AnalysisComponent: the lifecycle and queue
// plumbing shared by every stage in the pipeline. A Component[T] owns
// exactly one result stream, runs its work function on a single
// goroutine, and optionally mirrors each result to an intermediate-log
// writer as it is produced (spec.md §4.1, §4.3).
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kscanio/kscan/internal/pipeline/pipelineerrors"
	"github.com/kscanio/kscan/internal/pipeline/stream"
	"github.com/kscanio/kscan/internal/pipeline/writer"
)

// State is a stage's position in its Created->Started->Running->Finished
// lifecycle. Transitions are monotonic: a stage never moves backward.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Stage is the non-generic identity and lifecycle surface every stage
// exposes, independent of its element type. The assembler and join
// components operate against this interface so they can hold stages of
// different element types in the same slice.
type Stage interface {
	ID() string
	Name() string
	IsInternalHelper() bool
	Start(ctx context.Context)
	Done() <-chan struct{}
	State() State
}

// Source is a Stage that produces results of type T.
type Source[T any] interface {
	Stage
	// NextResult blocks until a result is available or the stage has
	// finished. Calling NextResult implicitly starts the stage if it has
	// not been started yet (spec.md §3).
	NextResult() (T, bool)
}

// WorkFunc is a stage's compute body. It calls add for each produced
// result, in production order, and returns an error if extraction
// cannot continue; a returned error ends the stream early.
type WorkFunc[T any] func(ctx context.Context, add func(T) error) error

// IntermediateSink configures the lazily-opened side writer a Component
// mirrors its results to as it runs (spec.md §4.3: "intermediate
// logging"). Dir and Factory are both required for logging to occur.
type IntermediateSink struct {
	Factory RecordWriterFactory
	Dir     string
}

// RecordWriterFactory is an alias for writer.Factory: the stage package
// depends on it only to open an intermediate-log sink, and aliasing
// (rather than redeclaring) the interface lets a writer.Factory value be
// passed into an IntermediateSink directly.
type RecordWriterFactory = writer.Factory

// RecordWriter is an alias for writer.RecordWriter.
type RecordWriter = writer.RecordWriter

// Component is the default Source[T] implementation: one result stream,
// one producer goroutine running work, and an optional intermediate-log
// mirror.
type Component[T any] struct {
	id     string
	name   string
	helper bool

	out  *stream.Stream[T]
	work WorkFunc[T]

	sink RecordWriter

	logger *slog.Logger

	state     atomic.Int32
	startOnce sync.Once
	startCtx  context.Context
	done      chan struct{}

	sinkCfg   *IntermediateSink
	sinkOnce  sync.Once
	sinkOpen  bool
	sinkMu    sync.Mutex
}

// New creates a Component. capacity <= 0 uses stream.DefaultCapacity.
// sink may be nil to disable intermediate logging for this stage.
func New[T any](id, name string, helper bool, capacity int, work WorkFunc[T], logger *slog.Logger, sink *IntermediateSink) *Component[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Component[T]{
		id:      id,
		name:    name,
		helper:  helper,
		out:     stream.New[T](capacity),
		work:    work,
		logger:  logger,
		done:    make(chan struct{}),
		sinkCfg: sink,
	}
}

func (c *Component[T]) ID() string              { return c.id }
func (c *Component[T]) Name() string            { return c.name }
func (c *Component[T]) IsInternalHelper() bool  { return c.helper }
func (c *Component[T]) State() State            { return State(c.state.Load()) }
func (c *Component[T]) Done() <-chan struct{}   { return c.done }

// Start launches the work goroutine exactly once. Subsequent calls are
// no-ops, even with a different context.
func (c *Component[T]) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		c.startCtx = ctx
		c.state.Store(int32(StateStarted))
		go c.run(ctx)
	})
}

// NextResult implicitly starts the stage with context.Background if it
// has not been started yet, then blocks for the next result.
func (c *Component[T]) NextResult() (T, bool) {
	c.Start(context.Background())
	return c.out.Recv()
}

func (c *Component[T]) run(ctx context.Context) {
	c.state.Store(int32(StateRunning))
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			c.logger.Error("stage panicked", slog.String("stage", c.name), slog.Any("error", pipelineerrors.NewStageError(c.id, c.name, err)))
		}
		c.out.Close()
		c.closeSink()
		c.state.Store(int32(StateFinished))
		close(c.done)
	}()

	if err := c.work(ctx, c.addResult); err != nil {
		c.logger.Error("stage failed", slog.String("stage", c.name), slog.Any("error", pipelineerrors.NewStageError(c.id, c.name, err)))
	}
}

func (c *Component[T]) addResult(v T) error {
	if err := c.out.Send(v); err != nil {
		return err
	}
	c.mirrorToSink(v)
	return nil
}

func (c *Component[T]) mirrorToSink(v T) {
	if c.sinkCfg == nil || c.sinkCfg.Factory == nil || c.sinkCfg.Dir == "" {
		return
	}
	c.sinkOnce.Do(func() {
		path := filepath.Join(c.sinkCfg.Dir, fmt.Sprintf("%s_intermediate_result_%s.%s", c.name, time.Now().Format("20060102150405.000000"), c.sinkCfg.Factory.Ext()))
		w, err := c.sinkCfg.Factory.NewWriter(c.name, path)
		if err != nil {
			c.logger.Error("failed to open intermediate log", slog.String("stage", c.name), slog.Any("error", err))
			return
		}
		c.sinkMu.Lock()
		c.sink = w
		c.sinkOpen = true
		c.sinkMu.Unlock()
	})
	c.sinkMu.Lock()
	w := c.sink
	c.sinkMu.Unlock()
	if w == nil {
		return
	}
	if err := w.WriteRecord(v); err != nil {
		c.logger.Warn("failed to write intermediate result", slog.String("stage", c.name), slog.Any("error", err))
	}
}

func (c *Component[T]) closeSink() {
	c.sinkMu.Lock()
	w := c.sink
	c.sinkMu.Unlock()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		c.logger.Warn("failed to close intermediate log", slog.String("stage", c.name), slog.Any("error", err))
	}
}
