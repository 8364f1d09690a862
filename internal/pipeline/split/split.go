// Package split implements the fan-out and barrier helper stages used
// to build a DAG out of stages that otherwise only know how to chain
// linearly: SplitComponent broadcasts one upstream source to several
// independent branch consumers so a shared source is extracted exactly
// once (spec.md §4.2, §8 "Shared source" scenario); JoinComponent is
// the converse barrier, reaching end-of-stream only once every input
// stage has.
//
// Both are internal-helper stages: they exist to wire the DAG together
// and carry no extractor logic of their own.
package split

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kscanio/kscan/internal/pipeline/stage"
	"github.com/kscanio/kscan/internal/pipeline/stream"
)

// ErrAlreadyStarted is returned by CreateOutputComponent once the split
// has begun pumping; every branch must be created before the first
// Start or NextResult call anywhere in the graph.
var ErrAlreadyStarted = errors.New("split: cannot add a branch after the split has started")

// SplitComponent broadcasts every result from a single upstream
// Source[T] to N output branches, each with its own buffer. A branch
// whose buffer is full blocks the broadcast loop, which holds back
// delivery to every branch until that branch's consumer catches up.
type SplitComponent[T any] struct {
	id    string
	name  string
	input stage.Source[T]

	mu       sync.Mutex
	started  bool
	branches []*stream.Stream[T]

	startOnce sync.Once
	done      chan struct{}
	state     atomic.Int32
	logger    *slog.Logger
}

// New creates a SplitComponent reading from input. Call
// CreateOutputComponent for each branch before the split (or any
// branch) is started.
func New[T any](id, name string, input stage.Source[T], logger *slog.Logger) *SplitComponent[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &SplitComponent[T]{
		id:     id,
		name:   name,
		input:  input,
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (s *SplitComponent[T]) ID() string             { return s.id }
func (s *SplitComponent[T]) Name() string            { return s.name }
func (s *SplitComponent[T]) IsInternalHelper() bool  { return true }
func (s *SplitComponent[T]) Done() <-chan struct{}   { return s.done }
func (s *SplitComponent[T]) State() stage.State      { return stage.State(s.state.Load()) }

// CreateOutputComponent registers a new branch and returns it as a
// Source[T]. Must be called before the split is started.
func (s *SplitComponent[T]) CreateOutputComponent(capacity int) (stage.Source[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrAlreadyStarted
	}
	out := stream.New[T](capacity)
	s.branches = append(s.branches, out)
	return &branch[T]{
		id:     s.id,
		name:   s.name,
		out:    out,
		parent: s,
	}, nil
}

// Start launches the broadcast pump exactly once.
func (s *SplitComponent[T]) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		s.mu.Lock()
		s.started = true
		branches := s.branches
		s.mu.Unlock()

		s.state.Store(int32(stage.StateStarted))
		go s.pump(ctx, branches)
	})
}

func (s *SplitComponent[T]) pump(ctx context.Context, branches []*stream.Stream[T]) {
	s.state.Store(int32(stage.StateRunning))
	defer func() {
		for _, b := range branches {
			b.Close()
		}
		s.state.Store(int32(stage.StateFinished))
		close(s.done)
	}()

	s.input.Start(ctx)
	for {
		v, ok := s.input.NextResult()
		if !ok {
			return
		}
		for _, b := range branches {
			if err := b.Send(v); err != nil {
				s.logger.Warn("split: send to branch after close", slog.String("split", s.name), slog.Any("error", err))
			}
		}
	}
}

// branch is one output of a SplitComponent. Its lifecycle mirrors the
// parent split's: it starts the whole split and finishes exactly when
// the split's broadcast pump finishes.
type branch[T any] struct {
	id     string
	name   string
	out    *stream.Stream[T]
	parent *SplitComponent[T]
}

func (b *branch[T]) ID() string             { return b.id }
func (b *branch[T]) Name() string           { return b.name }
func (b *branch[T]) IsInternalHelper() bool { return true }
func (b *branch[T]) Done() <-chan struct{}  { return b.parent.Done() }
func (b *branch[T]) State() stage.State     { return b.parent.State() }

func (b *branch[T]) Start(ctx context.Context) {
	b.parent.Start(ctx)
}

func (b *branch[T]) NextResult() (T, bool) {
	b.parent.Start(context.Background())
	return b.out.Recv()
}

// JoinComponent is a barrier: it reaches end-of-stream only once every
// input stage has finished, producing no results of its own.
type JoinComponent struct {
	id     string
	name   string
	inputs []stage.Stage

	startOnce sync.Once
	done      chan struct{}
	state     atomic.Int32
}

// NewJoin creates a JoinComponent waiting on inputs.
func NewJoin(id, name string, inputs []stage.Stage) *JoinComponent {
	return &JoinComponent{id: id, name: name, inputs: inputs, done: make(chan struct{})}
}

func (j *JoinComponent) ID() string             { return j.id }
func (j *JoinComponent) Name() string           { return j.name }
func (j *JoinComponent) IsInternalHelper() bool { return true }
func (j *JoinComponent) Done() <-chan struct{}  { return j.done }
func (j *JoinComponent) State() stage.State     { return stage.State(j.state.Load()) }

// Start starts every input stage (if not already started) and begins
// waiting for all of them to finish.
func (j *JoinComponent) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		j.state.Store(int32(stage.StateStarted))
		go func() {
			j.state.Store(int32(stage.StateRunning))
			var wg sync.WaitGroup
			for _, in := range j.inputs {
				wg.Add(1)
				go func(s stage.Stage) {
					defer wg.Done()
					s.Start(ctx)
					<-s.Done()
				}(in)
			}
			wg.Wait()
			j.state.Store(int32(stage.StateFinished))
			close(j.done)
		}()
	})
}

// NextResult blocks until every input has finished, then reports
// end-of-stream; a join never produces a value.
func (j *JoinComponent) NextResult() (struct{}, bool) {
	j.Start(context.Background())
	<-j.done
	return struct{}{}, false
}
