// Package provider implements AbstractProvider: the extractor
// supervisor that turns a list of targets into a result stream by
// running an Extractor over each one, with a bounded worker pool, a
// per-target timeout, an independent exception stream, and optional
// cache mediation (spec.md §4.4).
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kscanio/kscan/internal/pipeline/cache"
	"github.com/kscanio/kscan/internal/pipeline/pipelineerrors"
	"github.com/kscanio/kscan/internal/pipeline/stage"
	"github.com/kscanio/kscan/internal/pipeline/stream"
)

// errCacheEntryCorrupted is the Err a FormatError wraps when a cache
// Read reports StatusCorrupted (checksum mismatch, not a decode
// failure).
var errCacheEntryCorrupted = errors.New("cache entry failed its integrity check")

// Extractor produces a T for a single target. Extractors must respect
// ctx cancellation so a provider-enforced timeout can actually abort
// slow work.
type Extractor[T any] interface {
	Extract(ctx context.Context, target string) (T, error)
}

// Marshaler is implemented by result types the provider can serialize
// for the cache. Types that do not implement it are never cached, even
// if ReadCache/WriteCache are set.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler reconstructs a T from cached bytes.
type Unmarshaler[T any] func(data []byte) (T, error)

// Status is a provider's coarse-grained run status, independent of the
// underlying stage lifecycle: a provider can be Idle before anyone asks
// for a result, Running while workers are extracting, and finally
// either Completed (no target failed) or Failed (at least one target's
// extractor errored).
type Status int32

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Config controls a Provider's extraction policy.
type Config struct {
	// Targets is the list of identifiers passed to Extract, one call
	// per target.
	Targets []string
	// Timeout bounds a single target's extraction. Zero means no
	// per-target timeout.
	Timeout time.Duration
	// Concurrency bounds how many targets are extracted at once. A
	// value <= 1 makes extraction strictly sequential, which also
	// guarantees results are produced in target order; with a higher
	// concurrency, results arrive in completion order.
	Concurrency int
	// ReadCache, when true and a Cache is supplied, checks the cache
	// before calling the extractor.
	ReadCache bool
	// WriteCache, when true and a Cache is supplied, writes a
	// successful extraction's result back to the cache.
	WriteCache bool
	// Capacity is the result stream's back-pressure capacity; <= 0
	// uses stream.DefaultCapacity.
	Capacity int
}

// Provider is a Source[T] that extracts its results from Config.Targets
// via an Extractor, instead of computing them inline like a plain
// Component.
type Provider[T any] struct {
	id   string
	name string

	extractor Extractor[T]
	cfg       Config
	cache     cache.Cache
	unmarshal Unmarshaler[T]
	logger    *slog.Logger

	out        *stream.Stream[T]
	exceptions *stream.Stream[*pipelineerrors.ExtractorError]

	status    atomic.Int32
	state     atomic.Int32
	startOnce sync.Once
	done      chan struct{}
}

// New creates a Provider. cache and unmarshal may both be nil to
// disable cache mediation entirely; unmarshal is required for
// ReadCache to have any effect, since a hit must be decoded back into
// a T.
func New[T any](id, name string, extractor Extractor[T], cfg Config, c cache.Cache, unmarshal Unmarshaler[T], logger *slog.Logger) *Provider[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Provider[T]{
		id:         id,
		name:       name,
		extractor:  extractor,
		cfg:        cfg,
		cache:      c,
		unmarshal:  unmarshal,
		logger:     logger,
		out:        stream.New[T](cfg.Capacity),
		exceptions: stream.New[*pipelineerrors.ExtractorError](cfg.Capacity),
		done:       make(chan struct{}),
	}
}

func (p *Provider[T]) ID() string             { return p.id }
func (p *Provider[T]) Name() string           { return p.name }
func (p *Provider[T]) IsInternalHelper() bool { return false }
func (p *Provider[T]) Done() <-chan struct{}  { return p.done }
func (p *Provider[T]) State() stage.State     { return stage.State(p.state.Load()) }
func (p *Provider[T]) Status() Status         { return Status(p.status.Load()) }

// Exceptions returns the parallel stream of per-target extraction
// failures. It is independent of the result stream: a failed target
// simply never appears in NextResult's output.
func (p *Provider[T]) Exceptions() *stream.Stream[*pipelineerrors.ExtractorError] {
	return p.exceptions
}

// Start launches the worker pool exactly once.
func (p *Provider[T]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		p.state.Store(int32(stage.StateStarted))
		p.status.Store(int32(StatusRunning))
		go p.run(ctx)
	})
}

// NextResult implicitly starts the provider, then blocks for the next
// successfully extracted result.
func (p *Provider[T]) NextResult() (T, bool) {
	p.Start(context.Background())
	return p.out.Recv()
}

func (p *Provider[T]) run(ctx context.Context) {
	p.state.Store(int32(stage.StateRunning))

	var failed atomic.Bool
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, target := range p.cfg.Targets {
		sem <- struct{}{}
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.extractOne(ctx, target); err != nil {
				failed.Store(true)
			}
		}(target)
	}
	wg.Wait()

	p.out.Close()
	p.exceptions.Close()
	p.state.Store(int32(stage.StateFinished))
	if failed.Load() {
		p.status.Store(int32(StatusFailed))
	} else {
		p.status.Store(int32(StatusCompleted))
	}
	close(p.done)
}

func (p *Provider[T]) extractOne(ctx context.Context, target string) error {
	key := p.cacheKey(target)

	if p.cfg.ReadCache && p.cache != nil && p.unmarshal != nil {
		data, status, err := p.cache.Read(ctx, key)
		if err != nil {
			p.logger.Warn("cache read failed", slog.String("provider", p.name), slog.String("target", target), slog.Any("error", err))
		} else if status == cache.StatusCorrupted {
			fErr := pipelineerrors.NewFormatError(key, errCacheEntryCorrupted)
			p.logger.Warn("cache entry corrupted, re-extracting", slog.String("provider", p.name), slog.String("target", target), slog.Any("error", fErr))
		} else if status == cache.StatusHit {
			v, decErr := p.unmarshal(data)
			if decErr != nil {
				fErr := pipelineerrors.NewFormatError(key, decErr)
				p.logger.Warn("cached entry failed to decode, re-extracting", slog.String("provider", p.name), slog.String("target", target), slog.Any("error", fErr))
			} else {
				if sendErr := p.out.Send(v); sendErr != nil {
					return sendErr
				}
				return nil
			}
		}
	}

	extractCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.Timeout > 0 {
		extractCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	v, err := p.extractor.Extract(extractCtx, target)
	if err != nil {
		extErr := pipelineerrors.NewExtractorError(target, err)
		if sendErr := p.exceptions.Send(extErr); sendErr != nil {
			p.logger.Error("failed to record extraction error", slog.Any("error", sendErr))
		}
		return extErr
	}

	if p.cfg.WriteCache && p.cache != nil {
		if m, ok := any(v).(Marshaler); ok {
			data, merr := m.Marshal()
			if merr != nil {
				p.logger.Warn("cache marshal failed", slog.String("provider", p.name), slog.String("target", target), slog.Any("error", merr))
			} else if werr := p.cache.Write(ctx, key, data); werr != nil {
				p.logger.Warn("cache write failed", slog.String("provider", p.name), slog.String("target", target), slog.Any("error", werr))
			}
		}
	}

	return p.out.Send(v)
}

func (p *Provider[T]) cacheKey(target string) string {
	return fmt.Sprintf("%s:%s", p.name, target)
}

// UnmarshalJSONInto builds an Unmarshaler[T] from encoding/json, for
// result types that don't define their own Marshal/Unmarshal pair.
func UnmarshalJSONInto[T any]() Unmarshaler[T] {
	return func(data []byte) (T, error) {
		var v T
		err := json.Unmarshal(data, &v)
		return v, err
	}
}
