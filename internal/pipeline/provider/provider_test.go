package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kscanio/kscan/internal/pipeline/cache"
)

type funcExtractor[T any] struct {
	fn func(ctx context.Context, target string) (T, error)
}

func (f funcExtractor[T]) Extract(ctx context.Context, target string) (T, error) {
	return f.fn(ctx, target)
}

func drainAll[T any](p *Provider[T]) []T {
	var out []T
	for {
		v, ok := p.NextResult()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestProviderSequentialOrderWhenConcurrencyOne(t *testing.T) {
	ex := funcExtractor[string]{fn: func(ctx context.Context, target string) (string, error) {
		return "result-" + target, nil
	}}
	p := New[string]("p1", "seq", ex, Config{
		Targets:     []string{"a", "b", "c"},
		Concurrency: 1,
	}, nil, nil, nil)

	got := drainAll(p)
	assert.Equal(t, []string{"result-a", "result-b", "result-c"}, got)
	assert.Equal(t, StatusCompleted, p.Status())
}

func TestProviderTimeoutProducesExceptionNotResult(t *testing.T) {
	ex := funcExtractor[string]{fn: func(ctx context.Context, target string) (string, error) {
		if target == "slow" {
			select {
			case <-time.After(200 * time.Millisecond):
				return "too-late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "fast-" + target, nil
	}}

	p := New[string]("p1", "timeout", ex, Config{
		Targets:     []string{"fast1", "slow", "fast2"},
		Concurrency: 3,
		Timeout:     20 * time.Millisecond,
	}, nil, nil, nil)

	got := drainAll(p)
	sort.Strings(got)
	assert.Equal(t, []string{"fast-fast1", "fast-fast2"}, got, "the slow target must not appear among results")

	var exceptions []string
	for {
		e, ok := p.Exceptions().Recv()
		if !ok {
			break
		}
		exceptions = append(exceptions, e.Target)
	}
	assert.Equal(t, []string{"slow"}, exceptions)
	assert.Equal(t, StatusFailed, p.Status())
}

type cacheStub struct {
	mu      sync.Mutex
	entries map[string][]byte
	reads   int
}

func newCacheStub() *cacheStub { return &cacheStub{entries: map[string][]byte{}} }

func (c *cacheStub) Read(_ context.Context, key string) ([]byte, cache.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	v, ok := c.entries[key]
	if !ok {
		return nil, cache.StatusMiss, nil
	}
	return v, cache.StatusHit, nil
}

func (c *cacheStub) Write(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

type stringResult string

func (s stringResult) Marshal() ([]byte, error) { return []byte(s), nil }

func TestProviderReadsCacheBeforeExtracting(t *testing.T) {
	var extractCalls int
	ex := funcExtractor[stringResult]{fn: func(ctx context.Context, target string) (stringResult, error) {
		extractCalls++
		return stringResult("fresh-" + target), nil
	}}

	c := newCacheStub()
	unmarshal := func(data []byte) (stringResult, error) { return stringResult(data), nil }

	cfg := Config{Targets: []string{"x"}, ReadCache: true, WriteCache: true}
	p1 := New[stringResult]("p1", "cached", ex, cfg, c, unmarshal, nil)
	got := drainAll(p1)
	require.Len(t, got, 1)
	assert.Equal(t, stringResult("fresh-x"), got[0])
	assert.Equal(t, 1, extractCalls, "first run is a cache miss, so the extractor must run")

	p2 := New[stringResult]("p2", "cached", ex, cfg, c, unmarshal, nil)
	got2 := drainAll(p2)
	require.Len(t, got2, 1)
	assert.Equal(t, stringResult("fresh-x"), got2[0])
	assert.Equal(t, 1, extractCalls, "second run must be served from the cache, not re-extracted")
}

func TestProviderFailedExtractionMarksProviderFailed(t *testing.T) {
	ex := funcExtractor[int]{fn: func(ctx context.Context, target string) (int, error) {
		return 0, errors.New("boom: " + target)
	}}
	p := New[int]("p1", "failing", ex, Config{Targets: []string{"a"}}, nil, nil, nil)

	got := drainAll(p)
	assert.Empty(t, got)
	assert.Equal(t, StatusFailed, p.Status())

	e, ok := p.Exceptions().Recv()
	require.True(t, ok)
	assert.Equal(t, "a", e.Target)
	assert.EqualError(t, errors.Unwrap(e), "boom: a")
}
