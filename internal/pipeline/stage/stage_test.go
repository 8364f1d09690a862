package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kscanio/kscan/internal/pipeline/writer"
)

func TestComponentLifecycleTransitions(t *testing.T) {
	started := make(chan struct{})
	c := New[int]("s1", "nums", false, 4, func(ctx context.Context, add func(int) error) error {
		close(started)
		for i := 0; i < 3; i++ {
			if err := add(i); err != nil {
				return err
			}
		}
		return nil
	}, nil, nil)

	assert.Equal(t, StateCreated, c.State())

	var got []int
	for {
		v, ok := c.NextResult()
		if !ok {
			break
		}
		got = append(got, v)
	}
	<-c.Done()
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, StateFinished, c.State())
}

func TestComponentStartIsIdempotent(t *testing.T) {
	var runs int32
	var mu sync.Mutex
	c := New[int]("s1", "nums", false, 1, func(ctx context.Context, add func(int) error) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return add(1)
	}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Start(context.Background())
		}()
	}
	wg.Wait()

	v, ok := c.NextResult()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.NextResult()
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), runs, "work must run exactly once regardless of concurrent Start calls")
}

func TestComponentWorkErrorEndsStreamEarly(t *testing.T) {
	c := New[int]("s1", "nums", false, 4, func(ctx context.Context, add func(int) error) error {
		if err := add(1); err != nil {
			return err
		}
		return errors.New("extraction failed")
	}, nil, nil)

	v, ok := c.NextResult()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.NextResult()
	assert.False(t, ok, "a work error must end the stream rather than panic or hang")
	<-c.Done()
	assert.Equal(t, StateFinished, c.State())
}

func TestComponentPanicRecoveredAsEndOfStream(t *testing.T) {
	c := New[int]("s1", "nums", false, 4, func(ctx context.Context, add func(int) error) error {
		panic("boom")
	}, nil, nil)

	_, ok := c.NextResult()
	assert.False(t, ok)
	<-c.Done()
	assert.Equal(t, StateFinished, c.State())
}

func TestComponentMirrorsResultsToIntermediateSink(t *testing.T) {
	dir := t.TempDir()
	c := New[string]("s1", "names", false, 4, func(ctx context.Context, add func(string) error) error {
		for _, v := range []string{"a", "b"} {
			if err := add(v); err != nil {
				return err
			}
		}
		return nil
	}, nil, &IntermediateSink{Factory: writer.NewLineFactory(), Dir: dir})

	for {
		if _, ok := c.NextResult(); !ok {
			break
		}
	}
	<-c.Done()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "names_intermediate_result_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestComponentIsInternalHelper(t *testing.T) {
	c := New[int]("s1", "helper", true, 1, func(ctx context.Context, add func(int) error) error { return nil }, nil, nil)
	assert.True(t, c.IsInternalHelper())
	assert.Equal(t, "s1", c.ID())
	assert.Equal(t, "helper", c.Name())
}
