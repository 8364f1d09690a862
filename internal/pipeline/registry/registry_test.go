package registry

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kscanio/kscan/internal/models"
	"github.com/kscanio/kscan/internal/pipeline/stage"
	"github.com/kscanio/kscan/internal/pipeline/writer"
)

type stubSources struct{}

func (stubSources) Variability() stage.Source[models.VariabilityModel] { return nil }
func (stubSources) Build() stage.Source[models.BuildModel]             { return nil }
func (stubSources) Code() stage.Source[models.SourceFile]              { return nil }

func passthroughFactory(name string) Factory {
	return func(ctx Context) (stage.Stage, error) {
		work := func(_ context.Context, add func(string) error) error {
			if ctx.Previous == nil {
				return add("seed:" + name)
			}
			prev, ok := ctx.Previous.(stage.Source[string])
			if !ok {
				return add("root:" + name)
			}
			prev.Start(context.Background())
			for {
				v, ok := prev.NextResult()
				if !ok {
					return nil
				}
				if err := add(v + ">" + name); err != nil {
					return err
				}
			}
		}
		return stage.New(name, name, false, 0, work, nil, ctx.IntermediateSink(name)), nil
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	_, ok := r.Get("missing")
	assert.False(t, ok)

	r.Register("first", passthroughFactory("first"))
	f, ok := r.Get("first")
	require.True(t, ok)
	require.NotNil(t, f)
}

func TestResetClearsFactories(t *testing.T) {
	r := New()
	r.Register("a", passthroughFactory("a"))
	r.Reset()
	_, ok := r.Get("a")
	assert.False(t, ok)
}

func TestBuildReflectiveChainsStagesInOrder(t *testing.T) {
	r := New()
	r.Register("first", passthroughFactory("first"))
	r.Register("second", passthroughFactory("second"))

	built, err := BuildReflective(r, []string{"first", "second"}, stubSources{}, nil, "", BuildOptions{})
	require.NoError(t, err)

	terminal, ok := built.(stage.Source[string])
	require.True(t, ok)

	var got []string
	for {
		v, ok := terminal.NextResult()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"seed:first>second"}, got)
}

func TestBuildReflectiveUnknownNameFails(t *testing.T) {
	r := New()
	_, err := BuildReflective(r, []string{"nope"}, stubSources{}, nil, "", BuildOptions{})
	assert.Error(t, err)
}

func TestBuildReflectiveEmptyNamesFails(t *testing.T) {
	r := New()
	_, err := BuildReflective(r, nil, stubSources{}, nil, "", BuildOptions{})
	assert.Error(t, err)
}

func TestBuildReflectiveAttachesIntermediateSinkForNamedStage(t *testing.T) {
	dir := t.TempDir()
	r := New()
	r.Register("first", passthroughFactory("first"))
	r.Register("second", passthroughFactory("second"))

	built, err := BuildReflective(r, []string{"first", "second"}, stubSources{}, nil, dir, BuildOptions{
		LogStages: map[string]bool{"first": true},
		Writer:    writer.NewLineFactory(),
	})
	require.NoError(t, err)

	terminal, ok := built.(stage.Source[string])
	require.True(t, ok)
	for {
		if _, ok := terminal.NextResult(); !ok {
			break
		}
	}
	<-terminal.Done()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var sawIntermediateLog bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "first_intermediate_result_") {
			sawIntermediateLog = true
		}
		assert.False(t, strings.HasPrefix(e.Name(), "second_intermediate_result_"), "second was not named in LogStages")
	}
	assert.True(t, sawIntermediateLog, "first should have gotten an intermediate log since it was named in LogStages")
}
