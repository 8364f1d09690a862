package cmd

import (
	"context"
	"fmt"

	"github.com/kscanio/kscan/internal/pipeline/assembler"
	"github.com/kscanio/kscan/internal/pipeline/registry"
	"github.com/kscanio/kscan/internal/pipeline/stage"
)

// registerDefaultStages populates r with the factories the reflective
// `analysis.pipeline` configuration can name: one per model kind, each
// rendering its model as string lines so a reflectively-built chain
// always satisfies assembler.RunReflective's string terminal
// requirement.
func registerDefaultStages(r *registry.Registry) {
	r.Register("variability", variabilityLinesFactory)
	r.Register("build", buildLinesFactory)
	r.Register("code", codeLinesFactory)
}

// chainPrevious drains ctx.Previous first, when present, so a
// multi-name pipeline concatenates each named stage's lines in
// configuration order instead of discarding all but the last.
func chainPrevious(ctx context.Context, previous stage.Source[string], add func(string) error) error {
	if previous == nil {
		return nil
	}
	previous.Start(ctx)
	for {
		v, ok := previous.NextResult()
		if !ok {
			return nil
		}
		if err := add(v); err != nil {
			return err
		}
	}
}

func variabilityLinesFactory(rc registry.Context) (stage.Stage, error) {
	src := rc.Sources.Variability()
	if src == nil {
		return nil, fmt.Errorf("pipeline: no variability-model provider configured")
	}
	previous, _ := rc.Previous.(stage.Source[string])
	work := func(ctx context.Context, add func(string) error) error {
		if err := chainPrevious(ctx, previous, add); err != nil {
			return err
		}
		src.Start(ctx)
		for {
			m, ok := src.NextResult()
			if !ok {
				return nil
			}
			for _, v := range m.Variables {
				if err := add("variable:" + v); err != nil {
					return err
				}
			}
		}
	}
	return stage.New("variability-lines", "VariabilityLines", false, 0, work, rc.Logger, rc.IntermediateSink("VariabilityLines")), nil
}

func buildLinesFactory(rc registry.Context) (stage.Stage, error) {
	src := rc.Sources.Build()
	if src == nil {
		return nil, fmt.Errorf("pipeline: no build-model provider configured")
	}
	previous, _ := rc.Previous.(stage.Source[string])
	work := func(ctx context.Context, add func(string) error) error {
		if err := chainPrevious(ctx, previous, add); err != nil {
			return err
		}
		src.Start(ctx)
		for {
			m, ok := src.NextResult()
			if !ok {
				return nil
			}
			for file, cond := range m.FileScopes {
				if err := add(fmt.Sprintf("file:%s=%s", file, cond)); err != nil {
					return err
				}
			}
		}
	}
	return stage.New("build-lines", "BuildLines", false, 0, work, rc.Logger, rc.IntermediateSink("BuildLines")), nil
}

func codeLinesFactory(rc registry.Context) (stage.Stage, error) {
	src := rc.Sources.Code()
	if src == nil {
		return nil, fmt.Errorf("pipeline: no code-model provider configured")
	}
	previous, _ := rc.Previous.(stage.Source[string])
	work := func(ctx context.Context, add func(string) error) error {
		if err := chainPrevious(ctx, previous, add); err != nil {
			return err
		}
		src.Start(ctx)
		for {
			f, ok := src.NextResult()
			if !ok {
				return nil
			}
			for _, n := range f.Nodes {
				if err := add(fmt.Sprintf("node:%s:%s", f.Path, n)); err != nil {
					return err
				}
			}
		}
	}
	return stage.New("code-lines", "CodeLines", false, 0, work, rc.Logger, rc.IntermediateSink("CodeLines")), nil
}

// buildDefaultPipeline wires all three model kinds into one terminal
// stage directly, for runs that don't configure analysis.pipeline. It
// is the code-supplied BuildPipeline counterpart to the reflective
// factories above, exercising the same ModelSources. logStages and wf
// mirror registry.Context.LogStages/Writer: a stage named "Report" in
// logStages gets an IntermediateSink opened via wf under outputDir.
func buildDefaultPipeline(sources *assembler.ModelSources, logStages map[string]bool, wf stage.RecordWriterFactory, outputDir string) stage.Source[string] {
	variability := sources.Variability()
	build := sources.Build()
	code := sources.Code()

	work := func(ctx context.Context, add func(string) error) error {
		if variability != nil {
			variability.Start(ctx)
			for {
				m, ok := variability.NextResult()
				if !ok {
					break
				}
				for _, v := range m.Variables {
					if err := add("variable:" + v); err != nil {
						return err
					}
				}
			}
		}
		if build != nil {
			build.Start(ctx)
			for {
				m, ok := build.NextResult()
				if !ok {
					break
				}
				for file, cond := range m.FileScopes {
					if err := add(fmt.Sprintf("file:%s=%s", file, cond)); err != nil {
						return err
					}
				}
			}
		}
		if code != nil {
			code.Start(ctx)
			for {
				f, ok := code.NextResult()
				if !ok {
					break
				}
				for _, n := range f.Nodes {
					if err := add(fmt.Sprintf("node:%s:%s", f.Path, n)); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	var sink *stage.IntermediateSink
	if logStages["Report"] && wf != nil && outputDir != "" {
		sink = &stage.IntermediateSink{Factory: wf, Dir: outputDir}
	}
	return stage.New("report", "Report", false, 0, work, nil, sink)
}
