// Package assembler implements PipelineAnalysis: it builds the stage
// DAG, supplies the three model sources to stages as shared pseudo-
// components, runs the terminal stage to completion, and serializes
// its output (spec.md §4.4).
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/kscanio/kscan/internal/models"
	"github.com/kscanio/kscan/internal/pipeline/registry"
	"github.com/kscanio/kscan/internal/pipeline/split"
	"github.com/kscanio/kscan/internal/pipeline/stage"
	"github.com/kscanio/kscan/internal/pipeline/stream"
	"github.com/kscanio/kscan/internal/pipeline/writer"
	"github.com/kscanio/kscan/internal/storage"
)

// ModelSources exposes the three model providers as shared source
// stages. NewModelSources creates a split.SplitComponent over each
// non-nil provider up front, not on the first accessor call; every
// accessor call returns a new branch of that split, so the provider's
// extractor runs at most once regardless of how many stages observe
// it (spec.md §3 invariant 4, §4.3 "Sharing").
type ModelSources struct {
	mu sync.Mutex

	variability *split.SplitComponent[models.VariabilityModel]
	build       *split.SplitComponent[models.BuildModel]
	code        *split.SplitComponent[models.SourceFile]

	branchCapacity int
	logger         *slog.Logger
}

// NewModelSources wraps the three providers (any of which may be nil
// if a pipeline doesn't use that model kind) for shared consumption.
func NewModelSources(
	variability stage.Source[models.VariabilityModel],
	build stage.Source[models.BuildModel],
	code stage.Source[models.SourceFile],
	logger *slog.Logger,
) *ModelSources {
	if logger == nil {
		logger = slog.Default()
	}
	m := &ModelSources{branchCapacity: stream.DefaultCapacity, logger: logger}
	if variability != nil {
		m.variability = split.New[models.VariabilityModel]("vm-source", "VariabilityModelSource", variability, logger)
	}
	if build != nil {
		m.build = split.New[models.BuildModel]("bm-source", "BuildModelSource", build, logger)
	}
	if code != nil {
		m.code = split.New[models.SourceFile]("cm-source", "CodeModelSource", code, logger)
	}
	return m
}

// Variability returns a new consumer view of the variability-model
// source. Must be called before the underlying split has started
// (i.e. before any previously returned branch's Start/NextResult).
func (m *ModelSources) Variability() stage.Source[models.VariabilityModel] {
	return branchOf(m, m.variability, "variability")
}

// Build returns a new consumer view of the build-model source.
func (m *ModelSources) Build() stage.Source[models.BuildModel] {
	return branchOf(m, m.build, "build")
}

// Code returns a new consumer view of the code-model source.
func (m *ModelSources) Code() stage.Source[models.SourceFile] {
	return branchOf(m, m.code, "code")
}

func branchOf[T any](m *ModelSources, sp *split.SplitComponent[T], kind string) stage.Source[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp == nil {
		m.logger.Error("model source requested but no provider was configured", slog.String("kind", kind))
		return nil
	}
	branch, err := sp.CreateOutputComponent(m.branchCapacity)
	if err != nil {
		m.logger.Error("model source requested after pipeline start", slog.String("kind", kind), slog.Any("error", err))
		return nil
	}
	return branch
}

// Assembler builds the DAG, supplies model sources, and runs the
// terminal stage to completion per spec.md §4.4's run protocol.
type Assembler struct {
	sources *ModelSources
	sandbox *storage.Sandbox
	wf      writer.Factory
	logger  *slog.Logger
	runID   models.ULID
}

// New creates an Assembler that writes terminal-stage artifacts under
// outputDir (created if missing) using wf's format. Each Assembler
// represents one run and is stamped with its own ULID (RunID) at
// construction, so the httpapi status endpoint and the run's log lines
// can be correlated to the artifacts it produces.
func New(sources *ModelSources, outputDir string, wf writer.Factory, logger *slog.Logger) (*Assembler, error) {
	sb, err := storage.NewSandbox(outputDir)
	if err != nil {
		return nil, fmt.Errorf("preparing output directory %q: %w", outputDir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if wf == nil {
		wf = writer.NewLineFactory()
	}
	return &Assembler{sources: sources, sandbox: sb, wf: wf, logger: logger, runID: models.NewULID()}, nil
}

// Sources returns the assembler's shared model-source accessors, for
// a BuildPipeline function to consume.
func (a *Assembler) Sources() *ModelSources { return a.sources }

// OutputDir returns the sandboxed output directory's absolute path.
func (a *Assembler) OutputDir() string { return a.sandbox.BaseDir() }

// RunID returns this run's identifier.
func (a *Assembler) RunID() string { return a.runID.String() }

// Artifacts enumerates the files currently in the output directory,
// for reporting (spec.md §4.4 run protocol step 5).
func (a *Assembler) Artifacts() ([]string, error) {
	entries, err := a.sandbox.List("")
	if err != nil {
		return nil, fmt.Errorf("listing output artifacts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Run executes the run protocol for the given terminal stage: start
// it, drain its results through the writer factory into a temporary
// file, then atomically publish the completed artifact as
// "<terminal.Name()>_result_<timestamp>.<ext>" (spec.md §3 invariant
// 7: the terminal stage's output is never observed partially
// written).
//
// Run is a package-level function rather than a method because Go
// does not support generic methods: the terminal stage's element type
// varies per pipeline and must be supplied as Run's type parameter.
func Run[T any](ctx context.Context, a *Assembler, terminal stage.Source[T]) (string, error) {
	terminal.Start(ctx)

	timestamp := time.Now().Format("20060102150405.000000")
	tmpName := fmt.Sprintf(".%s_result_%s.%s.tmp", terminal.Name(), timestamp, a.wf.Ext())
	tmpPath := filepath.Join(a.sandbox.BaseDir(), tmpName)

	w, err := a.wf.NewWriter(terminal.Name(), tmpPath)
	if err != nil {
		return "", fmt.Errorf("opening result writer: %w", err)
	}

	for {
		v, ok := terminal.NextResult()
		if !ok {
			break
		}
		if err := w.WriteRecord(v); err != nil {
			a.logger.Error("failed to write result record", slog.String("stage", terminal.Name()), slog.String("run_id", a.runID.String()), slog.Any("error", err))
		}
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing result writer: %w", err)
	}

	finalName := fmt.Sprintf("%s_result_%s.%s", terminal.Name(), timestamp, a.wf.Ext())
	if err := a.sandbox.AtomicPublish(tmpPath, finalName); err != nil {
		return "", fmt.Errorf("publishing result artifact: %w", err)
	}
	return finalName, nil
}

// RunReflective resolves names through r into a linear chain
// (registry.BuildReflective) and runs the resulting terminal stage via
// Run. Every reflectively-constructed stage is assumed to produce
// string results: a declarative `analysis.pipeline` specification has
// no compile-time element type to parameterize Run with, so the
// registry path is scoped to string, matching spec.md §6's
// requirement that single-string results produce one line each. A
// code-supplied BuildPipeline function is free to use any element type
// by calling Run directly instead.
//
// logStages names the stages (by Name()) that analysis.components.log
// configured for intermediate logging; a nil/empty set disables it for
// every stage.
func RunReflective(ctx context.Context, a *Assembler, r *registry.Registry, names []string, logStages map[string]bool) (string, error) {
	built, err := registry.BuildReflective(r, names, a.sources, a.logger, a.OutputDir(), registry.BuildOptions{
		LogStages: logStages,
		Writer:    a.wf,
	})
	if err != nil {
		return "", err
	}
	terminal, ok := built.(stage.Source[string])
	if !ok {
		return "", fmt.Errorf("assembler: reflective pipeline's terminal stage %q does not produce string results", built.Name())
	}
	return Run(ctx, a, terminal)
}
