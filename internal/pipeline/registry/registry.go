// Package registry implements the reflective stage construction path
// of spec.md §4.4's "Reflective variant": a string name resolves to a
// Factory that builds a stage.Stage over a typed Context, instead of
// instantiating stages by reflection over a class name (spec.md §9).
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kscanio/kscan/internal/models"
	"github.com/kscanio/kscan/internal/pipeline/stage"
)

// ModelSources is the subset of the assembler's model-source accessors
// a reflectively-built stage may depend on. Defined here, rather than
// imported from the assembler package, so registry has no dependency
// on assembler (the assembler depends on registry, not the reverse).
type ModelSources interface {
	Variability() stage.Source[models.VariabilityModel]
	Build() stage.Source[models.BuildModel]
	Code() stage.Source[models.SourceFile]
}

// Context is what a Factory receives to build its stage: the previous
// stage in a linear chain (nil for the first entry), the model
// sources, and the ambient logger/output directory a stage may need
// for intermediate logging.
type Context struct {
	// Previous is the prior stage in the reflective chain, or nil if
	// this is the first configured stage.
	Previous stage.Stage
	Sources  ModelSources
	Logger   *slog.Logger
	// OutputDir is passed through for factories that want to configure
	// their own intermediate-log sink.
	OutputDir string
	// LogStages names the stages analysis.components.log configured
	// for intermediate logging (spec.md §4.1), keyed by stage name.
	LogStages map[string]bool
	// Writer opens the intermediate-log sink a factory attaches when
	// its stage's name is in LogStages. Nil disables intermediate
	// logging even if the stage's name is named in LogStages.
	Writer stage.RecordWriterFactory
}

// IntermediateSink builds the *stage.IntermediateSink a factory should
// pass to stage.New for a stage named stageName, or nil if that stage
// was not named in analysis.components.log (or no Writer/OutputDir is
// configured).
func (c Context) IntermediateSink(stageName string) *stage.IntermediateSink {
	if !c.LogStages[stageName] || c.Writer == nil || c.OutputDir == "" {
		return nil
	}
	return &stage.IntermediateSink{Factory: c.Writer, Dir: c.OutputDir}
}

// Factory builds a stage.Stage given a Context. It returns an error
// when the requested stage cannot be constructed (spec.md §7's
// SetupError: "extractor class not found" generalizes here to
// "registry name not found" / "factory construction failed").
type Factory func(ctx Context) (stage.Stage, error)

// Registry is a name -> Factory lookup table, guarded by a RWMutex so
// registration (typically at package init) and lookup (during
// assembly) can both happen from concurrent goroutines safely.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the Factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get looks up the Factory registered for name.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Reset removes every registered Factory. Primarily for tests that
// want a clean registry rather than the package-level default.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]Factory)
}

// Names returns the currently registered factory names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Default is the process-wide registry used by BuildReflective when no
// explicit Registry is supplied.
var Default = New()

// Register adds f to the Default registry.
func Register(name string, f Factory) { Default.Register(name, f) }

// BuildOptions carries the intermediate-logging configuration through
// to every stage a reflective pipeline builds.
type BuildOptions struct {
	// LogStages names the stages to attach an IntermediateSink to; see
	// Context.LogStages.
	LogStages map[string]bool
	// Writer opens an intermediate-log sink's backing file; see
	// Context.Writer.
	Writer stage.RecordWriterFactory
}

// BuildReflective resolves a sequence of registered stage names into a
// linear chain, feeding each stage's Context.Previous from the
// preceding entry; the returned stage is the last one built (the
// terminal stage), matching spec.md §4.4's reflective variant.
func BuildReflective(r *Registry, names []string, sources ModelSources, logger *slog.Logger, outputDir string, opts BuildOptions) (stage.Stage, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("registry: empty pipeline specification")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = Default
	}

	var previous stage.Stage
	for _, name := range names {
		factory, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("registry: no factory registered for stage %q", name)
		}
		built, err := factory(Context{
			Previous:  previous,
			Sources:   sources,
			Logger:    logger,
			OutputDir: outputDir,
			LogStages: opts.LogStages,
			Writer:    opts.Writer,
		})
		if err != nil {
			return nil, fmt.Errorf("registry: building stage %q: %w", name, err)
		}
		previous = built
	}
	return previous, nil
}
