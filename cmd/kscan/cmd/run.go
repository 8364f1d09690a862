package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kscanio/kscan/internal/config"
	"github.com/kscanio/kscan/internal/extractor"
	"github.com/kscanio/kscan/internal/httpapi"
	"github.com/kscanio/kscan/internal/models"
	"github.com/kscanio/kscan/internal/pipeline/assembler"
	"github.com/kscanio/kscan/internal/pipeline/cache"
	"github.com/kscanio/kscan/internal/pipeline/pipelineerrors"
	"github.com/kscanio/kscan/internal/pipeline/provider"
	"github.com/kscanio/kscan/internal/pipeline/registry"
	"github.com/kscanio/kscan/internal/pipeline/writer"
)

// defaultSourceExtensions bounds the WalkSourceFiles call feeding the
// code and build providers when no finer-grained configuration is
// given; these are the file kinds the illustrative extractors in
// internal/extractor know how to read as plain text.
var defaultSourceExtensions = []string{"c", "h", "cpp", "hpp"}

var serveStatus bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis pipeline once over source-tree",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("source-tree", ".", "root of the source tree to analyze")
	runCmd.Flags().String("output-dir", "./output", "directory the result artifact is written to")
	runCmd.Flags().String("cache-dir", "./cache", "directory (or sqlite file location) for the result cache")
	runCmd.Flags().String("cache-backend", "file", "cache backend: file or sqlite")
	runCmd.Flags().String("format", "line", "result artifact format: line, json, or csv")
	runCmd.Flags().BoolVar(&serveStatus, "serve", false, "after the run completes, serve /runs/latest until interrupted")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	logger := slog.Default()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := cache.New(cfg)
	if err != nil {
		return pipelineerrors.NewSetupError("cache_dir", err.Error())
	}

	variabilityTargets, err := extractor.WalkSourceFiles(cfg.SourceTree, []string{"kconfig", "config"})
	if err != nil {
		return fmt.Errorf("discovering variability sources: %w", err)
	}
	codeTargets, err := extractor.WalkSourceFiles(cfg.SourceTree, defaultSourceExtensions)
	if err != nil {
		return fmt.Errorf("discovering code sources: %w", err)
	}

	vp := provider.New[models.VariabilityModel]("vm", "variability", extractor.VariabilityExtractor{},
		providerConfig(cfg, "variability", variabilityTargets), c, models.UnmarshalVariabilityModel, logger)
	bp := provider.New[models.BuildModel]("bm", "build", extractor.BuildExtractor{Extensions: defaultSourceExtensions},
		providerConfig(cfg, "build", []string{cfg.SourceTree}), c, models.UnmarshalBuildModel, logger)
	cp := provider.New[models.SourceFile]("cm", "code", extractor.CodeExtractor{},
		providerConfig(cfg, "code", codeTargets), c, models.UnmarshalSourceFile, logger)

	sources := assembler.NewModelSources(vp, bp, cp, logger)

	format, _ := cmd.Flags().GetString("format")
	wf := writer.ByFormat(format)
	asm, err := assembler.New(sources, cfg.OutputDir, wf, logger)
	if err != nil {
		return pipelineerrors.NewSetupError("output_dir", err.Error())
	}

	logStages := stageLogSet(cfg.Analysis.Components.Log)

	var artifact string
	if len(cfg.Analysis.Pipeline) > 0 {
		r := registry.New()
		registerDefaultStages(r)
		artifact, err = assembler.RunReflective(ctx, asm, r, cfg.Analysis.Pipeline, logStages)
	} else {
		artifact, err = assembler.Run(ctx, asm, buildDefaultPipeline(sources, logStages, wf, asm.OutputDir()))
	}
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	logger.Info("pipeline run complete", slog.String("artifact", artifact), slog.String("output_dir", asm.OutputDir()))
	fmt.Println(artifact)

	if serveStatus {
		return serveRunStatus(cfg, asm, logger)
	}
	return nil
}

// applyRunFlags overlays explicitly-set `run` flags onto a config
// already loaded from file/env/defaults. config.Load resolves its own
// Viper instance, so a flag bound only to the root command's viper
// singleton (mustBindPFlag) would otherwise be invisible to it; only
// flags the caller actually passed are applied, so file/env values
// still win over a flag's default.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source-tree") {
		cfg.SourceTree, _ = flags.GetString("source-tree")
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir, _ = flags.GetString("cache-dir")
	}
	if flags.Changed("cache-backend") {
		cfg.Cache.Backend, _ = flags.GetString("cache-backend")
	}
}

// stageLogSet turns the configured analysis.components.log stage names
// into the set BuildReflective/buildDefaultPipeline check each stage's
// name against.
func stageLogSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func providerConfig(cfg *config.Config, name string, targets []string) provider.Config {
	return provider.Config{
		Targets:     targets,
		Timeout:     cfg.ProviderTimeout(name),
		Concurrency: cfg.ProviderConcurrency(name),
		ReadCache:   cfg.ProviderReadCache(name),
		WriteCache:  cfg.ProviderWriteCache(name),
	}
}

func serveRunStatus(cfg *config.Config, asm *assembler.Assembler, logger *slog.Logger) error {
	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port

	srv := httpapi.NewServer(serverCfg, logger, asm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
