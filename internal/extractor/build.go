package extractor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kscanio/kscan/internal/models"
)

// BuildExtractor walks a source tree and assigns every discovered file
// the trivial presence condition "true" (i.e. it is always built). It
// is a stand-in for a real build-system scope extractor (e.g. one that
// understands Makefile conditionals), which is an external
// collaborator per spec.md §1.
type BuildExtractor struct {
	// Extensions restricts which files contribute a scope entry; empty
	// means every regular file is included.
	Extensions []string
}

// Extract implements provider.Extractor[models.BuildModel]. target is
// the root of the source tree to walk.
func (e BuildExtractor) Extract(ctx context.Context, target string) (models.BuildModel, error) {
	files, err := WalkSourceFiles(target, e.Extensions)
	if err != nil {
		return models.BuildModel{}, fmt.Errorf("walking build source tree %q: %w", target, err)
	}

	scopes := make(map[string]string, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			return models.BuildModel{}, ctx.Err()
		default:
		}
		scopes[relPath(target, f)] = "true"
	}

	return models.BuildModel{SourceTree: target, FileScopes: scopes}, nil
}

// relPath returns path relative to root, falling back to path itself
// if it cannot be made relative (e.g. different volumes on Windows).
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
