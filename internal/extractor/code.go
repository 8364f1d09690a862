package extractor

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/kscanio/kscan/internal/models"
)

// WalkSourceFiles walks root and returns the path (root joined with the
// entry's path below it, so relative when root is relative) of every
// non-directory entry whose extension is in extensions (matched
// case-sensitively, without the leading dot); an empty extensions list
// matches every non-directory entry. Results are sorted for deterministic
// target enumeration, since the code provider's Config.Targets order
// only matters when Concurrency == 1 (spec.md §4.3 "Ordering").
func WalkSourceFiles(root string, extensions []string) ([]string, error) {
	wanted := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		wanted[ext] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(wanted) > 0 {
			ext := filepath.Ext(path)
			if len(ext) > 0 {
				ext = ext[1:]
			}
			if !wanted[ext] {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source tree %q: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// CodeExtractor reads a single source file and renders it as one
// SourceFile whose Nodes is the file's lines, a flat placeholder for
// the real AST a concrete extractor would build (spec.md §1: the core
// only sees the code model as an opaque typed payload).
type CodeExtractor struct{}

// Extract implements provider.Extractor[models.SourceFile]. target is
// the path to a single source file, as discovered by WalkSourceFiles.
func (CodeExtractor) Extract(ctx context.Context, target string) (models.SourceFile, error) {
	f, err := os.Open(target) //nolint:gosec // target comes from WalkSourceFiles over a configured source tree
	if err != nil {
		return models.SourceFile{}, fmt.Errorf("opening source file %q: %w", target, err)
	}
	defer f.Close()

	var nodes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return models.SourceFile{}, ctx.Err()
		default:
		}
		nodes = append(nodes, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return models.SourceFile{}, fmt.Errorf("scanning source file %q: %w", target, err)
	}

	return models.SourceFile{Path: target, Nodes: nodes}, nil
}
