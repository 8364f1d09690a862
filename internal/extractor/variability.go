// Package extractor ships a small number of illustrative Extractor
// implementations (spec.md §1): a line-oriented variability-model
// extractor, a filesystem-walking helper plus per-file extractor for
// the code model, and a trivial build-model extractor. Real extractors
// for a given variability/build dialect are external collaborators;
// these exist as working templates and to exercise the providers in
// this module's own tests.
package extractor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/kscanio/kscan/internal/models"
)

// configLineRegexp matches a single KConfig-like declaration line, e.g.
// "config FEATURE_X". Lines that don't match are ignored.
var configLineRegexp = regexp.MustCompile(`^\s*config\s+([A-Za-z0-9_]+)\s*$`)

// VariabilityExtractor reads a variability description file line by
// line and collects one variable name per "config NAME" line,
// grounded in the teacher's bufio.Scanner-based line parsers
// (pkg/m3u, pkg/xmltv).
type VariabilityExtractor struct{}

// Extract implements provider.Extractor[models.VariabilityModel].
// target is the path to the variability description file.
func (VariabilityExtractor) Extract(ctx context.Context, target string) (models.VariabilityModel, error) {
	f, err := os.Open(target) //nolint:gosec // target is operator-supplied configuration, not untrusted input
	if err != nil {
		return models.VariabilityModel{}, fmt.Errorf("opening variability source %q: %w", target, err)
	}
	defer f.Close()

	var variables []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return models.VariabilityModel{}, ctx.Err()
		default:
		}
		if m := configLineRegexp.FindStringSubmatch(scanner.Text()); m != nil {
			variables = append(variables, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return models.VariabilityModel{}, fmt.Errorf("scanning variability source %q: %w", target, err)
	}

	return models.VariabilityModel{SourceTree: target, Variables: variables}, nil
}
