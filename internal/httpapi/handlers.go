package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
)

// RunReporter is the subset of *assembler.Assembler the status
// endpoint needs. Declared here, not imported from assembler, so this
// package stays usable against any future multi-run tracker without
// pulling in the whole assembler API.
type RunReporter interface {
	Artifacts() ([]string, error)
	OutputDir() string
	RunID() string
}

type latestRunResponse struct {
	RunID     string   `json:"run_id"`
	OutputDir string   `json:"output_dir"`
	Artifacts []string `json:"artifacts"`
}

// latestRunHandler serves GET /runs/latest: the enumerated output
// artifacts of the most recent run (spec.md §4.4 run protocol step 5),
// made externally observable.
func latestRunHandler(r RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		artifacts, err := r.Artifacts()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sort.Strings(artifacts)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(latestRunResponse{
			RunID:     r.RunID(),
			OutputDir: r.OutputDir(),
			Artifacts: artifacts,
		})
	}
}
