package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReporter struct {
	dir       string
	runID     string
	artifacts []string
}

func (s stubReporter) Artifacts() ([]string, error) { return s.artifacts, nil }
func (s stubReporter) OutputDir() string             { return s.dir }
func (s stubReporter) RunID() string                 { return s.runID }

func TestLatestRunHandlerReturnsSortedArtifacts(t *testing.T) {
	reporter := stubReporter{dir: "/out", runID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", artifacts: []string{"b_result_2.jsonl", "a_result_1.jsonl"}}
	srv := NewServer(DefaultServerConfig(), nil, reporter)

	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var got latestRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", got.RunID)
	assert.Equal(t, "/out", got.OutputDir)
	assert.Equal(t, []string{"a_result_1.jsonl", "b_result_2.jsonl"}, got.Artifacts)
}

func TestLatestRunHandlerPropagatesRequestID(t *testing.T) {
	reporter := stubReporter{dir: "/out"}
	srv := NewServer(DefaultServerConfig(), nil, reporter)

	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}
