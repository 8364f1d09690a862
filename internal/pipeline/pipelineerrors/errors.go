// Package pipelineerrors defines the error taxonomy shared across the
// pipeline core: SetupError, ExtractorError, FormatError, and StageError
// (spec.md §7). Errors never flow through a result stream; they are
// either surfaced on a provider's parallel exception stream or only
// logged, per the propagation rules in spec.md §7.
package pipelineerrors

import "fmt"

// SetupError indicates configuration missing or invalid, an extractor
// class not found, or an output directory that cannot be used. It is
// fatal and aborts before any stage starts.
type SetupError struct {
	Field   string
	Message string
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup error for %s: %s", e.Field, e.Message)
}

// NewSetupError creates a new SetupError.
func NewSetupError(field, message string) *SetupError {
	return &SetupError{Field: field, Message: message}
}

// ExtractorError indicates an extractor failed for a target or timed
// out. It is recorded on a provider's exception stream and never
// terminates the run; downstream stages simply see fewer results.
type ExtractorError struct {
	Target string
	Err    error
}

func (e *ExtractorError) Error() string {
	return fmt.Sprintf("extractor failed for target %s: %v", e.Target, e.Err)
}

func (e *ExtractorError) Unwrap() error {
	return e.Err
}

// NewExtractorError creates a new ExtractorError.
func NewExtractorError(target string, err error) *ExtractorError {
	return &ExtractorError{Target: target, Err: err}
}

// FormatError indicates a cache entry was corrupted or an external
// serialized input was malformed. Logged at WARNING (cache) or ERROR
// (external input) by the caller, and treated as absent where possible.
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed data from %s: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError creates a new FormatError.
func NewFormatError(source string, err error) *FormatError {
	return &FormatError{Source: source, Err: err}
}

// StageError wraps an uncaught failure inside a stage's work function.
// The stage closes its output early; downstream stages observe an
// early end-of-stream.
type StageError struct {
	StageID   string
	StageName string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{StageID: stageID, StageName: stageName, Err: err}
}
