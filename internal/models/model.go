package models

import "encoding/json"

// Model is the serialization hook every payload flowing through the
// pipeline and into the cache must satisfy. The core never inspects a
// model's fields beyond this interface.
type Model interface {
	// Marshal renders the model to its cacheable byte form.
	Marshal() ([]byte, error)
}

// VariabilityModel is the opaque result of the variability-model
// provider: the set of configuration variables extracted from a source
// tree's variability description (e.g. a KConfig/Kbuild dialect).
type VariabilityModel struct {
	SourceTree string   `json:"source_tree"`
	Variables  []string `json:"variables"`
}

// Marshal implements Model.
func (m VariabilityModel) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalVariabilityModel reverses VariabilityModel.Marshal.
func UnmarshalVariabilityModel(data []byte) (VariabilityModel, error) {
	var m VariabilityModel
	err := json.Unmarshal(data, &m)
	return m, err
}

// BuildModel is the opaque result of the build-model provider: the
// mapping from source files to the presence conditions under which the
// build system compiles them.
type BuildModel struct {
	SourceTree string            `json:"source_tree"`
	FileScopes map[string]string `json:"file_scopes"` // file path -> presence condition
}

// Marshal implements Model.
func (m BuildModel) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBuildModel reverses BuildModel.Marshal.
func UnmarshalBuildModel(data []byte) (BuildModel, error) {
	var m BuildModel
	err := json.Unmarshal(data, &m)
	return m, err
}

// SourceFile is one element of the code model: the per-file result of
// parsing a single source file into an abstract syntax representation.
// kscan treats the AST itself as opaque (Nodes is a flat placeholder);
// concrete extractors own the real representation.
type SourceFile struct {
	Path  string   `json:"path"`
	Nodes []string `json:"nodes"`
}

// Marshal implements Model.
func (f SourceFile) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalSourceFile reverses SourceFile.Marshal.
func UnmarshalSourceFile(data []byte) (SourceFile, error) {
	var f SourceFile
	err := json.Unmarshal(data, &f)
	return f, err
}
