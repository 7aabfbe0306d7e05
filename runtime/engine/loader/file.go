// Package loader reads flow documents from files and from the platform API.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goyaml "gopkg.in/yaml.v3"

	"github.com/BDNK1/ivrflow/runtime"
)

// document is the platform envelope. A bare flow has its graph at the top
// level instead of under "flow".
type document struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Extension string         `json:"extension" yaml:"extension"`
	Language  string         `json:"language" yaml:"language"`
	Settings  map[string]any `json:"settings" yaml:"settings"`
	Flow      *runtime.Flow  `json:"flow" yaml:"flow"`
}

// FileLoader loads JSON and YAML flow files.
type FileLoader struct {
	defaultLanguage string
}

func NewFileLoader(defaultLanguage string) *FileLoader {
	return &FileLoader{defaultLanguage: defaultLanguage}
}

func (l *FileLoader) Extensions() []string {
	return []string{".json", ".yaml", ".yml"}
}

func (l *FileLoader) Load(filePath string) (runtime.Flow, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return runtime.Flow{}, fmt.Errorf("error reading flow file: %w", err)
	}

	var flow *runtime.Flow
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		flow, err = ParseJSON(data)
	case ".yaml", ".yml":
		flow, err = ParseYAML(data)
	default:
		return runtime.Flow{}, fmt.Errorf("unsupported flow file %s", filePath)
	}
	if err != nil {
		return runtime.Flow{}, fmt.Errorf("%s: %w", filePath, err)
	}

	// Files without an id are named after themselves
	if flow.ID == "" {
		flow.ID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	if err := Prepare(flow, l.defaultLanguage); err != nil {
		return runtime.Flow{}, fmt.Errorf("%s: %w", filePath, err)
	}
	return *flow, nil
}

// ParseJSON decodes either an envelope or a bare flow.
func ParseJSON(data []byte) (*runtime.Flow, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error unmarshalling JSON: %w", err)
	}
	if doc.Flow != nil {
		return doc.unwrap(), nil
	}

	var flow runtime.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("error unmarshalling JSON: %w", err)
	}
	return &flow, nil
}

// ParseYAML decodes either an envelope or a bare flow.
func ParseYAML(data []byte) (*runtime.Flow, error) {
	var doc document
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error unmarshalling YAML: %w", err)
	}
	if doc.Flow != nil {
		return doc.unwrap(), nil
	}

	var flow runtime.Flow
	if err := goyaml.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("error unmarshalling YAML: %w", err)
	}
	return &flow, nil
}

func (d *document) unwrap() *runtime.Flow {
	f := d.Flow
	if d.ID != "" {
		f.ID = d.ID
	}
	if d.Name != "" {
		f.Name = d.Name
	}
	if d.Extension != "" {
		f.Extension = d.Extension
	}
	if d.Language != "" {
		f.Language = d.Language
	}
	if d.Settings != nil {
		f.Settings = d.Settings
	}
	return f
}

// Prepare normalizes a decoded flow and validates its shape. Settings are
// decoded once here so bad settings fail at load instead of at call time.
func Prepare(flow *runtime.Flow, defaultLanguage string) error {
	flow.Normalize(defaultLanguage)
	if err := runtime.Validate(flow); err != nil {
		return fmt.Errorf("invalid flow %s: %w", flow.ID, err)
	}
	if _, err := flow.DecodeSettings(); err != nil {
		return err
	}
	return nil
}
