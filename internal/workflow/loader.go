// internal/workflow/loader.go
//
// Loads workflow definitions from the workflows directory. Files are
// JSON per the wire shape; the YAML parser reads both since JSON is a
// YAML subset, so hand-written .yaml definitions work too.

package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrWorkflowNotFound is returned when Find locates no definition
// file for the requested name.
var ErrWorkflowNotFound = errors.New("workflow: definition not found")

var definitionExtensions = []string{".json", ".yaml", ".yml"}

// ParseDefinition decodes a definition from JSON or YAML bytes and
// normalizes it.
func ParseDefinition(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("%w: definition payload is empty", ErrInvalidWorkflow)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: decode definition: %v", ErrInvalidWorkflow, err)
	}
	return def.Normalized()
}

// LoadReader reads definition data from an io.Reader.
func LoadReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinition(content)
}

// LoadFile loads a definition from an explicit file path.
func LoadFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, err := ParseDefinition(content)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every definition in dir, sorted by name. A missing
// directory yields no definitions.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: read directory %s: %w", dir, err)
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() || !hasDefinitionExtension(entry.Name()) {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Find locates the definition file for name inside dir, trying each
// supported extension.
func Find(dir, name string) (Definition, error) {
	for _, ext := range definitionExtensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return Definition{}, fmt.Errorf("%w: %s in %s", ErrWorkflowNotFound, name, dir)
}

func hasDefinitionExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range definitionExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
