package plugins

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

// DefinitionFile pairs a parsed action definition with its on-disk
// source. Multi-document files and Go sources carry a #n suffix on
// the path so duplicate reports stay unambiguous.
type DefinitionFile struct {
	Definition ActionDefinition
	Path       string
}

// ParseActionsYAML decodes a YAML payload into validated action
// definitions. The payload may hold several documents separated by
// ---; empty documents are skipped.
func ParseActionsYAML(data []byte) ([]ActionDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("plugin: definition payload is empty")
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var defs []ActionDefinition
	for {
		var def ActionDefinition
		err := decoder.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("plugin: decode definition: %w", err)
		}
		if isEmptyDefinition(def) {
			continue
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def.Normalized())
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("plugin: payload declares no actions")
	}
	return defs, nil
}

// LoadDefinitionFile reads a YAML file from disk and returns the
// parsed action definitions.
func LoadDefinitionFile(path string) ([]DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	defs, err := ParseActionsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	clean := filepath.Clean(path)
	files := make([]DefinitionFile, len(defs))
	for i, def := range defs {
		source := clean
		if len(defs) > 1 {
			source = fmt.Sprintf("%s#%d", clean, i+1)
		}
		files[i] = DefinitionFile{Definition: def, Path: source}
	}
	return files, nil
}

// LoadDefinitionDir scans a directory for *.yaml actions and returns
// the parsed definitions. Missing directories are treated as "no
// actions" to simplify startup.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isYAMLFile(name) {
			continue
		}
		files, err := LoadDefinitionFile(filepath.Join(trimmed, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, files...)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isEmptyDefinition(def ActionDefinition) bool {
	return strings.TrimSpace(def.Name) == "" && len(def.Command) == 0
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
