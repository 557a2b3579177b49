package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"
)

// Go action packs declare their definitions through this function.
const goDefinitionFuncName = "ActionDefinitions"

// LoadGoDefinitionDir interprets every .go file in dir with yaegi and
// collects the actions its ActionDefinitions() returns. Each map in
// the returned slice carries the same fields as one YAML document, so
// both pack formats share a single schema. A missing directory means
// no Go packs are installed.
func LoadGoDefinitionDir(dir string) ([]DefinitionFile, error) {
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

	var files []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		path := filepath.Join(trimmed, entry.Name())
		defs, err := loadGoPack(path)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, err)
		}
		files = append(files, defs...)
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// loadGoPack evaluates one plugin source file and converts each
// declared map into a validated definition.
func loadGoPack(path string) ([]DefinitionFile, error) {
	interpreter := interp.New(interp.Options{})
	interpreter.Use(stdlib.Symbols)
	if _, err := interpreter.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret: %w", err)
	}
	fn, err := interpreter.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("must declare %s() ([]map[string]any, error): %w", goDefinitionFuncName, err)
	}

	raws, err := callDefinitionFunc(fn)
	if err != nil {
		return nil, err
	}

	files := make([]DefinitionFile, 0, len(raws))
	for idx, raw := range raws {
		def, err := decodeActionMap(raw)
		if err != nil {
			return nil, fmt.Errorf("definition[%d]: %w", idx, err)
		}
		files = append(files, DefinitionFile{
			Definition: def,
			Path:       fmt.Sprintf("%s#%d", path, idx+1),
		})
	}
	return files, nil
}

// callDefinitionFunc invokes the interpreted function and coerces its
// return into plain maps. yaegi hands interpreted slices back behind
// reflect values, so element-wise conversion is needed when the direct
// assertion misses.
func callDefinitionFunc(fn reflect.Value) ([]map[string]any, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	results := fn.Call(nil)
	switch len(results) {
	case 1:
	case 2:
		if !results[1].IsNil() {
			callErr, ok := results[1].Interface().(error)
			if !ok {
				return nil, fmt.Errorf("%s second return value must be an error", goDefinitionFuncName)
			}
			return nil, callErr
		}
	default:
		return nil, fmt.Errorf("%s must return ([]map[string]any) or ([]map[string]any, error)", goDefinitionFuncName)
	}

	head := results[0]
	if raws, ok := head.Interface().([]map[string]any); ok {
		return raws, nil
	}
	if head.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return a slice of definition maps", goDefinitionFuncName)
	}
	raws := make([]map[string]any, head.Len())
	for i := 0; i < head.Len(); i++ {
		raw, ok := head.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s element %d is not map[string]any", goDefinitionFuncName, i)
		}
		raws[i] = raw
	}
	return raws, nil
}

// decodeActionMap round-trips one definition map through YAML so Go
// packs are validated by the same rules as YAML packs.
func decodeActionMap(raw map[string]any) (ActionDefinition, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return ActionDefinition{}, fmt.Errorf("encode: %w", err)
	}
	var def ActionDefinition
	if err := yaml.Unmarshal(payload, &def); err != nil {
		return ActionDefinition{}, fmt.Errorf("decode: %w", err)
	}
	if isEmptyDefinition(def) {
		return ActionDefinition{}, fmt.Errorf("definition is empty")
	}
	if err := def.Validate(); err != nil {
		return ActionDefinition{}, err
	}
	return def.Normalized(), nil
}
