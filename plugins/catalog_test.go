package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCatalogRegisterAndLookup(t *testing.T) {
	catalog := NewCatalog()
	scoped := DefinitionFile{
		Definition: ActionDefinition{Name: "gather", Agent: "researcher", Command: []string{"sh", "-c", "echo scoped"}},
		Path:       "actions/scoped.yaml",
	}
	global := DefinitionFile{
		Definition: ActionDefinition{Name: "gather", Command: []string{"sh", "-c", "echo global"}},
		Path:       "actions/global.yaml",
	}
	if err := catalog.Register(scoped); err != nil {
		t.Fatalf("register scoped: %v", err)
	}
	if err := catalog.Register(global); err != nil {
		t.Fatalf("register global: %v", err)
	}

	def, ok := catalog.Lookup("researcher", "gather")
	if !ok || def.Agent != "researcher" {
		t.Fatalf("agent-scoped action should win: %+v ok=%v", def, ok)
	}
	def, ok = catalog.Lookup("writer", "gather")
	if !ok || !def.Global() {
		t.Fatalf("unscoped agent should fall back to the global action: %+v ok=%v", def, ok)
	}
	if _, ok := catalog.Lookup("writer", "unknown"); ok {
		t.Fatalf("unknown action should miss")
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	catalog := NewCatalog()
	first := DefinitionFile{
		Definition: ActionDefinition{Name: "gather", Agent: "researcher", Command: []string{"true"}},
		Path:       "actions/a.yaml",
	}
	second := DefinitionFile{
		Definition: ActionDefinition{Name: "gather", Agent: "researcher", Command: []string{"false"}},
		Path:       "actions/b.yaml",
	}
	if err := catalog.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	err := catalog.Register(second)
	if err == nil {
		t.Fatalf("expected duplicate rejection")
	}
	if !strings.Contains(err.Error(), "actions/a.yaml") || !strings.Contains(err.Error(), "actions/b.yaml") {
		t.Fatalf("duplicate error should name both sources: %v", err)
	}
}

func TestCatalogActionsSorted(t *testing.T) {
	catalog := NewCatalog()
	for _, def := range []ActionDefinition{
		{Name: "polish", Agent: "editor", Command: []string{"true"}},
		{Name: "notify", Command: []string{"true"}},
		{Name: "draft", Agent: "editor", Command: []string{"true"}},
	} {
		if err := catalog.Register(DefinitionFile{Definition: def, Path: def.Name + ".yaml"}); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	actions := catalog.Actions()
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	if actions[0].Name != "notify" || actions[1].Name != "draft" || actions[2].Name != "polish" {
		t.Fatalf("actions not sorted by agent then name: %+v", actions)
	}
}

func TestLoadCatalogCombinesSources(t *testing.T) {
	dir := t.TempDir()
	yamlAction := "name: gather\nagent: researcher\ncommand: [\"true\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "gather.yaml"), []byte(yamlAction), 0644); err != nil {
		t.Fatalf("write yaml action: %v", err)
	}
	goSource := `package main

func ActionDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{"name": "notify-done", "command": []string{"true"}},
	}, nil
}`
	if err := os.WriteFile(filepath.Join(dir, "hooks.go"), []byte(goSource), 0644); err != nil {
		t.Fatalf("write go action: %v", err)
	}

	catalog, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("expected 2 registered actions, got %d", catalog.Len())
	}
	if _, ok := catalog.Lookup("researcher", "gather"); !ok {
		t.Fatalf("yaml action missing from catalog")
	}
	if _, ok := catalog.Lookup("", "notify-done"); !ok {
		t.Fatalf("go action missing from catalog")
	}
}

func TestLoadCatalogMissingDirIsEmpty(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("load catalog on missing dir: %v", err)
	}
	if catalog.Len() != 0 {
		t.Fatalf("expected empty catalog, got %d entries", catalog.Len())
	}
}
