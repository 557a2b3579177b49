package plugins

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrActionNotFound is returned when no catalog entry matches an
// invocation.
var ErrActionNotFound = errors.New("plugin: action not found")

// Catalog indexes loaded actions for lookup by the workflow engine's
// invoker. Lookups prefer an agent-scoped action and fall back to a
// global one with the same name.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]DefinitionFile
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: map[string]DefinitionFile{}}
}

// LoadCatalog discovers YAML and Go action definitions under dir and
// registers them. A missing directory yields an empty catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	catalog := NewCatalog()
	for _, file := range append(yamlDefs, goDefs...) {
		if err := catalog.Register(file); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// Register adds one definition. A second definition for the same
// (agent, name) pair is rejected with both source paths.
func (c *Catalog) Register(file DefinitionFile) error {
	def := file.Definition.Normalized()
	if err := def.Validate(); err != nil {
		return err
	}
	key := scopeKey(def.Agent, def.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return fmt.Errorf("plugin: duplicate action %s for agent %q (%s and %s)",
			def.Name, def.Agent, existing.Path, file.Path)
	}
	c.entries[key] = DefinitionFile{Definition: def, Path: file.Path}
	return nil
}

// Lookup resolves an action for the given agent, preferring the
// agent-scoped entry over a global one.
func (c *Catalog) Lookup(agent, action string) (ActionDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if agent != "" {
		if file, ok := c.entries[scopeKey(agent, action)]; ok {
			return file.Definition, true
		}
	}
	file, ok := c.entries[scopeKey("", action)]
	return file.Definition, ok
}

// Actions lists every registered definition, sorted by agent then
// name.
func (c *Catalog) Actions() []ActionDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	defs := make([]ActionDefinition, 0, len(c.entries))
	for _, file := range c.entries {
		defs = append(defs, file.Definition)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Agent != defs[j].Agent {
			return defs[i].Agent < defs[j].Agent
		}
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// Len reports how many actions are registered.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func scopeKey(agent, name string) string {
	return agent + "/" + name
}
