package plugins

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/The-Relay/internal/layout"
)

// ActionDefinition describes one executable action loaded from the
// actions directory.
//
// The struct mirrors the on-disk schema under actions/*.yaml and is
// intentionally narrow so the catalog can validate action metadata
// before the workflow engine binds steps or hooks to it. An empty
// Agent makes the action global: any step may use it and workflow
// hooks resolve against global actions only.
type ActionDefinition struct {
	Name        string            `json:"name" yaml:"name"`
	Agent       string            `json:"agent,omitempty" yaml:"agent,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Command     []string          `json:"command" yaml:"command"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout     string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Dir         string            `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the
// definition.
func (def ActionDefinition) Normalized() ActionDefinition {
	clone := ActionDefinition{
		Name:        strings.TrimSpace(def.Name),
		Agent:       strings.TrimSpace(def.Agent),
		Description: strings.TrimSpace(def.Description),
		Timeout:     strings.TrimSpace(def.Timeout),
		Dir:         strings.TrimSpace(def.Dir),
	}
	if len(def.Command) > 0 {
		clone.Command = make([]string, 0, len(def.Command))
		for _, arg := range def.Command {
			clone.Command = append(clone.Command, strings.TrimSpace(arg))
		}
	}
	if len(def.Env) > 0 {
		clone.Env = make(map[string]string, len(def.Env))
		for key, value := range def.Env {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Env[trimmed] = strings.TrimSpace(value)
		}
	}
	return clone
}

// Validate ensures the action definition is executable.
func (def ActionDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: action name is required")
	}
	if strings.Contains(normalized.Name, string(os.PathSeparator)) {
		return fmt.Errorf("plugin: action name %s contains path separator", normalized.Name)
	}
	if normalized.Agent != "" {
		if err := layout.ValidateName(normalized.Agent); err != nil {
			return fmt.Errorf("plugin: action %s: agent: %w", normalized.Name, err)
		}
	}
	if len(normalized.Command) == 0 || normalized.Command[0] == "" {
		return fmt.Errorf("plugin: action %s: command is required", normalized.Name)
	}
	if normalized.Timeout != "" {
		d, err := time.ParseDuration(normalized.Timeout)
		if err != nil {
			return fmt.Errorf("plugin: action %s: timeout %q is not a duration", normalized.Name, normalized.Timeout)
		}
		if d <= 0 {
			return fmt.Errorf("plugin: action %s: timeout must be positive", normalized.Name)
		}
	}
	return nil
}

// ExecTimeout returns the per-invocation bound declared by the
// definition, or fallback when it declares none.
func (def ActionDefinition) ExecTimeout(fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(def.Timeout)); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Global reports whether the action is usable by any agent and as a
// workflow hook.
func (def ActionDefinition) Global() bool {
	return strings.TrimSpace(def.Agent) == ""
}

// sortedEnv flattens Env into KEY=value pairs in a stable order.
func (def ActionDefinition) sortedEnv() []string {
	if len(def.Env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(def.Env))
	for key, value := range def.Env {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}
