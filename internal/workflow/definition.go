// internal/workflow/definition.go
//
// Workflow definitions. A workflow names a sequence of steps, each
// binding one agent action, with optional success and failure hooks.
// Step order values define a strict total execution order: they must
// be unique and consecutive from 1, anything else is rejected at load.

package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidWorkflow is returned when a definition fails validation.
var ErrInvalidWorkflow = errors.New("workflow: invalid definition")

// Step binds one position in the execution order to an agent action.
// Input names either a prior step's declared output or an externally
// supplied seed; when empty, the previous step's output is threaded
// through implicitly.
type Step struct {
	Order  int    `json:"order" yaml:"order"`
	Agent  string `json:"agent" yaml:"agent"`
	Action string `json:"action" yaml:"action"`
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Definition declares an executable workflow.
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`
	OnSuccess   string `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure   string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := def
	if len(def.Steps) > 0 {
		clone.Steps = make([]Step, len(def.Steps))
		copy(clone.Steps, def.Steps)
	}
	return clone
}

// Normalized clones the definition, sorts steps into execution order,
// and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	clone.Version = strings.TrimSpace(clone.Version)
	sort.SliceStable(clone.Steps, func(i, j int) bool {
		return clone.Steps[i].Order < clone.Steps[j].Order
	})
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// Validate ensures the definition is self-consistent. Steps are
// expected in ascending order; Normalized establishes that.
func (def Definition) Validate() error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidWorkflow)
	}
	if def.Version == "" {
		return fmt.Errorf("%w: workflow %s: version is required", ErrInvalidWorkflow, def.Name)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: workflow %s: at least one step is required", ErrInvalidWorkflow, def.Name)
	}

	outputs := map[string]int{}
	for idx, step := range def.Steps {
		if step.Order != idx+1 {
			return fmt.Errorf("%w: workflow %s: step orders must be unique and consecutive from 1, position %d has order %d",
				ErrInvalidWorkflow, def.Name, idx+1, step.Order)
		}
		if strings.TrimSpace(step.Agent) == "" {
			return fmt.Errorf("%w: workflow %s step %d: agent is required", ErrInvalidWorkflow, def.Name, step.Order)
		}
		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("%w: workflow %s step %d: action is required", ErrInvalidWorkflow, def.Name, step.Order)
		}
		if step.Output != "" {
			if prior, exists := outputs[step.Output]; exists {
				return fmt.Errorf("%w: workflow %s step %d: output %q already declared by step %d",
					ErrInvalidWorkflow, def.Name, step.Order, step.Output, prior)
			}
			outputs[step.Output] = step.Order
		}
	}

	// A named input may be a prior step's output or an external seed,
	// but never an output that only exists later in the order.
	for _, step := range def.Steps {
		if step.Input == "" {
			continue
		}
		if producer, exists := outputs[step.Input]; exists && producer >= step.Order {
			return fmt.Errorf("%w: workflow %s step %d: input %q references output of step %d, which runs later",
				ErrInvalidWorkflow, def.Name, step.Order, step.Input, producer)
		}
	}
	return nil
}

// SeedNames returns the inputs that no step produces, in order of
// first use. These must be supplied externally when the run starts.
func (def Definition) SeedNames() []string {
	produced := map[string]bool{}
	for _, step := range def.Steps {
		if step.Output != "" {
			produced[step.Output] = true
		}
	}
	var seeds []string
	seen := map[string]bool{}
	for _, step := range def.Steps {
		if step.Input == "" || produced[step.Input] || seen[step.Input] {
			continue
		}
		seen[step.Input] = true
		seeds = append(seeds, step.Input)
	}
	return seeds
}
