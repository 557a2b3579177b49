package workflow

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDefinitionRejectsMissingSteps(t *testing.T) {
	const payload = `
name: missing-steps
version: 1.0.0
steps: []
`
	_, err := ParseDefinition([]byte(payload))
	if !errors.Is(err, ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
	}
	if !strings.Contains(err.Error(), "at least one step is required") {
		t.Fatalf("unexpected error for missing steps: %v", err)
	}
}

func TestParseDefinitionRequiresNameAndVersion(t *testing.T) {
	const unnamed = `
version: 1.0.0
steps:
  - order: 1
    agent: writer
    action: draft
`
	if _, err := ParseDefinition([]byte(unnamed)); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("unexpected error for missing name: %v", err)
	}
	const unversioned = `
name: no-version
steps:
  - order: 1
    agent: writer
    action: draft
`
	if _, err := ParseDefinition([]byte(unversioned)); err == nil || !strings.Contains(err.Error(), "version is required") {
		t.Fatalf("unexpected error for missing version: %v", err)
	}
}

func TestParseDefinitionRejectsDuplicateOrders(t *testing.T) {
	const payload = `
name: duplicate-orders
version: 1.0.0
steps:
  - order: 1
    agent: researcher
    action: gather
  - order: 1
    agent: writer
    action: draft
`
	_, err := ParseDefinition([]byte(payload))
	if !errors.Is(err, ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
	}
	if !strings.Contains(err.Error(), "unique and consecutive") {
		t.Fatalf("unexpected error for duplicate orders: %v", err)
	}
}

func TestParseDefinitionRejectsOrderGaps(t *testing.T) {
	const payload = `
name: order-gap
version: 1.0.0
steps:
  - order: 1
    agent: researcher
    action: gather
  - order: 3
    agent: writer
    action: draft
`
	_, err := ParseDefinition([]byte(payload))
	if err == nil || !strings.Contains(err.Error(), "unique and consecutive") {
		t.Fatalf("unexpected error for order gap: %v", err)
	}
}

func TestParseDefinitionSortsStepsByOrder(t *testing.T) {
	const payload = `
name: shuffled
version: 1.0.0
steps:
  - order: 2
    agent: writer
    action: draft
  - order: 1
    agent: researcher
    action: gather
`
	def, err := ParseDefinition([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Steps[0].Agent != "researcher" || def.Steps[1].Agent != "writer" {
		t.Fatalf("steps not sorted into execution order: %+v", def.Steps)
	}
}

func TestParseDefinitionRequiresAgentAndAction(t *testing.T) {
	const payload = `
name: incomplete-step
version: 1.0.0
steps:
  - order: 1
    action: gather
`
	if _, err := ParseDefinition([]byte(payload)); err == nil || !strings.Contains(err.Error(), "agent is required") {
		t.Fatalf("unexpected error for missing agent: %v", err)
	}
	const actionless = `
name: incomplete-step
version: 1.0.0
steps:
  - order: 1
    agent: researcher
`
	if _, err := ParseDefinition([]byte(actionless)); err == nil || !strings.Contains(err.Error(), "action is required") {
		t.Fatalf("unexpected error for missing action: %v", err)
	}
}

func TestParseDefinitionRejectsDuplicateOutputs(t *testing.T) {
	const payload = `
name: duplicate-outputs
version: 1.0.0
steps:
  - order: 1
    agent: researcher
    action: gather
    output: notes
  - order: 2
    agent: writer
    action: draft
    output: notes
`
	_, err := ParseDefinition([]byte(payload))
	if err == nil || !strings.Contains(err.Error(), `output "notes" already declared by step 1`) {
		t.Fatalf("unexpected error for duplicate outputs: %v", err)
	}
}

func TestParseDefinitionRejectsForwardInputReferences(t *testing.T) {
	const payload = `
name: forward-reference
version: 1.0.0
steps:
  - order: 1
    agent: researcher
    action: gather
    input: summary
  - order: 2
    agent: writer
    action: draft
    output: summary
`
	_, err := ParseDefinition([]byte(payload))
	if err == nil || !strings.Contains(err.Error(), "which runs later") {
		t.Fatalf("unexpected error for forward reference: %v", err)
	}
}

func TestParseDefinitionAcceptsJSONPayload(t *testing.T) {
	const payload = `{
  "name": "publish",
  "version": "2.1.0",
  "on_failure": "alert",
  "steps": [
    {"order": 1, "agent": "researcher", "action": "gather", "output": "notes"},
    {"order": 2, "agent": "writer", "action": "draft", "input": "notes"}
  ]
}`
	def, err := ParseDefinition([]byte(payload))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if def.Name != "publish" || def.Version != "2.1.0" || def.OnFailure != "alert" {
		t.Fatalf("decoded definition mismatch: %+v", def)
	}
	if len(def.Steps) != 2 || def.Steps[1].Input != "notes" {
		t.Fatalf("decoded steps mismatch: %+v", def.Steps)
	}
}

func TestParseDefinitionRejectsEmptyPayload(t *testing.T) {
	if _, err := ParseDefinition([]byte("   \n")); !errors.Is(err, ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow for empty payload, got %v", err)
	}
}

func TestSeedNamesListsExternalInputs(t *testing.T) {
	def := Definition{
		Name:    "briefing",
		Version: "1.0.0",
		Steps: []Step{
			{Order: 1, Agent: "researcher", Action: "gather", Input: "topic", Output: "notes"},
			{Order: 2, Agent: "writer", Action: "draft", Input: "notes"},
			{Order: 3, Agent: "editor", Action: "polish", Input: "style-guide"},
			{Order: 4, Agent: "editor", Action: "verify", Input: "topic"},
		},
	}
	seeds := def.SeedNames()
	if len(seeds) != 2 || seeds[0] != "topic" || seeds[1] != "style-guide" {
		t.Fatalf("unexpected seed names: %v", seeds)
	}
}

func TestDefinitionCloneIsIndependent(t *testing.T) {
	def := Definition{
		Name:    "publish",
		Version: "1.0.0",
		Steps:   []Step{{Order: 1, Agent: "researcher", Action: "gather"}},
	}
	clone := def.Clone()
	clone.Steps[0].Agent = "impostor"
	if def.Steps[0].Agent != "researcher" {
		t.Fatalf("clone mutation leaked into the original: %+v", def.Steps)
	}
}
