package plugins

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/workflow/engine"
)

func newExecHarness(t *testing.T, defs ...ActionDefinition) (*ExecInvoker, *layout.Namespace) {
	t.Helper()
	ns := layout.New(t.TempDir())
	if err := ns.Initialize(); err != nil {
		t.Fatalf("initialize namespace: %v", err)
	}
	catalog := NewCatalog()
	for _, def := range defs {
		if err := catalog.Register(DefinitionFile{Definition: def, Path: def.Name + ".yaml"}); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	return NewExecInvoker(catalog, ns), ns
}

func TestExecInvokerRunsCommandWithInput(t *testing.T) {
	invoker, _ := newExecHarness(t, ActionDefinition{
		Name:    "shout",
		Agent:   "writer",
		Command: []string{"sh", "-c", "tr a-z A-Z"},
	})
	result, err := invoker.Invoke(context.Background(), engine.Request{
		Agent:  "writer",
		Action: "shout",
		Input:  "quiet words",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Output != "QUIET WORDS" {
		t.Fatalf("stdin should feed the command, got %q", result.Output)
	}
}

func TestExecInvokerExportsEnvironment(t *testing.T) {
	invoker, _ := newExecHarness(t, ActionDefinition{
		Name:    "report",
		Agent:   "writer",
		Command: []string{"sh", "-c", `printf '%s/%s/%s' "$RELAY_AGENT" "$RELAY_ACTION" "$GREETING"`},
		Env:     map[string]string{"GREETING": "hello"},
	})
	result, err := invoker.Invoke(context.Background(), engine.Request{Agent: "writer", Action: "report"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Output != "writer/report/hello" {
		t.Fatalf("environment not exported: %q", result.Output)
	}
}

func TestExecInvokerRunsInAgentDirectory(t *testing.T) {
	invoker, ns := newExecHarness(t, ActionDefinition{
		Name:    "where",
		Agent:   "writer",
		Command: []string{"sh", "-c", "pwd"},
	})
	if err := ns.Provision("writer"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	result, err := invoker.Invoke(context.Background(), engine.Request{Agent: "writer", Action: "where"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Output != ns.AgentPath("writer") {
		t.Fatalf("command should run in the agent dir, got %q want %q", result.Output, ns.AgentPath("writer"))
	}
}

func TestExecInvokerUnknownAction(t *testing.T) {
	invoker, _ := newExecHarness(t)
	_, err := invoker.Invoke(context.Background(), engine.Request{Agent: "writer", Action: "vanish"})
	if !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}

func TestExecInvokerReportsFailureDetail(t *testing.T) {
	invoker, _ := newExecHarness(t, ActionDefinition{
		Name:    "explode",
		Agent:   "writer",
		Command: []string{"sh", "-c", "echo broken pipe >&2; exit 3"},
	})
	_, err := invoker.Invoke(context.Background(), engine.Request{Agent: "writer", Action: "explode"})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("stderr detail should surface: %v", err)
	}
}

func TestExecInvokerHonorsActionTimeout(t *testing.T) {
	invoker, _ := newExecHarness(t, ActionDefinition{
		Name:    "stall",
		Agent:   "writer",
		Command: []string{"sleep", "30"},
		Timeout: "50ms",
	})
	_, err := invoker.Invoke(context.Background(), engine.Request{Agent: "writer", Action: "stall"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestExecInvokerGlobalFallback(t *testing.T) {
	invoker, _ := newExecHarness(t, ActionDefinition{
		Name:    "echo-agent",
		Command: []string{"sh", "-c", `printf '%s' "$RELAY_AGENT"`},
	})
	result, err := invoker.Invoke(context.Background(), engine.Request{Agent: "editor", Action: "echo-agent"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Output != "editor" {
		t.Fatalf("global action should serve any agent, got %q", result.Output)
	}
}
