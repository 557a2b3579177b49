package plugins

import (
	"strings"
	"testing"
	"time"
)

func TestActionDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		def     ActionDefinition
		wantErr string
	}{
		{
			name: "valid scoped action",
			def:  ActionDefinition{Name: "gather", Agent: "researcher", Command: []string{"sh", "-c", "true"}},
		},
		{
			name: "valid global action with timeout",
			def:  ActionDefinition{Name: "notify", Command: []string{"notify-send"}, Timeout: "90s"},
		},
		{
			name:    "missing name",
			def:     ActionDefinition{Command: []string{"true"}},
			wantErr: "name is required",
		},
		{
			name:    "missing command",
			def:     ActionDefinition{Name: "gather"},
			wantErr: "command is required",
		},
		{
			name:    "invalid agent name",
			def:     ActionDefinition{Name: "gather", Agent: "../escape", Command: []string{"true"}},
			wantErr: "agent",
		},
		{
			name:    "unparseable timeout",
			def:     ActionDefinition{Name: "gather", Command: []string{"true"}, Timeout: "soon"},
			wantErr: "not a duration",
		},
		{
			name:    "negative timeout",
			def:     ActionDefinition{Name: "gather", Command: []string{"true"}, Timeout: "-5s"},
			wantErr: "must be positive",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestActionDefinitionNormalizedTrims(t *testing.T) {
	def := ActionDefinition{
		Name:    "  deploy  ",
		Agent:   " operator ",
		Command: []string{" sh ", "-c", " echo hi "},
		Env:     map[string]string{" KEY ": " value ", "": "dropped"},
	}
	normalized := def.Normalized()
	if normalized.Name != "deploy" || normalized.Agent != "operator" {
		t.Fatalf("names not trimmed: %+v", normalized)
	}
	if normalized.Command[0] != "sh" || normalized.Command[2] != "echo hi" {
		t.Fatalf("command not trimmed: %+v", normalized.Command)
	}
	if len(normalized.Env) != 1 || normalized.Env["KEY"] != "value" {
		t.Fatalf("env not normalized: %+v", normalized.Env)
	}
}

func TestActionDefinitionExecTimeout(t *testing.T) {
	def := ActionDefinition{Name: "slow", Command: []string{"true"}, Timeout: "200ms"}
	if got := def.ExecTimeout(time.Minute); got != 200*time.Millisecond {
		t.Fatalf("declared timeout should win, got %s", got)
	}
	bare := ActionDefinition{Name: "plain", Command: []string{"true"}}
	if got := bare.ExecTimeout(time.Minute); got != time.Minute {
		t.Fatalf("fallback should apply, got %s", got)
	}
}

func TestActionDefinitionGlobal(t *testing.T) {
	if !(ActionDefinition{Name: "notify"}).Global() {
		t.Fatalf("agentless action should be global")
	}
	if (ActionDefinition{Name: "gather", Agent: "researcher"}).Global() {
		t.Fatalf("scoped action should not be global")
	}
}
