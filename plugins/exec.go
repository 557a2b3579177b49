package plugins

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/logging"
	"github.com/kingrea/The-Relay/internal/workflow/engine"
)

// ExecInvoker runs catalog actions as local commands, implementing
// the workflow engine's Invoker contract. The step input is offered
// on stdin and in RELAY_INPUT; trimmed stdout becomes the step
// output. The engine owns the per-step timeout through the context;
// a definition's own timeout is applied as an inner bound.
type ExecInvoker struct {
	catalog *Catalog
	ns      *layout.Namespace
	logger  logging.Logger
}

// InvokerOption customizes an ExecInvoker.
type InvokerOption func(*ExecInvoker)

// WithInvokerLogger sets the structured sink.
func WithInvokerLogger(l logging.Logger) InvokerOption {
	return func(i *ExecInvoker) {
		i.logger = logging.OrNop(l)
	}
}

// NewExecInvoker wires an invoker to its catalog and namespace.
func NewExecInvoker(catalog *Catalog, ns *layout.Namespace, opts ...InvokerOption) *ExecInvoker {
	inv := &ExecInvoker{
		catalog: catalog,
		ns:      ns,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke resolves and executes the action bound to the request.
func (i *ExecInvoker) Invoke(ctx context.Context, req engine.Request) (engine.Result, error) {
	def, ok := i.catalog.Lookup(req.Agent, req.Action)
	if !ok {
		return engine.Result{}, fmt.Errorf("%w: %q for agent %q", ErrActionNotFound, req.Action, req.Agent)
	}

	if d := def.ExecTimeout(0); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, def.Command[0], def.Command[1:]...)
	cmd.Dir = i.workDir(def, req.Agent)
	cmd.Stdin = strings.NewReader(req.Input)
	cmd.Env = append(os.Environ(),
		"RELAY_ROOT="+i.ns.Root(),
		"RELAY_AGENT="+req.Agent,
		"RELAY_ACTION="+req.Action,
		"RELAY_INPUT="+req.Input,
	)
	cmd.Env = append(cmd.Env, def.sortedEnv()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.logger.Debug("invoking action", "agent", req.Agent, "action", req.Action, "command", def.Command[0])
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return engine.Result{}, fmt.Errorf("plugin: action %s for agent %q: %w", req.Action, req.Agent, ctxErr)
		}
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return engine.Result{}, fmt.Errorf("plugin: action %s for agent %q: %v: %s", req.Action, req.Agent, err, detail)
		}
		return engine.Result{}, fmt.Errorf("plugin: action %s for agent %q: %w", req.Action, req.Agent, err)
	}
	return engine.Result{Output: strings.TrimSpace(stdout.String())}, nil
}

// workDir picks the command's working directory: the definition's
// dir (resolved against the root when relative), else the agent's
// directory, else the storage root.
func (i *ExecInvoker) workDir(def ActionDefinition, agent string) string {
	if def.Dir != "" {
		if filepath.IsAbs(def.Dir) {
			return def.Dir
		}
		return filepath.Join(i.ns.Root(), def.Dir)
	}
	if agent != "" && i.ns.Exists(agent) {
		return i.ns.AgentPath(agent)
	}
	return i.ns.Root()
}
