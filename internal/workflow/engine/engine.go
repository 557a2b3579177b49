package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/The-Relay/internal/logging"
	"github.com/kingrea/The-Relay/internal/workflow"
)

// ErrStepFailed wraps every run abort caused by a failing step, so
// callers can distinguish execution failures from storage errors.
var ErrStepFailed = errors.New("workflow engine: step failed")

// DefaultStepTimeout bounds one action invocation unless configured
// otherwise.
const DefaultStepTimeout = 10 * time.Minute

// Request asks the collaborator to perform one agent action.
type Request struct {
	Agent  string
	Action string
	Input  string
}

// Result is the collaborator's answer for one step.
type Result struct {
	Output string
}

// Invoker executes agent actions. Implementations own retries and
// transport; the engine only applies the per-step timeout and treats
// any returned error as step failure.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Hooks receives the on_success / on_failure notifications. Hook
// execution is best-effort: a failing hook never changes the outcome
// of the run it observes.
type Hooks interface {
	RunHook(ctx context.Context, name string, run Run)
}

// Engine executes workflow definitions.
type Engine struct {
	invoker     Invoker
	runs        *RunStore
	hooks       Hooks
	logger      logging.Logger
	now         func() time.Time
	newID       func() string
	stepTimeout time.Duration
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.OrNop(l)
	}
}

// WithHooks installs the hook runner. The default logs hook names
// without executing anything.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		if h != nil {
			e.hooks = h
		}
	}
}

// WithStepTimeout bounds each action invocation.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithIDSource overrides the run ID disambiguator.
func WithIDSource(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// New wires an engine to its collaborator and run store.
func New(invoker Invoker, runs *RunStore, opts ...Option) (*Engine, error) {
	if invoker == nil {
		return nil, fmt.Errorf("workflow engine: invoker is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("workflow engine: run store is required")
	}
	e := &Engine{
		invoker:     invoker,
		runs:        runs,
		logger:      logging.Nop(),
		now:         time.Now,
		newID:       uuid.NewString,
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hooks == nil {
		e.hooks = logHooks{logger: e.logger}
	}
	return e, nil
}

// Run executes def with the supplied external seeds. The returned Run
// is the final persisted record; the error is non-nil when the run
// failed or could not be recorded.
func (e *Engine) Run(ctx context.Context, def workflow.Definition, seeds map[string]string) (Run, error) {
	norm, err := def.Normalized()
	if err != nil {
		return Run{}, err
	}

	run := Run{
		ID:        e.generateRunID(norm.Name),
		Workflow:  norm.Name,
		Version:   norm.Version,
		Status:    StatusPending,
		Seeds:     seeds,
		StartedAt: e.now().UTC(),
	}
	if err := e.runs.Save(run); err != nil {
		return run, err
	}

	run.Status = StatusRunning
	if err := e.runs.Save(run); err != nil {
		return run, err
	}
	e.logger.Info("workflow run started", "workflow", norm.Name, "run", run.ID, "steps", len(norm.Steps))

	outputs := map[string]string{}
	carry := ""
	for _, step := range norm.Steps {
		result := StepResult{
			Order:     step.Order,
			Agent:     step.Agent,
			Action:    step.Action,
			Status:    StatusRunning,
			StartedAt: e.now().UTC(),
		}

		input, err := resolveInput(step, outputs, seeds, carry)
		if err == nil {
			result.Input = input
			var output string
			output, err = e.invokeStep(ctx, step, input)
			if err == nil {
				result.Output = output
				result.Status = StatusSucceeded
				result.FinishedAt = e.now().UTC()
				run.Steps = append(run.Steps, result)
				if step.Output != "" {
					outputs[step.Output] = output
				}
				carry = output
				if err := e.runs.Save(run); err != nil {
					return run, err
				}
				e.logger.Debug("step succeeded", "run", run.ID, "step", step.Order, "agent", step.Agent, "action", step.Action)
				continue
			}
		}

		result.Status = StatusFailed
		result.Error = err.Error()
		result.FinishedAt = e.now().UTC()
		run.Steps = append(run.Steps, result)
		run.Status = StatusFailed
		run.FailedStep = step.Order
		run.Error = fmt.Sprintf("step %d (%s/%s): %v", step.Order, step.Agent, step.Action, err)
		run.FinishedAt = e.now().UTC()
		if saveErr := e.runs.Save(run); saveErr != nil {
			return run, saveErr
		}

		e.logger.Warn("workflow run failed", "run", run.ID, "step", step.Order, "error", err)
		e.fireHook(ctx, norm.OnFailure, run)
		return run, fmt.Errorf("%w: run %s: %s", ErrStepFailed, run.ID, run.Error)
	}

	run.Status = StatusSucceeded
	run.FinishedAt = e.now().UTC()
	if err := e.runs.Save(run); err != nil {
		return run, err
	}

	e.logger.Info("workflow run succeeded", "run", run.ID, "workflow", norm.Name)
	e.fireHook(ctx, norm.OnSuccess, run)
	return run, nil
}

func (e *Engine) invokeStep(ctx context.Context, step workflow.Step, input string) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	result, err := e.invoker.Invoke(stepCtx, Request{
		Agent:  step.Agent,
		Action: step.Action,
		Input:  input,
	})
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", e.stepTimeout, err)
		}
		return "", err
	}
	return result.Output, nil
}

func (e *Engine) fireHook(ctx context.Context, name string, run Run) {
	if name == "" {
		return
	}
	e.hooks.RunHook(ctx, name, run)
}

func (e *Engine) generateRunID(workflowName string) string {
	id := strings.ReplaceAll(e.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%d-%s", workflowName, e.now().UnixNano(), id)
}

// resolveInput finds the step's input: a named prior output, a named
// external seed, or the previous step's output when unnamed.
func resolveInput(step workflow.Step, outputs, seeds map[string]string, carry string) (string, error) {
	if step.Input == "" {
		return carry, nil
	}
	if value, ok := outputs[step.Input]; ok {
		return value, nil
	}
	if value, ok := seeds[step.Input]; ok {
		return value, nil
	}
	return "", fmt.Errorf("input %q is neither a prior output nor a supplied seed", step.Input)
}

// logHooks is the default hook runner: it records that a hook would
// fire without executing anything.
type logHooks struct {
	logger logging.Logger
}

func (h logHooks) RunHook(_ context.Context, name string, run Run) {
	h.logger.Info("workflow hook", "hook", name, "run", run.ID, "status", string(run.Status))
}
