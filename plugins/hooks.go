package plugins

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kingrea/The-Relay/internal/logging"
	"github.com/kingrea/The-Relay/internal/workflow/engine"
)

// ActionHooks executes workflow success/failure hooks through the
// action catalog. A hook name resolves as a global action and
// receives the run record as JSON on its input. Hooks are
// best-effort: resolution and execution failures are logged, never
// surfaced, so a broken notifier cannot change a run's outcome.
type ActionHooks struct {
	invoker engine.Invoker
	logger  logging.Logger
}

// HookOption customizes ActionHooks.
type HookOption func(*ActionHooks)

// WithHookLogger sets the structured sink.
func WithHookLogger(l logging.Logger) HookOption {
	return func(h *ActionHooks) {
		h.logger = logging.OrNop(l)
	}
}

// NewActionHooks wires hook execution to an invoker.
func NewActionHooks(invoker engine.Invoker, opts ...HookOption) *ActionHooks {
	h := &ActionHooks{
		invoker: invoker,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunHook executes the named hook with the run record as input.
func (h *ActionHooks) RunHook(ctx context.Context, name string, run engine.Run) {
	payload, err := json.Marshal(run)
	if err != nil {
		h.logger.Warn("hook payload not encodable", "hook", name, "run", run.ID, "error", err)
		return
	}
	_, err = h.invoker.Invoke(ctx, engine.Request{
		Action: name,
		Input:  string(payload),
	})
	switch {
	case errors.Is(err, ErrActionNotFound):
		h.logger.Debug("hook has no registered action", "hook", name, "run", run.ID)
	case err != nil:
		h.logger.Warn("hook failed", "hook", name, "run", run.ID, "error", err)
	default:
		h.logger.Info("hook executed", "hook", name, "run", run.ID)
	}
}
