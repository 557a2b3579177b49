// cmd/relay/workflow.go
//
// Workflow commands: listing and validating definitions, running one
// through the engine with the exec-backed action catalog, and
// inspecting recorded runs.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/The-Relay/internal/workflow"
	"github.com/kingrea/The-Relay/internal/workflow/engine"
	"github.com/kingrea/The-Relay/plugins"
)

func newWorkflowCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and run workflow definitions",
	}
	cmd.AddCommand(
		newWorkflowListCommand(app),
		newWorkflowValidateCommand(app),
		newWorkflowRunCommand(app),
	)
	return cmd
}

func newWorkflowListCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow definitions in the workflows directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := workflow.LoadDir(app.ns.WorkflowsPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(defs) == 0 {
				fmt.Fprintf(out, "no workflow definitions under %s\n", app.ns.WorkflowsPath())
				return nil
			}
			for _, def := range defs {
				fmt.Fprintf(out, "%s v%s (%d steps)\n", def.Name, def.Version, len(def.Steps))
			}
			return nil
		},
	}
}

func newWorkflowValidateCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow definition file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %s v%s (%d steps)\n", def.Name, def.Version, len(def.Steps))
			return nil
		},
	}
}

func newWorkflowRunCommand(app *appContext) *cobra.Command {
	var seedPairs []string
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute a named workflow through the action catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := workflow.Find(app.ns.WorkflowsPath(), args[0])
			if err != nil {
				return err
			}
			seeds, err := parseSeeds(seedPairs)
			if err != nil {
				return err
			}
			catalog, err := plugins.LoadCatalog(app.ns.ActionsPath())
			if err != nil {
				return err
			}
			invoker := plugins.NewExecInvoker(catalog, app.ns, plugins.WithInvokerLogger(app.logger))
			hooks := plugins.NewActionHooks(invoker, plugins.WithHookLogger(app.logger))
			runs := engine.NewRunStore(app.ns.RunsPath())
			eng, err := engine.New(invoker, runs,
				engine.WithLogger(app.logger),
				engine.WithHooks(hooks),
				engine.WithStepTimeout(app.cfg.Workflow.StepTimeout),
			)
			if err != nil {
				return err
			}
			run, err := eng.Run(cmd.Context(), def, seeds)
			printRunSummary(cmd.OutOrStdout(), run)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&seedPairs, "seed", nil, "external input as name=value (repeatable)")
	return cmd
}

func newRunsCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs [id]",
		Short: "List recorded workflow runs, or show one in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := engine.NewRunStore(app.ns.RunsPath())
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := store.Load(args[0])
				if err != nil {
					return err
				}
				encoded, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return fmt.Errorf("encode run %s: %w", args[0], err)
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}
			runs, err := store.List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no workflow runs recorded")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %-9s  %s  %d step(s)\n",
					run.ID, run.Status, run.StartedAt.UTC().Format(time.RFC3339), len(run.Steps))
			}
			return nil
		},
	}
}

func parseSeeds(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	seeds := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("seed %q must be name=value", pair)
		}
		seeds[strings.TrimSpace(name)] = value
	}
	return seeds, nil
}

func printRunSummary(out io.Writer, run engine.Run) {
	if run.ID == "" {
		return
	}
	fmt.Fprintf(out, "run %s: %s\n", run.ID, run.Status)
	for _, step := range run.Steps {
		line := fmt.Sprintf("  %d. %s/%s %s", step.Order, step.Agent, step.Action, step.Status)
		if step.Error != "" {
			line += ": " + step.Error
		}
		fmt.Fprintln(out, line)
	}
}
