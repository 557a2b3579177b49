// cmd/relay/state.go
//
// Versioned state commands. set-state shifts the current snapshot into
// the previous slot before writing; get-state reads either slot.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/The-Relay/internal/state"
)

func newSetStateCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-state <agent> <json>",
		Short: "Replace an agent's state snapshot, retaining the previous one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			var doc map[string]any
			if err := json.Unmarshal([]byte(args[1]), &doc); err != nil {
				return fmt.Errorf("state document must be a JSON object: %w", err)
			}
			store := state.New(app.ns, state.WithLogger(app.logger))
			if err := store.Set(cmd.Context(), agent, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state saved for %s\n", agent)
			return nil
		},
	}
}

func newGetStateCommand(app *appContext) *cobra.Command {
	var previous bool
	cmd := &cobra.Command{
		Use:   "get-state <agent>",
		Short: "Print an agent's state snapshot as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.New(app.ns, state.WithLogger(app.logger))
			read := store.Get
			if previous {
				read = store.GetPrevious
			}
			snapshot, err := read(args[0])
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(snapshot.Document, "", "  ")
			if err != nil {
				return fmt.Errorf("encode state for %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	cmd.Flags().BoolVar(&previous, "previous", false, "read the retained previous snapshot instead of the current one")
	return cmd
}
