// cmd/relay/handoff.go
//
// Handoff channel commands. send commits a message into the target's
// input area, inbox lists what is pending, and consume reads a message
// and acknowledges it by moving it into processed/.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/The-Relay/internal/handoff"
)

func newSendCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send <source> <target> <json>",
		Short: "Hand a JSON payload from one agent to another",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := args[0], args[1]
			var payload map[string]any
			if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
				return fmt.Errorf("handoff payload must be a JSON object: %w", err)
			}
			channel := handoff.New(app.ns, handoff.WithLogger(app.logger))
			name, err := channel.Send(cmd.Context(), source, target, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %s to %s\n", name, target)
			return nil
		},
	}
}

func newInboxCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox <agent>",
		Short: "List pending handoff messages for an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			channel := handoff.New(app.ns, handoff.WithLogger(app.logger))
			names, err := channel.List(agent)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "no pending handoffs for %s\n", agent)
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newConsumeCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "consume <agent> <message>",
		Short: "Read a handoff message and acknowledge it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, name := args[0], args[1]
			channel := handoff.New(app.ns, handoff.WithLogger(app.logger))
			msg, err := channel.Consume(agent, name)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(msg, "", "  ")
			if err != nil {
				return fmt.Errorf("encode handoff %s: %w", name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}
