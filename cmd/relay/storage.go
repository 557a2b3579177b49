// cmd/relay/storage.go
//
// Commands over the per-agent storage areas: provisioning, saving
// outputs, reading inputs, and listing what an agent holds.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvisionCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <agent>",
		Short: "Create an agent's input/output/state/cache areas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			if err := app.ns.Provision(agent); err != nil {
				return err
			}
			if err := app.cfg.EnsureConfigFile(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s under %s\n", agent, app.ns.AgentPath(agent))
			return nil
		},
	}
}

func newSaveCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <agent> <content> [filename]",
		Short: "Write content into an agent's output area",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, content := args[0], args[1]
			filename := ""
			if len(args) == 3 {
				filename = args[2]
			}
			name, err := app.ns.SaveOutput(agent, filename, []byte(content))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s/output/%s\n", agent, name)
			return nil
		},
	}
}

func newReadInputCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "read-input <agent> <filename>",
		Short: "Print one file from an agent's input area",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.ns.ReadInput(args[0], args[1])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newListCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <agent>",
		Short: "List the files in each of an agent's storage areas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := app.ns.Describe(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, info.Name)
			for _, area := range info.Areas {
				fmt.Fprintf(out, "  %s (%d)\n", area.Area, len(area.Files))
				for _, file := range area.Files {
					fmt.Fprintf(out, "    %s\n", file)
				}
			}
			return nil
		},
	}
}
