package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/agentdeck/internal/agents"
)

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Agent management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List supported agents",
		Run: func(cmd *cobra.Command, args []string) {
			for _, kind := range agents.All() {
				marker := " "
				if kind == agent {
					marker = "*"
				}
				resume := ""
				if kind.SupportsResume() {
					resume = " (resumable)"
				}
				fmt.Printf("%s %s %-12s %s%s\n", marker, kind.Icon(), kind, kind.Label(), resume)
			}
		},
	}

	selectCmd := &cobra.Command{
		Use:   "select <agent>",
		Short: "Select the server-side active agent",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kind, ok := agents.Parse(args[0])
			if !ok {
				exitOnError(fmt.Errorf("unknown agent %q", args[0]))
			}

			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().SelectAgent(ctx, kind))
			fmt.Printf("Selected %s\n", kind.Label())
		},
	}

	cmd.AddCommand(listCmd, selectCmd)
	return cmd
}
