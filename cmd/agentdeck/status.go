package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which agents have live sessions",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			statuses, err := apiClient().AllStatus(ctx)
			exitOnError(err)

			fmt.Print(renderer().AgentStatuses(statuses))
		},
	}
}
