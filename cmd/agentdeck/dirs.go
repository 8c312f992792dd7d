package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func dirsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirs",
		Short: "Server-side directory helpers",
	}

	checkCmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a working directory on the server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			res, err := apiClient().ValidateDirectory(ctx, args[0])
			exitOnError(err)

			fmt.Println(renderer().DirectoryCheck(args[0], res))
		},
	}

	createCmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create a working directory on the server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().CreateDirectory(ctx, args[0]))
			fmt.Printf("Created %s\n", args[0])
		},
	}

	cmd.AddCommand(checkCmd, createCmd)
	return cmd
}
