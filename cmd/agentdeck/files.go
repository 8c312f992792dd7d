package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func filesCmd() *cobra.Command {
	var ignore []string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse files in the agent's working directory",
	}

	listCmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List remote files",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			ctx, cancel := requestContext()
			defer cancel()

			entries, err := apiClient().ListFiles(ctx, agent, path, ignore)
			exitOnError(err)

			for _, e := range entries {
				if e.IsDirectory {
					fmt.Printf("%s/\n", e.Name)
					continue
				}
				fmt.Printf("%s (%d bytes)\n", e.Name, e.Size)
			}
		},
	}
	listCmd.Flags().StringSliceVar(&ignore, "ignore", []string{"node_modules/**", ".git/**"}, "Glob patterns to hide")

	catCmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			content, err := apiClient().ReadFile(ctx, agent, args[0])
			exitOnError(err)

			fmt.Print(content)
		},
	}

	writeCmd := &cobra.Command{
		Use:   "write <path> <local-file>",
		Short: "Upload a local file to the remote path",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[1])
			exitOnError(err)

			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().WriteFile(ctx, agent, args[0], string(data)))
			fmt.Printf("Wrote %s\n", args[0])
		},
	}

	cmd.AddCommand(listCmd, catCmd, writeCmd)
	return cmd
}
