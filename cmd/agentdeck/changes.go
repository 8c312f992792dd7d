package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/agentdeck/internal/protocol"
)

// diffLister is the slice of the API client the list command needs.
type diffLister interface {
	SessionDiffs(ctx context.Context, sessionID string) ([]protocol.Diff, error)
	PendingDiffs(ctx context.Context, sessionID string) ([]protocol.Diff, error)
}

// fetchDiffs issues exactly one request for the requested view.
func fetchDiffs(ctx context.Context, svc diffLister, sessionID string, pendingOnly bool) ([]protocol.Diff, error) {
	if pendingOnly {
		return svc.PendingDiffs(ctx, sessionID)
	}
	return svc.SessionDiffs(ctx, sessionID)
}

func changesCmd() *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Review proposed file changes",
		Long:  "Inspect, accept and deny file changes an agent has proposed",
	}

	listCmd := &cobra.Command{
		Use:   "list <session-id>",
		Short: "List changes for a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			diffs, err := fetchDiffs(ctx, apiClient(), args[0], pendingOnly)
			exitOnError(err)

			fmt.Print(renderer().Diffs(diffs))
		},
	}
	listCmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only show changes awaiting review")

	acceptCmd := &cobra.Command{
		Use:   "accept <session-id> <diff-id>",
		Short: "Accept one change",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().AcceptDiff(ctx, args[0], args[1]))
			fmt.Printf("Accepted %s\n", args[1])
		},
	}

	denyCmd := &cobra.Command{
		Use:   "deny <session-id> <diff-id>",
		Short: "Deny one change",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().DenyDiff(ctx, args[0], args[1]))
			fmt.Printf("Denied %s\n", args[1])
		},
	}

	acceptAllCmd := &cobra.Command{
		Use:   "accept-all <session-id>",
		Short: "Accept every pending change",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().AcceptAllDiffs(ctx, args[0]))
			fmt.Println("Accepted all pending changes")
		},
	}

	cmd.AddCommand(listCmd, acceptCmd, denyCmd, acceptAllCmd)
	return cmd
}
