// Package main provides the agentdeck CLI entrypoint.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joss/agentdeck/internal/agents"
	"github.com/joss/agentdeck/internal/config"
)

var (
	version = "0.1.0"
	pretty  = true
	agent   agents.Kind
)

func main() {
	var agentFlag string

	rootCmd := &cobra.Command{
		Use:   "agentdeck [path]",
		Short: "Remote cockpit for AI coding agents",
		Long: `agentdeck drives claude, gemini, cursor and codex sessions running
on an agent server from any terminal.

Usage modes:
  agentdeck            Open the interactive chat (current directory)
  agentdeck <path>     Open the interactive chat in the given directory
  agentdeck <command>  Run a specific command (see below)

Use 'agentdeck status' to see which agents have live sessions.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env := config.Env()
			if env.NoColor {
				pretty = false
			}
			kind, err := pickAgent(agentFlag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			agent = kind
		},
		Run: func(cmd *cobra.Command, args []string) {
			workDir, _ := os.Getwd()
			if len(args) > 0 {
				path := args[0]
				if !filepath.IsAbs(path) {
					path = filepath.Join(workDir, path)
				}
				workDir = path
			}
			runChat(workDir)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&agentFlag, "agent", "a", "", "Agent to drive (claude|gemini|cursor|codex)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Sessions:"},
		&cobra.Group{ID: "server", Title: "Server:"},
	)

	chat := chatCmd()
	chat.GroupID = "session"
	rootCmd.AddCommand(chat)

	sessions := sessionsCmd()
	sessions.GroupID = "session"
	rootCmd.AddCommand(sessions)

	changes := changesCmd()
	changes.GroupID = "session"
	rootCmd.AddCommand(changes)

	status := statusCmd()
	status.GroupID = "server"
	rootCmd.AddCommand(status)

	agentsC := agentsCmd()
	agentsC.GroupID = "server"
	rootCmd.AddCommand(agentsC)

	dirs := dirsCmd()
	dirs.GroupID = "server"
	rootCmd.AddCommand(dirs)

	files := filesCmd()
	files.GroupID = "server"
	rootCmd.AddCommand(files)

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pickAgent resolves the agent kind from the flag, falling back to the
// environment default.
func pickAgent(flag string) (agents.Kind, error) {
	raw := flag
	if raw == "" {
		raw = config.Env().Agent
	}
	kind, ok := agents.Parse(raw)
	if !ok {
		return "", fmt.Errorf("unknown agent %q (expected one of: claude, gemini, cursor, codex)", raw)
	}
	return kind, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show agentdeck version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentdeck version %s\n", version)
		},
	}
}
