package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/agentdeck/internal/api"
	"github.com/joss/agentdeck/internal/clock"
	"github.com/joss/agentdeck/internal/config"
	"github.com/joss/agentdeck/internal/device"
	"github.com/joss/agentdeck/internal/logging"
	"github.com/joss/agentdeck/internal/session"
	"github.com/joss/agentdeck/internal/transport"
	"github.com/joss/agentdeck/internal/tui"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [path]",
		Short: "Open the interactive chat",
		Long:  "Start or attach to an agent session in a full-screen terminal UI",
		Args:  cobra.MaximumNArgs(1),
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
}

// runChat wires the transport, device store, session controller and TUI
// together and blocks until the UI exits.
func runChat(workDir string) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: chat mode requires a terminal")
		os.Exit(1)
	}

	env := config.Env()
	paths := config.GetPaths()

	// Keep log output off the alternate screen.
	if err := config.EnsureDir(paths.Logs); err == nil {
		if f, err := os.OpenFile(filepath.Join(paths.Logs, "client.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			logging.SetOutput(f)
			defer f.Close()
		}
	}

	clk := clock.New()

	exitOnError(config.EnsureDir(paths.Data))
	store, err := device.Open(paths.Data, clk)
	exitOnError(err)
	defer store.Close()

	client := api.NewClient(env.ServerURL)
	channel := transport.New(env.ChannelURL())

	if env.CapturePath != "" {
		f, err := os.OpenFile(env.CapturePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		exitOnError(err)
		defer f.Close()
		channel.CaptureTo(f)
	}

	shared := tui.NewShared()
	ctrl := session.NewController(session.Config{
		Channel: channel,
		Clock:   clk,
		Store:   store,
		Status:  client,
		Diffs:   client,
		Agent:   agent,
		Hooks:   shared.SessionHooks(),
	})

	model := tui.NewChatModel(ctrl, shared)
	program := tea.NewProgram(model, tea.WithAltScreen())
	shared.SetProgram(program)

	ctx := context.Background()
	if err := channel.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", env.ChannelURL(), err)
		os.Exit(1)
	}
	defer channel.Close()

	exitOnError(ctrl.Startup(ctx))

	// Nothing live and nothing to resume: start fresh in workDir.
	if ctrl.Status() == session.StatusIdle {
		exitOnError(ensureWorkDir(ctx, client, workDir))
		if err := ctrl.Start(filepath.Base(workDir), workDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ensureWorkDir validates the working directory on the server, creating
// it when the server says it can.
func ensureWorkDir(ctx context.Context, client *api.Client, workDir string) error {
	res, err := client.ValidateDirectory(ctx, workDir)
	if err != nil {
		return err
	}
	if res.Valid {
		return nil
	}
	if !res.CanCreate {
		return fmt.Errorf("invalid working directory %s: %s", workDir, res.Error)
	}
	return client.CreateDirectory(ctx, workDir)
}
