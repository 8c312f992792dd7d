package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/agentdeck/internal/clock"
	"github.com/joss/agentdeck/internal/config"
	"github.com/joss/agentdeck/internal/device"
	"github.com/joss/agentdeck/internal/protocol"
	"github.com/joss/agentdeck/internal/stream"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse stored sessions",
		Long:  "List, inspect and delete sessions recorded on the server",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions for the selected agent",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			sessions, err := apiClient().ListSessions(ctx, agent)
			exitOnError(err)

			fmt.Print(renderer().Sessions(agent, sessions))
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session transcript",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			detail, err := apiClient().GetSession(ctx, agent, args[0])
			exitOnError(err)

			fmt.Print(renderer().Transcript(detail))
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <session-id>",
		Short:   "Delete a stored session",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := requestContext()
			defer cancel()

			exitOnError(apiClient().DeleteSession(ctx, agent, args[0]))
			fmt.Printf("Deleted session %s\n", args[0])
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a stored session in the chat",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if !agent.SupportsResume() {
				exitOnError(fmt.Errorf("%s does not support resuming sessions", agent.Label()))
			}

			ctx, cancel := requestContext()
			detail, err := apiClient().GetSession(ctx, agent, args[0])
			cancel()
			exitOnError(err)

			s := detail.Session
			if s.AgentAPISessionID == "" {
				exitOnError(fmt.Errorf("session %s is not resumable", s.ID))
			}

			// Stage a fresh resume token; chat startup consumes it.
			exitOnError(config.EnsureDir(config.GetPaths().Data))
			store, err := device.Open(config.GetPaths().Data, clock.New())
			exitOnError(err)
			ctx, cancel = requestContext()
			err = store.SaveResumeToken(ctx, device.ResumeToken{
				Token:            s.ID,
				SessionID:        s.ID,
				AgentType:        string(agent),
				SessionName:      s.Name,
				WorkingDirectory: s.WorkingDirectory,
			})
			cancel()
			store.Close()
			exitOnError(err)

			runChat(s.WorkingDirectory)
		},
	}

	replayCmd := &cobra.Command{
		Use:   "replay <capture-file>",
		Short: "Replay a captured event stream as a transcript",
		Long:  "Render a JSON-lines capture (AGENTDECK_CAPTURE) back into the messages a live client would have shown",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(args[0])
			exitOnError(err)
			defer f.Close()
			exitOnError(replayCapture(f))
		},
	}

	cmd.AddCommand(listCmd, showCmd, resumeCmd, replayCmd, deleteCmd)
	return cmd
}

// replayCapture runs captured envelopes through the same coalescer the
// live chat uses, so replayed output groups into the same messages.
func replayCapture(r io.Reader) error {
	dec := protocol.NewDecoder(r)
	c := stream.New(clock.NewFake(), agent)
	c.OnMessage(func(m stream.Message) {
		switch m.Kind {
		case stream.KindAgent:
			fmt.Printf("%s %s\n", agent.Icon(), m.Content)
		default:
			fmt.Println(color.HiBlackString("· " + m.Content))
		}
	})

	for {
		env, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if env.Event == protocol.EvAgentOutput {
			p, err := env.AsAgentOutput()
			if err != nil {
				return err
			}
			c.OnChunk(p.Content)
			continue
		}

		// Any other event ends the in-flight turn, as it would live.
		c.Finalize()
		fmt.Println(color.HiBlackString("· " + string(env.Event)))
	}

	c.Finalize()
	return nil
}
