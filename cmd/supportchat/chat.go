package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/agent"
	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/session"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

const chatLongDesc string = `Start an interactive chat with the agent backend.

Each line you type is sent as an outgoing message and the agent's reply is
printed as it streams in. Side-channel output (e.g. ratings or routing notes)
is shown under the reply once it completes.

Examples:
  supportchat --backend http://localhost:8080 --token $TOKEN
  supportchat --thread 0190f3a2-... --role csr --speaking-user "Dana"`

type chatCommander struct {
	backend      string
	token        string
	threadID     string
	name         string
	role         string
	speakingUser string
	readSize     int
	debug        bool

	logger *logger.Logger
}

func newRootCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:           "supportchat",
		Short:         "Interactive chat with the support agent backend",
		Long:          chatLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.backend, "backend", "b", envOr("AGENT_BACKEND_URL", "http://localhost:8080"), "Agent backend URL")
	cmd.Flags().StringVarP(&cmder.token, "token", "t", os.Getenv("SUPPORTCHAT_TOKEN"), "Bearer token (defaults to $SUPPORTCHAT_TOKEN)")
	cmd.Flags().StringVar(&cmder.threadID, "thread", "", "Thread (session) id; a new one is generated when empty")
	cmd.Flags().StringVarP(&cmder.name, "name", "n", envOr("USER", "You"), "Display name of your messages")
	cmd.Flags().StringVar(&cmder.role, "role", string(model.RoleCustomer), "Your role: customer or csr")
	cmd.Flags().StringVar(&cmder.speakingUser, "speaking-user", "", "Name forwarded to the agent as the speaking user")
	cmd.Flags().IntVar(&cmder.readSize, "read-size", session.DefaultReadSize, "Bytes requested per stream read")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Log session diagnostics to stderr")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if c.debug {
		l, err := logger.NewDevelopment()
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		c.logger = l
	} else {
		c.logger = logger.NewNop()
	}
	defer func() { _ = c.logger.Sync() }()

	if c.threadID == "" {
		c.threadID = uuid.NewString()
	}

	role := model.Role(c.role)
	if role != model.RoleCustomer && role != model.RoleStaff {
		return fmt.Errorf("unsupported role %q", c.role)
	}

	state := conversation.New(c.threadID, nil)
	defer state.Close()

	controller := session.NewController(
		agent.NewClient(c.backend),
		session.WithLogger(c.logger),
		session.WithReadSize(c.readSize),
	)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s %s\n", keyStyle.Render("Backend:"), nameStyle.Render(c.backend))
	fmt.Fprintf(out, "  %s %s\n\n", keyStyle.Render("Thread:"), nameStyle.Render(c.threadID))
	fmt.Fprintf(out, "  %s\n\n", dimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		r := newRenderer(out)
		_, err := controller.Send(ctx, state, session.StaticCredentials(c.token), session.Request{
			Text:         input,
			Sender:       c.name,
			SenderID:     c.name,
			Role:         role,
			SpeakingUser: c.speakingUser,
		}, r.observe)
		switch {
		case errors.Is(err, session.ErrMissingCredential):
			fmt.Fprintf(out, "  %s %s\n", failMark, "no token: pass --token or set SUPPORTCHAT_TOKEN")
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(out)
			return nil
		case err != nil:
			c.logger.Debug("send failed", zap.Error(err))
		}
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(out)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
