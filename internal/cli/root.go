// Package cli holds the voicectl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/voicectl/internal/app"
	"github.com/MrSnakeDoc/voicectl/internal/client"
	"github.com/MrSnakeDoc/voicectl/internal/config"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
	"github.com/MrSnakeDoc/voicectl/internal/version"
)

const defaultAddr = "http://127.0.0.1:8000"

type options struct {
	addr    string
	timeout time.Duration
}

// NewRootCommand builds the voicectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "voicectl",
		Short:         "Supervisor for local voice model services",
		Long:          "voicectl starts, stops and monitors the whisper and tts services and exposes them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr := os.Getenv("VOICECTL_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "daemon address (env VOICECTL_ADDR)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout for client commands")

	root.AddCommand(
		newServeCommand(),
		newVersionCommand(),
		newLifecycleCommand(opts, "start", "Start a service", (*client.Client).Start),
		newLifecycleCommand(opts, "stop", "Stop a service, killing it after the grace period", (*client.Client).Stop),
		newLifecycleCommand(opts, "restart", "Stop then start a service", (*client.Client).Restart),
		newLifecycleCommand(opts, "status", "Show a service's status", (*client.Client).Status),
		newLogsCommand(opts),
		newServicesCommand(opts),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon (configured via VOICECTL_* env vars)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(config.Load())
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

type lifecycleCall func(c *client.Client, ctx context.Context, name string) (supervisor.StatusSnapshot, error)

func newLifecycleCommand(opts *options, use, short string, call lifecycleCall) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <service>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := call(opts.client(), cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newLogsCommand(opts *options) *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Show the last output lines of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			out := cmd.OutOrStdout()
			if follow {
				return c.Follow(cmd.Context(), args[0], lines, func(line string) {
					_, _ = fmt.Fprintln(out, line)
				})
			}
			snap, err := c.Logs(cmd.Context(), args[0], lines)
			if err != nil {
				return err
			}
			return printJSON(out, snap)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines (1-500)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new lines until interrupted")
	return cmd
}

func newServicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Show status, health and GPU usage of every service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := opts.client().Overview(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func (o *options) client() *client.Client {
	return client.New(o.addr, o.timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
