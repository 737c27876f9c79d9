// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/utils/clock"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/app"
)

// Version information, set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Streams are the standard streams commands read from and write to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// GlobalFlags are the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIURL     string
	LogLevel   string
	JSON       bool
	Verbose    bool
}

// BindFlags registers the flags on fs.
func (f *GlobalFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", f.ConfigPath, "config file (default ~/.kops/config.toml)")
	fs.StringVar(&f.APIURL, "api-url", f.APIURL, "KnowledgeOps backend URL, overrides api.url")
	fs.StringVar(&f.LogLevel, "log-level", f.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&f.JSON, "json", f.JSON, "print results as JSON")
	fs.BoolVarP(&f.Verbose, "verbose", "v", f.Verbose, "also write logs to stderr")
}

// App holds the state shared by the command tree.
type App struct {
	flags   GlobalFlags
	streams Streams
	in      *bufio.Reader
	rt      *Runtime
	// clock drives training pollers; nil means the real clock.
	clock clock.WithTicker
}

// NewRootCommand builds the kops command tree over streams.
func NewRootCommand(streams Streams) *cobra.Command {
	return (&App{streams: streams}).rootCommand()
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "kops",
		Short: "Terminal client for the KnowledgeOps AI assistant",
		Long: `kops talks to a KnowledgeOps backend. Without a subcommand it starts the
interactive terminal UI; the subcommands cover the same features for
scripts and quick lookups.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), app.Env{
				Config: rt.Config,
				Client: rt.Client,
				Store:  rt.Store,
				Logger: rt.Logger,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetIn(a.streams.In)
	root.SetOut(a.streams.Out)
	root.SetErr(a.streams.Err)
	a.flags.BindFlags(root.PersistentFlags())

	root.AddCommand(
		a.newLoginCommand(),
		a.newLogoutCommand(),
		a.newWhoamiCommand(),
		a.newAskCommand(),
		a.newChatCommand(),
		a.newApprovalsCommand(),
		a.newTrainCommand(),
		a.newModelsCommand(),
		a.newKnowledgeCommand(),
		a.newDepartmentsCommand(),
		a.newAnalyticsCommand(),
		a.newKeysCommand(),
		a.newTeamCommand(),
		a.newConversationsCommand(),
		a.newConfigCommand(),
	)
	return root
}

// Execute runs kops with the process arguments and exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	streams := Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	root := NewRootCommand(streams)

	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(streams.Err, ErrorStyle.Render("Error:"), Describe(err))
		os.Exit(ExitCode(err))
	}
}
