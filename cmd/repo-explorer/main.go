package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/cmd/repo-explorer/apiserver"
	"github.com/openkcm/repo-explorer/cmd/repo-explorer/housekeeper"
	"github.com/openkcm/repo-explorer/cmd/repo-explorer/migrate"
)

// BuildInfo will be set by the build system
var BuildInfo = "{}"

const defaultGracefulShutdown = time.Second

type app struct {
	buildInfo        string
	gracefulShutdown time.Duration
	versionOnly      bool
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.versionOnly = true

			value, err := utils.ExtractFromComplexValue(a.buildInfo)
			if err != nil {
				return fmt.Errorf("reading build info: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "repo-explorer",
		Short:        "Repository Explorer",
		Long:         "GitHub repository explorer backend, signing users in with GitHub and proxying the REST API.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().DurationVar(&a.gracefulShutdown, "graceful-shutdown", defaultGracefulShutdown,
		"time to wait after the command returned, so in-flight telemetry can be flushed")

	cmd.AddCommand(
		a.versionCmd(),
		apiserver.Cmd(a.buildInfo),
		housekeeper.Cmd(a.buildInfo),
		migrate.Cmd(a.buildInfo),
	)

	return cmd
}

func (a *app) execute(ctx context.Context, args []string) error {
	cmd := a.rootCmd()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "failed to start the application", "error", err)
		return err
	}

	if !a.versionOnly && a.gracefulShutdown > 0 {
		_, _ = fmt.Fprintf(os.Stderr, "Graceful shutdown in %s\n", a.gracefulShutdown)
		time.Sleep(a.gracefulShutdown)
	}

	return nil
}

func main() {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{buildInfo: BuildInfo}
	err := a.execute(ctx, os.Args[1:])
	cancelOnSignal()

	if err != nil {
		os.Exit(1)
	}
}
