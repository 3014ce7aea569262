// Command cobl is Cobble's CLI: a thin cobra wrapper over the
// internal/cobble Public API. It opens the workspace through
// action.ProcessHost, whose LoadWorkspace always returns an error (it
// has no project-definition parser), so every subcommand stops at that
// error before doing any work.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jdarais/cobble/internal/action"
	"github.com/jdarais/cobble/internal/cobble"
	"github.com/jdarais/cobble/internal/config"
	"github.com/jdarais/cobble/internal/console"
)

var (
	flagWorkspaceDir string
	flagNumThreads   int
	flagOutput       string

	rootAPI *cobble.API
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cobl",
		Short: "Cobble build automation engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfgPath := filepath.Join(flagWorkspaceDir, "cobble.toml")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if flagNumThreads > 0 {
				cfg.NumThreads = flagNumThreads
			}
			if flagOutput != "" {
				cfg.Output = config.Output(flagOutput)
			}

			host := action.NewProcessHost()
			api, err := cobble.Open(ctx, flagWorkspaceDir, host, cfg)
			if err != nil {
				return fmt.Errorf("opening workspace at %s: %w", flagWorkspaceDir, err)
			}
			api.SetOutput(console.New(os.Stdout))
			rootAPI = api
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rootAPI != nil {
				return rootAPI.Close()
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagWorkspaceDir, "workspace", ".", "workspace root directory")
	root.PersistentFlags().IntVar(&flagNumThreads, "num-threads", 0, "worker concurrency (0 = cobble.toml's num_threads, or the number of CPUs if that is unset)")
	root.PersistentFlags().StringVar(&flagOutput, "output", "", "job output policy: none, on_fail, all")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newToolCmd())
	root.AddCommand(newEnvCmd())

	return root
}

// Execute runs the CLI, cancelling the shared context on SIGINT/SIGTERM
// the way the teacher's root command installs its own signal handler.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetContext(ctx)
	return root.Execute()
}
