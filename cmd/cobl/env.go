package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnvCmd() *cobra.Command {
	env := &cobra.Command{
		Use:   "env",
		Short: "Build environment operations",
	}
	env.AddCommand(&cobra.Command{
		Use:   "run [envs...] [-- args...]",
		Short: "Run build envs' setup actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, extra := splitArgsAtDash(cmd, args)
			res, err := rootAPI.DoEnvActions(cmd.Context(), names, extra)
			if err != nil {
				return err
			}
			if res.HasFailures() {
				return fmt.Errorf("%d build env(s) failed to set up", len(res.Errs))
			}
			return nil
		},
	})
	return env
}

// splitArgsAtDash separates cobra's positional args into the env
// names given before "--" and the arguments given after it, using
// cobra's own dash-position tracking rather than scanning for a
// literal "--" (which cobra already strips from args).
func splitArgsAtDash(cmd *cobra.Command, args []string) (names, extra []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}
