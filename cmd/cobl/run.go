package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [tasks...]",
		Short: "Run tasks and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"project:."}
			}
			res, err := rootAPI.ExecuteTasks(cmd.Context(), args)
			if err != nil {
				return err
			}
			if res.HasFailures() {
				return fmt.Errorf("%d job(s) failed", len(res.Errs))
			}
			return nil
		},
	}
}
