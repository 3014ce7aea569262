package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [tasks...]",
		Short: "Remove tasks' recorded state and artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("clean requires at least one task name")
			}
			res, err := rootAPI.CleanTasks(cmd.Context(), args)
			if err != nil {
				return err
			}
			if res.HasFailures() {
				return fmt.Errorf("%d clean job(s) failed", len(res.Errs))
			}
			return nil
		},
	}
}
