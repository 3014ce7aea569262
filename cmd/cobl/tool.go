package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newToolCmd() *cobra.Command {
	tool := &cobra.Command{
		Use:   "tool",
		Short: "External tool operations",
	}
	tool.AddCommand(&cobra.Command{
		Use:   "check [tools...]",
		Short: "Check whether external tools are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rootAPI.CheckTools(cmd.Context(), args)
			if err != nil {
				return err
			}
			if res.HasFailures() {
				return fmt.Errorf("%d tool(s) unavailable", len(res.Errs))
			}
			return nil
		},
	})
	return tool
}
