package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := rootAPI.List()
			sort.Strings(names)
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
