package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/lockspec"
)

func newRmCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [dir]",
		Short: "Remove the lockspec files and history of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			ls := &lockspec.LockSpec{Path: dir}

			if err := ls.RemoveFiles(); err != nil {
				return fmt.Errorf("removing lockspec: %w", err)
			}

			_, err := fmt.Fprintf(
				cmd.OutOrStdout(), "Removed lockspec in %s\n", dir,
			)

			return err
		},
	}
}
