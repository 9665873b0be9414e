package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/exec"
	"github.com/byte4ever/araki/transfer"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		dir       string
		noInstall bool
	)

	cmd := &cobra.Command{
		Use:   "checkout <tag|latest>",
		Short: "Check out a saved version of a lockspec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const errCtx = "checking out lockspec"

			repo, err := transfer.Open(dir)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			if err := repo.Checkout(args[0]); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			if noInstall {
				return nil
			}

			if err := exec.Stream(
				cmd.Context(),
				dir,
				cmd.OutOrStdout(),
				cmd.ErrOrStderr(),
				a.settings.Install.Command,
			); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(
		&dir, "dir", ".", "lockspec directory",
	)
	cmd.Flags().BoolVar(
		&noInstall, "no-install", false,
		"skip the install command after checkout",
	)

	return cmd
}
