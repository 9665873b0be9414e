package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd(a *app) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage the credentials of the backend",
	}

	auth.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authenticate with the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const errCtx = "logging in"

			be, err := a.backend()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			ctx, cancel := a.loginContext(cmd.Context())
			defer cancel()

			if err := be.Login(ctx); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			_, err = fmt.Fprintf(
				cmd.OutOrStdout(),
				"Logged in, token cached at %s\n",
				a.cache.Path(),
			)

			return err
		},
	})

	auth.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Forget the cached token",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := a.cache.Clear(); err != nil {
				return fmt.Errorf("logging out: %w", err)
			}

			return nil
		},
	})

	return auth
}
