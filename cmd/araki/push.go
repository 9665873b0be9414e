package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/lockspec"
	"github.com/byte4ever/araki/transfer"
)

func newPushCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "push <tag>",
		Short: "Publish main and a saved tag to the backend",
		Long: "Create the remote repository when it does " +
			"not exist, wire it as the push remote and " +
			"push the main branch with the tag in one " +
			"atomic push.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const errCtx = "pushing lockspec"

			ctx := cmd.Context()

			ls, err := lockspec.FromPath(dir)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			name, err := ls.Name()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			repo, err := transfer.Open(dir)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			be, err := a.backend()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			org := a.settings.Org

			if _, err := backend.EnsureRepository(
				ctx, be, org, name,
			); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			ident := be.IdentityOf(org, name)

			if err := repo.EnsureRemote(
				a.settings.Push.Remote, ident.SSHURL(),
			); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			creds := transfer.NewCredentials()
			defer creds.Close() //nolint:errcheck

			if err := repo.Push(
				ctx, creds, args[0], transfer.PushOptions{
					Remote:    a.settings.Push.Remote,
					BranchRef: a.settings.Push.BranchRef,
					TagRef:    a.settings.Push.TagRef,
				},
			); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			_, err = fmt.Fprintf(
				cmd.OutOrStdout(), "Pushed %s to %s\n",
				args[0], ident.URL(),
			)

			return err
		},
	}

	cmd.Flags().StringVar(
		&dir, "dir", ".", "lockspec directory",
	)

	return cmd
}
