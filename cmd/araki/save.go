package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/lockspec"
	"github.com/byte4ever/araki/transfer"
)

func newSaveCmd(_ *app) *cobra.Command {
	var (
		dir     string
		message string
	)

	cmd := &cobra.Command{
		Use:   "save <tag>",
		Short: "Commit the lockspec and tag the new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const errCtx = "saving lockspec"

			tag := args[0]
			if tag == transfer.LatestTag {
				return fmt.Errorf(
					"%s: %q is reserved", errCtx, tag,
				)
			}

			ls, err := lockspec.FromPath(dir)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			name, err := ls.Name()
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			if err := ls.EnsureMetadata(name); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			repo, err := transfer.OpenOrInit(dir)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			msg := message
			if msg == "" {
				msg = "araki save " + tag
			}

			h, err := repo.Save(ls, tag, msg)
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			_, err = fmt.Fprintf(
				cmd.OutOrStdout(), "Saved %s as %s (%s)\n",
				name, tag, h.String()[:7],
			)

			return err
		},
	}

	cmd.Flags().StringVar(
		&dir, "dir", ".", "lockspec directory",
	)
	cmd.Flags().StringVarP(
		&message, "message", "m", "", "commit message",
	)

	return cmd
}
