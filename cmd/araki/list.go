package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/lockspec"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"envs"},
		Short:   "List the lockspecs of the environments directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const errCtx = "listing lockspecs"

			entries, err := os.ReadDir(a.settings.EnvsDir)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			tw := tabwriter.NewWriter(
				cmd.OutOrStdout(), 0, 4, 2, ' ', 0,
			)

			for _, e := range entries {
				if !e.IsDir() {
					continue
				}

				ls, err := lockspec.FromPath(
					filepath.Join(a.settings.EnvsDir, e.Name()),
				)
				if err != nil {
					continue
				}

				name, err := ls.Name()
				if err != nil {
					return fmt.Errorf("%s: %w", errCtx, err)
				}

				version := "-"
				if v, err := ls.LockVersion(); err == nil {
					version = fmt.Sprint(v)
				}

				fmt.Fprintf( //nolint:errcheck
					tw, "%s\t%s\t%s\n", name, version, ls.Path,
				)
			}

			return tw.Flush()
		},
	}
}
