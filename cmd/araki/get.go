package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/byte4ever/araki/lockspec"
	"github.com/byte4ever/araki/remote"
	"github.com/byte4ever/araki/transfer"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		dest   string
		noLink bool
	)

	cmd := &cobra.Command{
		Use:   "get <[[protocol://]domain/][org/]repo>",
		Short: "Fetch a lockspec into the environments directory",
		Long: "Clone the lockspec repository into " +
			"<envs_dir>/<repo> over ssh and link its " +
			"pixi.toml and pixi.lock into the destination " +
			"directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const errCtx = "getting lockspec"

			ref, err := remote.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			if !noLink {
				if err := ensureFree(dest); err != nil {
					return fmt.Errorf("%s: %w", errCtx, err)
				}
			}

			target := filepath.Join(a.settings.EnvsDir, ref.Repo)

			_, statErr := os.Stat(target)
			fresh := errors.Is(statErr, fs.ErrNotExist)

			if _, err := transfer.Clone(
				cmd.Context(), a.cloneURL(ref), target,
				transfer.CloneOptions{},
			); err != nil {
				return fmt.Errorf("%s: %w", errCtx, err)
			}

			ls, err := lockspec.FromPath(target)
			if err != nil {
				if fresh {
					if rmErr := os.RemoveAll(target); rmErr != nil {
						slog.Warn(
							"cannot remove clone",
							"dir", target,
							"error", rmErr,
						)
					}
				}

				return fmt.Errorf(
					"%s: %s is not a lockspec: %w",
					errCtx, ref, err,
				)
			}

			if !noLink {
				if err := linkPair(ls, dest); err != nil {
					return fmt.Errorf("%s: %w", errCtx, err)
				}
			}

			_, err = fmt.Fprintf(
				cmd.OutOrStdout(), "Fetched %s into %s\n",
				ref, target,
			)

			return err
		},
	}

	cmd.Flags().StringVar(
		&dest, "dest", ".",
		"directory receiving pixi.toml and pixi.lock",
	)
	cmd.Flags().BoolVar(
		&noLink, "no-link", false,
		"only clone into the environments directory",
	)

	return cmd
}

// ensureFree fails when dir already holds a spec or
// lock file.
func ensureFree(dir string) error {
	for _, name := range []string{
		lockspec.SpecFileName, lockspec.LockFileName,
	} {
		p := filepath.Join(dir, name)

		if _, err := os.Lstat(p); err == nil {
			return fmt.Errorf("%s already exists", p)
		}
	}

	return nil
}

// linkPair hard links the spec and lock file of ls
// into dir, copying when a link is not possible. On
// failure the files already placed are removed.
func linkPair(ls *lockspec.LockSpec, dir string) error {
	pairs := [][2]string{
		{ls.SpecFile(), filepath.Join(dir, lockspec.SpecFileName)},
		{ls.LockFile(), filepath.Join(dir, lockspec.LockFileName)},
	}

	placed := make([]string, 0, len(pairs))

	for _, p := range pairs {
		if err := os.Link(p[0], p[1]); err == nil {
			placed = append(placed, p[1])

			continue
		}

		if err := copyFile(p[0], p[1]); err != nil {
			for _, f := range placed {
				if rmErr := os.Remove(f); rmErr != nil {
					slog.Warn(
						"cannot remove linked file",
						"file", f,
						"error", rmErr,
					)
				}
			}

			return err
		}

		placed = append(placed, p[1])
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path from envs dir
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile( //nolint:gosec // user destination
		dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644,
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)

		return fmt.Errorf("copy %s: %w", dst, err)
	}

	return out.Close()
}
