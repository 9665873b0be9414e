package transfer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
)

const stagePrefix = "araki-"

// ErrTargetExists is returned when a staged entry
// would overwrite an entry of the target directory.
var ErrTargetExists = errors.New("target entry already exists")

// stageDir returns a fresh staging path under base.
// Nothing is created on disk.
func stageDir(base string) string {
	if base == "" {
		base = os.TempDir()
	}

	return filepath.Join(base, stagePrefix+uuid.NewString())
}

// removeStage deletes a staging directory. Failures
// are logged only.
func removeStage(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn(
			"cannot remove staging directory",
			"dir", dir,
			"error", err,
		)
	}
}

type undoStep struct {
	desc string
	undo func() error
}

// undoLog records reversible side effects in order.
type undoLog struct {
	steps []undoStep
}

func (l *undoLog) record(desc string, undo func() error) {
	l.steps = append(l.steps, undoStep{desc: desc, undo: undo})
}

// rollback runs every recorded undo in reverse order.
// Entries already gone are not an error.
func (l *undoLog) rollback() error {
	var errs []error

	for i := len(l.steps) - 1; i >= 0; i-- {
		step := l.steps[i]

		err := step.undo()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(
				errs, fmt.Errorf("undo %s: %w", step.desc, err),
			)
		}
	}

	l.steps = nil

	return errors.Join(errs...)
}

// commitToTarget moves the staged tree into target.
func commitToTarget(stage, target string) error {
	const errCtx = "committing staged tree"

	log := &undoLog{}

	_, err := os.Lstat(target)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		parent := filepath.Dir(target)
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf(
				"%s: create parent: %w", errCtx, err,
			)
		}

		err := os.Rename(stage, target)
		if err == nil {
			return nil
		}

		if !errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("%s: rename: %w", errCtx, err)
		}

		slog.Debug(
			"staging area on another filesystem, copying",
			"stage", stage,
			"target", target,
		)

		if err := os.Mkdir(target, 0o755); err != nil {
			return fmt.Errorf(
				"%s: create target: %w", errCtx, err,
			)
		}

		log.record("create "+target, func() error {
			return os.Remove(target)
		})
	case err != nil:
		return fmt.Errorf("%s: stat target: %w", errCtx, err)
	}

	if err := commitByCopy(
		osfs.New(stage), osfs.New(target), log,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// commitByCopy copies every top-level entry of src into
// dst. On failure the undo log is rolled back, which
// leaves dst as it was before the call.
func commitByCopy(src, dst billy.Filesystem, log *undoLog) error {
	if err := copyTree(src, dst, log); err != nil {
		if rbErr := log.rollback(); rbErr != nil {
			return errors.Join(
				err, fmt.Errorf("rollback: %w", rbErr),
			)
		}

		return err
	}

	return nil
}

func copyTree(src, dst billy.Filesystem, log *undoLog) error {
	entries, err := src.ReadDir(".")
	if err != nil {
		return fmt.Errorf("reading staged tree: %w", err)
	}

	for _, e := range entries {
		_, err := dst.Lstat(e.Name())

		switch {
		case err == nil:
			return fmt.Errorf(
				"%w: %s", ErrTargetExists,
				dst.Join(dst.Root(), e.Name()),
			)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("stat %s: %w", e.Name(), err)
		}
	}

	for _, e := range entries {
		name := e.Name()

		log.record("copy "+name, func() error {
			return util.RemoveAll(dst, name)
		})

		if err := copyEntry(src, dst, name, e); err != nil {
			return err
		}
	}

	return nil
}

func copyEntry(
	src billy.Filesystem,
	dst billy.Filesystem,
	path string,
	fi os.FileInfo,
) error {
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		link, err := src.Readlink(path)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", path, err)
		}

		if err := dst.Symlink(link, path); err != nil {
			return fmt.Errorf("symlink %s: %w", path, err)
		}

		return nil
	case fi.IsDir():
		if err := dst.MkdirAll(
			path, fi.Mode().Perm()|0o700,
		); err != nil {
			return fmt.Errorf("mkdir %s: %w", path, err)
		}

		children, err := src.ReadDir(path)
		if err != nil {
			return fmt.Errorf("readdir %s: %w", path, err)
		}

		for _, c := range children {
			if err := copyEntry(
				src, dst, src.Join(path, c.Name()), c,
			); err != nil {
				return err
			}
		}

		return nil
	default:
		return copyFile(src, dst, path, fi.Mode().Perm())
	}
}

func copyFile(
	src billy.Filesystem,
	dst billy.Filesystem,
	path string,
	perm os.FileMode,
) error {
	in, err := src.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	defer in.Close() //nolint:errcheck

	out, err := dst.OpenFile(
		path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm,
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", path, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
