// Package exec runs the external package manager.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned when a command line has
// no program name.
var ErrEmptyCommand = errors.New("empty command")

// Stream runs the whitespace-separated command line in
// dir with its output attached to stdout and stderr.
func Stream(
	ctx context.Context,
	dir string,
	stdout io.Writer,
	stderr io.Writer,
	line string,
) error {
	const errCtx = "running command"

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("%s: %w", errCtx, ErrEmptyCommand)
	}

	slog.Info(
		"running",
		"cmd", line,
		"dir", dir,
	)

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, line, err)
	}

	return nil
}
