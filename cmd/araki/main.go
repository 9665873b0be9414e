// Command araki manages pixi lockspecs stored in git
// repositories on a hosting provider: it fetches them
// into the local environments directory, checks out
// tagged versions, saves new versions and publishes
// them.
package main

import (
	"context"
	"log/slog"
	"os"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	a := &app{
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	root := newRootCmd(a)

	return root.ExecuteContext(context.Background())
}
