package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"github.com/byte4ever/araki/lockspec"
)

// CloneOptions tunes Clone.
type CloneOptions struct {
	// Credentials answers the remote's credential
	// requests. A fresh agent-backed value is used
	// when nil.
	Credentials *Credentials
	// TempDir holds the staging directory. Defaults
	// to os.TempDir().
	TempDir string
}

// Clone clones url into target through a staging
// directory. On any failure target is left as it was.
func Clone(
	ctx context.Context,
	url string,
	target string,
	opts CloneOptions,
) (*Repo, error) {
	const errCtx = "cloning repository"

	creds := opts.Credentials
	if creds == nil {
		creds = NewCredentials()

		defer creds.Close() //nolint:errcheck
	}

	auth, err := creds.AuthFor(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	stage := stageDir(opts.TempDir)
	defer removeStage(stage)

	slog.Info(
		"cloning",
		"url", url,
		"target", target,
	)

	if _, err := git.PlainCloneContext(
		ctx, stage, false, &git.CloneOptions{
			URL:  url,
			Auth: auth,
		},
	); err != nil {
		return nil, fmt.Errorf(
			"%s %s: %w", errCtx, url, creds.classify(err),
		)
	}

	if err := os.Rename(
		filepath.Join(stage, git.GitDirName),
		filepath.Join(stage, lockspec.GitDirName),
	); err != nil {
		return nil, fmt.Errorf(
			"%s: rename git dir: %w", errCtx, err,
		)
	}

	if err := commitToTarget(stage, target); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	repo, err := Open(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return repo, nil
}
