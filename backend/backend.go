package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/araki/remote"
)

// Pattern: Strategy -- swap hosting provider without
// changing the push and get workflows.

// ErrNotAuthenticated is returned by calls that need
// credentials when no token has been cached yet.
var ErrNotAuthenticated = errors.New(
	"please authenticate with `araki auth login` before continuing",
)

// Backend is a remote hosting provider for lockspec
// repositories.
type Backend interface {
	// RepositoryExists reports whether org/name exists.
	RepositoryExists(
		ctx context.Context,
		org string,
		name string,
	) (bool, error)

	// CreateRepository provisions a private repository
	// org/name.
	CreateRepository(
		ctx context.Context,
		org string,
		name string,
	) error

	// IdentityOf describes org/repo on this provider
	// without any network call.
	IdentityOf(org string, repo string) remote.Ref

	// Login acquires a token for the operator and
	// caches it.
	Login(ctx context.Context) error
}

// TokenStore receives the token obtained by a login.
type TokenStore interface {
	Store(token string) error
}

// EnsureRepository creates org/name unless it already
// exists. It returns true when the repository was
// created by this call.
func EnsureRepository(
	ctx context.Context,
	be Backend,
	org string,
	name string,
) (bool, error) {
	const errCtx = "ensuring remote repository"

	ok, err := be.RepositoryExists(ctx, org, name)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if ok {
		slog.Info(
			"remote repository exists",
			"org", org,
			"name", name,
		)

		return false, nil
	}

	if err := be.CreateRepository(
		ctx, org, name,
	); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"created remote repository",
		"org", org,
		"name", name,
	)

	return true, nil
}
