package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/araki/lockspec"
)

// LatestTag selects the tip of the main branch.
const LatestTag = "latest"

// Push defaults.
const (
	DefaultRemote    = "origin"
	DefaultBranchRef = "refs/heads/main"
	DefaultTagRef    = "refs/tags/{tag}"
)

var (
	// ErrNotARepository is returned when a directory
	// has no .araki-git repository.
	ErrNotARepository = errors.New(
		"not an araki repository",
	)
	// ErrUnknownRef is returned when a tag or branch
	// does not resolve.
	ErrUnknownRef = errors.New("unknown tag or branch")
	// ErrNoRemoteURL is returned when a remote has no
	// url configured.
	ErrNoRemoteURL = errors.New("remote has no url")
)

// Repo is a working directory whose git metadata
// lives in .araki-git instead of .git.
type Repo struct {
	// Dir is the working directory.
	Dir string

	repo *git.Repository
}

// PushOptions selects what Push sends.
type PushOptions struct {
	// Remote defaults to DefaultRemote.
	Remote string
	// BranchRef defaults to DefaultBranchRef.
	BranchRef string
	// TagRef is a template over {tag}. Defaults to
	// DefaultTagRef.
	TagRef string
}

func storageFor(dir string) *filesystem.Storage {
	return filesystem.NewStorage(
		osfs.New(filepath.Join(dir, lockspec.GitDirName)),
		cache.NewObjectLRUDefault(),
	)
}

// Open opens the repository of dir.
func Open(dir string) (*Repo, error) {
	const errCtx = "opening repository"

	gitDir := filepath.Join(dir, lockspec.GitDirName)

	if _, err := os.Stat(gitDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf(
				"%s: %w: %s", errCtx, ErrNotARepository, dir,
			)
		}

		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	r, err := git.Open(storageFor(dir), osfs.New(dir))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf(
				"%s: %w: %s", errCtx, ErrNotARepository, dir,
			)
		}

		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &Repo{Dir: dir, repo: r}, nil
}

// Init creates an empty repository in dir whose
// default branch is main.
func Init(dir string) (*Repo, error) {
	const errCtx = "initializing repository"

	r, err := git.InitWithOptions(
		storageFor(dir),
		osfs.New(dir),
		git.InitOptions{DefaultBranch: plumbing.Main},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("initialized repository", "dir", dir)

	return &Repo{Dir: dir, repo: r}, nil
}

// OpenOrInit opens the repository of dir, creating it
// when absent.
func OpenOrInit(dir string) (*Repo, error) {
	r, err := Open(dir)
	if errors.Is(err, ErrNotARepository) {
		return Init(dir)
	}

	return r, err
}

func (r *Repo) worktree() (*git.Worktree, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, err
	}

	wt.Excludes = append(
		wt.Excludes,
		gitignore.ParsePattern(lockspec.GitDirName, nil),
	)

	return wt, nil
}

// refFor maps a user tag to the reference it names.
func refFor(tag string) plumbing.ReferenceName {
	if tag == LatestTag {
		return plumbing.Main
	}

	return plumbing.NewTagReferenceName(tag)
}

// Resolve returns the commit tag points at. Annotated
// tags are peeled.
func (r *Repo) Resolve(tag string) (plumbing.Hash, error) {
	const errCtx = "resolving tag"

	name := refFor(tag)

	ref, err := r.repo.Reference(name, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, fmt.Errorf(
				"%s: %w: %s", errCtx, ErrUnknownRef, tag,
			)
		}

		return plumbing.ZeroHash, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	h := ref.Hash()

	for {
		tagObj, err := r.repo.TagObject(h)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			break
		}

		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf(
				"%s: peel %s: %w", errCtx, h, err,
			)
		}

		h = tagObj.Target
	}

	commit, err := r.repo.CommitObject(h)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf(
			"%s: %s is not a commit: %w", errCtx, tag, err,
		)
	}

	return commit.Hash, nil
}

// Checkout moves the working tree to tag with a
// detached HEAD. "latest" selects the main branch.
// The working tree is untouched when tag does not
// resolve.
func (r *Repo) Checkout(tag string) error {
	const errCtx = "checking out"

	h, err := r.Resolve(tag)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	wt, err := r.worktree()
	if err != nil {
		return fmt.Errorf("%s: worktree: %w", errCtx, err)
	}

	if err := wt.Checkout(
		&git.CheckoutOptions{Hash: h},
	); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, tag, err)
	}

	slog.Info(
		"checked out",
		"tag", tag,
		"commit", h.String(),
	)

	return nil
}

// Save commits the spec and lock file of ls on main
// and tags the commit. A detached HEAD is moved back
// to main first, keeping the working tree. Saving
// unchanged content only adds the tag.
func (r *Repo) Save(
	ls *lockspec.LockSpec,
	tag string,
	message string,
) (plumbing.Hash, error) {
	const errCtx = "saving lockspec"

	if _, err := lockspec.FromPath(ls.Path); err != nil {
		return plumbing.ZeroHash, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	wt, err := r.worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf(
			"%s: worktree: %w", errCtx, err,
		)
	}

	if err := r.attachMain(wt); err != nil {
		return plumbing.ZeroHash, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	for _, f := range []string{ls.SpecFile(), ls.LockFile()} {
		rel, err := filepath.Rel(r.Dir, f)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
			return plumbing.ZeroHash, fmt.Errorf(
				"%s: add %s: %w", errCtx, rel, err,
			)
		}
	}

	h, err := wt.Commit(message, &git.CommitOptions{
		Author: r.signature(),
	})

	switch {
	case errors.Is(err, git.ErrEmptyCommit):
		head, herr := r.repo.Head()
		if herr != nil {
			return plumbing.ZeroHash, fmt.Errorf(
				"%s: head: %w", errCtx, herr,
			)
		}

		h = head.Hash()

		slog.Info("nothing to commit, tagging head")
	case err != nil:
		return plumbing.ZeroHash, fmt.Errorf(
			"%s: commit: %w", errCtx, err,
		)
	}

	if _, err := r.repo.CreateTag(tag, h, nil); err != nil {
		return plumbing.ZeroHash, fmt.Errorf(
			"%s: tag %s: %w", errCtx, tag, err,
		)
	}

	slog.Info(
		"saved lockspec",
		"tag", tag,
		"commit", h.String(),
	)

	return h, nil
}

// attachMain points a detached HEAD back at main
// without touching the index or the working tree.
func (r *Repo) attachMain(wt *git.Worktree) error {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return fmt.Errorf("reading head: %w", err)
	}

	if head.Type() == plumbing.SymbolicReference {
		return nil
	}

	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.Main,
		Keep:   true,
	}); err != nil {
		return fmt.Errorf("attaching main: %w", err)
	}

	return nil
}

func (r *Repo) signature() *object.Signature {
	sig := &object.Signature{
		Name:  "araki",
		Email: "araki@localhost",
		When:  time.Now(),
	}

	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return sig
	}

	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}

	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}

	return sig
}

// EnsureRemote adds the remote name pointing at url
// when it does not exist yet. An existing remote is
// kept as is.
func (r *Repo) EnsureRemote(name, url string) error {
	const errCtx = "ensuring remote"

	rem, err := r.repo.Remote(name)

	switch {
	case err == nil:
		slog.Debug(
			"remote already configured",
			"name", name,
			"urls", rem.Config().URLs,
		)

		return nil
	case !errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("%s %s: %w", errCtx, name, err)
	}

	if _, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{url},
	}); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, name, err)
	}

	slog.Info("added remote", "name", name, "url", url)

	return nil
}

// Push sends the branch ref and the ref of tag to the
// remote in one atomic push. Both refs must exist
// locally. An up-to-date remote is not an error.
func (r *Repo) Push(
	ctx context.Context,
	creds *Credentials,
	tag string,
	opts PushOptions,
) error {
	const errCtx = "pushing"

	opts = opts.withDefaults()

	tagRef := fasttemplate.ExecuteString(
		opts.TagRef, "{", "}", map[string]any{"tag": tag},
	)

	refs := []string{opts.BranchRef, tagRef}
	specs := make([]config.RefSpec, 0, len(refs))

	for _, ref := range refs {
		if _, err := r.repo.Reference(
			plumbing.ReferenceName(ref), true,
		); err != nil {
			return fmt.Errorf(
				"%s: %w: %s", errCtx, ErrUnknownRef, ref,
			)
		}

		specs = append(specs, config.RefSpec(ref+":"+ref))
	}

	rem, err := r.repo.Remote(opts.Remote)
	if err != nil {
		return fmt.Errorf(
			"%s: remote %s: %w", errCtx, opts.Remote, err,
		)
	}

	urls := rem.Config().URLs
	if len(urls) == 0 {
		return fmt.Errorf(
			"%s: %w: %s", errCtx, ErrNoRemoteURL, opts.Remote,
		)
	}

	if creds == nil {
		creds = NewCredentials()

		defer creds.Close() //nolint:errcheck
	}

	auth, err := creds.AuthFor(urls[0])
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: opts.Remote,
		RefSpecs:   specs,
		Auth:       auth,
		Atomic:     true,
	})

	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		slog.Info("remote already up to date", "tag", tag)

		return nil
	case err != nil:
		return fmt.Errorf(
			"%s %s: %w", errCtx, urls[0], creds.classify(err),
		)
	}

	slog.Info(
		"pushed",
		"remote", opts.Remote,
		"refs", refs,
	)

	return nil
}

func (o PushOptions) withDefaults() PushOptions {
	if o.Remote == "" {
		o.Remote = DefaultRemote
	}

	if o.BranchRef == "" {
		o.BranchRef = DefaultBranchRef
	}

	if o.TagRef == "" {
		o.TagRef = DefaultTagRef
	}

	return o
}
