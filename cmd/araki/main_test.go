package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/araki/backend"
	"github.com/byte4ever/araki/backend/bitbucket"
	"github.com/byte4ever/araki/backend/github"
	"github.com/byte4ever/araki/backend/gitlab"
	"github.com/byte4ever/araki/lockspec"
	"github.com/byte4ever/araki/remote"
	"github.com/byte4ever/araki/settings"
	"github.com/byte4ever/araki/transfer"
)

type stubBackend struct {
	logins  int
	store   backend.TokenStore
	missing bool
	created []string
}

func (s *stubBackend) RepositoryExists(
	context.Context, string, string,
) (bool, error) {
	return !s.missing, nil
}

func (s *stubBackend) CreateRepository(
	_ context.Context, org, name string,
) error {
	s.created = append(s.created, org+"/"+name)
	s.missing = false

	return nil
}

func (*stubBackend) IdentityOf(org, repo string) remote.Ref {
	return remote.Ref{Org: org, Repo: repo}
}

func (s *stubBackend) Login(context.Context) error {
	s.logins++

	return s.store.Store("stub-token")
}

// execute runs the CLI against a private config dir
// and returns stdout.
func execute(
	t *testing.T,
	cfgDir string,
	stub *stubBackend,
	args ...string,
) (string, error) {
	t.Helper()

	return executeApp(t, &app{}, cfgDir, stub, args...)
}

// executeApp is execute with a partially filled app,
// for tests that swap more than the backend.
func executeApp(
	t *testing.T,
	a *app,
	cfgDir string,
	stub *stubBackend,
	args ...string,
) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	a.out = out
	a.errOut = io.Discard
	a.workDir = t.TempDir()

	if stub != nil {
		a.newBackend = func(
			_ settings.Settings,
			_ string,
			store backend.TokenStore,
			_ io.Writer,
		) (backend.Backend, error) {
			stub.store = store

			return stub, nil
		}
	}

	root := newRootCmd(a)
	root.SetArgs(append([]string{"--config-dir", cfgDir}, args...))

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func configWithEnvs(t *testing.T, envs string) string {
	t.Helper()

	cfg := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg, settings.ConfigFileName),
		[]byte("envs_dir = '"+envs+"'\n"),
		0o644,
	))

	return cfg
}

func writeLockSpec(t *testing.T, dir, name string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, lockspec.SpecFileName),
		[]byte("[araki]\nlockspec_name = \""+name+"\"\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, lockspec.LockFileName),
		[]byte("version: 6\n"),
		0o644,
	))
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		set  func(*settings.Settings)
		want any
	}{
		{
			name: "github",
			set:  func(s *settings.Settings) { s.Backend = "github" },
			want: &github.Backend{},
		},
		{
			name: "gitlab",
			set:  func(s *settings.Settings) { s.Backend = "gitlab" },
			want: &gitlab.Backend{},
		},
		{
			name: "bitbucket",
			set: func(s *settings.Settings) {
				s.Backend = "bitbucket"
				s.Bitbucket.APIURL = "https://bb.example.com/rest/api/1.0"
			},
			want: &bitbucket.Backend{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := settings.Defaults(t.TempDir())
			tt.set(&s)

			be, err := newBackend(s, "", nil, io.Discard)
			require.NoError(t, err)
			assert.IsType(t, tt.want, be)
		})
	}
}

func TestNewBackend_unknown(t *testing.T) {
	t.Parallel()

	s := settings.Defaults(t.TempDir())
	s.Backend = "svn"

	_, err := newBackend(s, "", nil, io.Discard)
	assert.ErrorContains(t, err, `unknown backend "svn"`)
}

func TestAuthLogin_caches_token(t *testing.T) {
	t.Parallel()

	cfg := t.TempDir()
	stub := &stubBackend{}

	out, err := execute(t, cfg, stub, "auth", "login")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.logins)
	assert.Contains(t, out, "Logged in")

	raw, err := os.ReadFile(filepath.Join(cfg, "araki-token"))
	require.NoError(t, err)
	assert.Equal(t, "stub-token\n", string(raw))

	_, err = execute(t, cfg, stub, "auth", "logout")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg, "araki-token"))
}

func TestList(t *testing.T) {
	t.Parallel()

	envs := t.TempDir()
	writeLockSpec(t, filepath.Join(envs, "widgets"), "widgets-env")
	require.NoError(t, os.MkdirAll(filepath.Join(envs, "junk"), 0o755))

	out, err := execute(t, configWithEnvs(t, envs), nil, "list")
	require.NoError(t, err)

	assert.Contains(t, out, "widgets-env")
	assert.Contains(t, out, "6")
	assert.NotContains(t, out, "junk")
}

func TestList_missing_envs_dir(t *testing.T) {
	t.Parallel()

	envs := filepath.Join(t.TempDir(), "none")

	out, err := execute(t, configWithEnvs(t, envs), nil, "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSaveCheckoutRm(t *testing.T) {
	t.Parallel()

	cfg := t.TempDir()
	dir := t.TempDir()
	writeLockSpec(t, dir, "demo")

	_, err := execute(t, cfg, nil, "save", "v1", "--dir", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, lockspec.LockFileName),
		[]byte("version: 7\n"),
		0o644,
	))

	_, err = execute(t, cfg, nil, "save", "v2", "--dir", dir, "-m", "bump")
	require.NoError(t, err)

	_, err = execute(
		t, cfg, nil, "checkout", "v1", "--dir", dir, "--no-install",
	)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, lockspec.LockFileName))
	require.NoError(t, err)
	assert.Equal(t, "version: 6\n", string(raw))

	_, err = execute(t, cfg, nil, "save", "latest", "--dir", dir)
	assert.ErrorContains(t, err, "reserved")

	_, err = execute(t, cfg, nil, "rm", dir)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, lockspec.SpecFileName))
	assert.NoDirExists(t, filepath.Join(dir, lockspec.GitDirName))
}

func TestGet_refuses_occupied_destination(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	writeLockSpec(t, dest, "mine")

	_, err := execute(
		t, configWithEnvs(t, t.TempDir()), nil,
		"get", "acme/widgets", "--dest", dest,
	)
	assert.ErrorContains(t, err, "already exists")
}

func TestGet_invalid_ref(t *testing.T) {
	t.Parallel()

	_, err := execute(t, t.TempDir(), nil, "get", "a/b/c/d")
	assert.ErrorIs(t, err, remote.ErrInvalidRef)
}

func requireGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// bareRemote returns the path of an empty bare
// repository whose HEAD is main.
func bareRemote(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	_, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		Bare:        true,
	})
	require.NoError(t, err)

	return dir
}

// publishedLockSpec saves a lockspec named name as v1,
// pushes it to a fresh bare repository and returns the
// repository path.
func publishedLockSpec(t *testing.T, name string) string {
	t.Helper()

	dir := t.TempDir()
	writeLockSpec(t, dir, name)

	_, err := execute(t, t.TempDir(), nil, "save", "v1", "--dir", dir)
	require.NoError(t, err)

	bare := bareRemote(t)

	repo, err := transfer.Open(dir)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureRemote("origin", bare))
	require.NoError(t, repo.Push(
		context.Background(),
		transfer.NewCredentialsWith(nil),
		"v1",
		transfer.PushOptions{},
	))

	return bare
}

func TestPush_creates_repository_and_pushes(t *testing.T) {
	t.Parallel()
	requireGit(t)

	dir := t.TempDir()
	writeLockSpec(t, dir, "demo")

	cfg := t.TempDir()

	_, err := execute(t, cfg, nil, "save", "v1", "--dir", dir)
	require.NoError(t, err)

	bare := bareRemote(t)

	// An existing remote is kept, so the push stays local.
	repo, err := transfer.Open(dir)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureRemote("origin", bare))

	stub := &stubBackend{missing: true}

	out, err := execute(t, cfg, stub, "push", "v1", "--dir", dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"openteams-ai/demo"}, stub.created)
	assert.Contains(t, out, "Pushed v1")

	pushed, err := git.PlainOpen(bare)
	require.NoError(t, err)

	head, err := pushed.Reference(plumbing.Main, false)
	require.NoError(t, err)

	tag, err := pushed.Reference(
		plumbing.NewTagReferenceName("v1"), false,
	)
	require.NoError(t, err)
	assert.Equal(t, head.Hash(), tag.Hash())

	// A second push finds the repository and changes nothing.
	_, err = execute(t, cfg, stub, "push", "v1", "--dir", dir)
	require.NoError(t, err)
	assert.Len(t, stub.created, 1)
}

func TestPush_unknown_tag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLockSpec(t, dir, "demo")

	cfg := t.TempDir()

	_, err := execute(t, cfg, nil, "save", "v1", "--dir", dir)
	require.NoError(t, err)

	repo, err := transfer.Open(dir)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureRemote("origin", bareRemote(t)))

	_, err = execute(t, cfg, &stubBackend{}, "push", "v9", "--dir", dir)
	assert.ErrorIs(t, err, transfer.ErrUnknownRef)
}

func TestGet_clones_and_links(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := publishedLockSpec(t, "widgets-env")
	envs := t.TempDir()
	dest := t.TempDir()

	var asked remote.Ref

	a := &app{cloneURL: func(r remote.Ref) string {
		asked = r

		return src
	}}

	out, err := executeApp(
		t, a, configWithEnvs(t, envs), nil,
		"get", "acme/widgets", "--dest", dest,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched")
	assert.Equal(t, remote.Ref{Org: "acme", Repo: "widgets"}, asked)

	target := filepath.Join(envs, "widgets")
	assert.DirExists(t, filepath.Join(target, lockspec.GitDirName))

	for _, name := range []string{
		lockspec.SpecFileName, lockspec.LockFileName,
	} {
		want, err := os.ReadFile(filepath.Join(target, name))
		require.NoError(t, err)

		got, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}

	assert.Contains(
		t,
		readFile(t, filepath.Join(dest, lockspec.SpecFileName)),
		"widgets-env",
	)
}

func TestGet_no_link(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := publishedLockSpec(t, "widgets-env")
	envs := t.TempDir()
	dest := t.TempDir()

	a := &app{cloneURL: func(remote.Ref) string { return src }}

	_, err := executeApp(
		t, a, configWithEnvs(t, envs), nil,
		"get", "widgets", "--dest", dest, "--no-link",
	)
	require.NoError(t, err)

	assert.FileExists(
		t, filepath.Join(envs, "widgets", lockspec.LockFileName),
	)
	assert.NoFileExists(t, filepath.Join(dest, lockspec.SpecFileName))
}

func TestGet_removes_clone_that_is_not_a_lockspec(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := t.TempDir()

	g, err := git.PlainInitWithOptions(src, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(src, "README.md"), []byte("hello\n"), 0o644,
	))

	wt, err := g.Worktree()
	require.NoError(t, err)

	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("readme", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	envs := t.TempDir()
	dest := t.TempDir()

	a := &app{cloneURL: func(remote.Ref) string { return src }}

	_, err = executeApp(
		t, a, configWithEnvs(t, envs), nil,
		"get", "acme/widgets", "--dest", dest,
	)
	require.ErrorContains(t, err, "is not a lockspec")

	assert.NoDirExists(t, filepath.Join(envs, "widgets"))
	assert.NoFileExists(t, filepath.Join(dest, lockspec.SpecFileName))
}

func TestLinkPair_removes_placed_file_on_failure(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(src, lockspec.SpecFileName),
		[]byte("[project]\n"),
		0o644,
	))

	dest := t.TempDir()

	err := linkPair(&lockspec.LockSpec{Path: src}, dest)
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(dest, lockspec.SpecFileName))
	assert.NoFileExists(t, filepath.Join(dest, lockspec.LockFileName))
}

func TestLinkPair(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeLockSpec(t, src, "demo")

	dest := t.TempDir()

	require.NoError(t, linkPair(&lockspec.LockSpec{Path: src}, dest))

	assert.Equal(
		t,
		readFile(t, filepath.Join(src, lockspec.LockFileName)),
		readFile(t, filepath.Join(dest, lockspec.LockFileName)),
	)
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(b)
}
