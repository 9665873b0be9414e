package lockspec_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/araki/lockspec"
)

const specContent = `[workspace]
name = "demo"
channels = ["conda-forge"]
platforms = ["linux-64"]

[dependencies]
python = ">=3.12"
`

const lockContent = `version: 6
environments:
  default:
    channels:
    - url: https://conda.anaconda.org/conda-forge/
packages: []
`

// writeFile creates name inside dir with content.
func writeFile(
	tb testing.TB,
	dir string,
	name string,
	content string,
) string {
	tb.Helper()

	pa := filepath.Join(dir, name)
	require.NoError(
		tb,
		os.WriteFile(pa, []byte(content), 0o600),
	)

	return pa
}

// newLockSpecDir returns a directory holding both
// files of a lockspec.
func newLockSpecDir(tb testing.TB) string {
	tb.Helper()

	dir := tb.TempDir()
	writeFile(tb, dir, lockspec.SpecFileName, specContent)
	writeFile(tb, dir, lockspec.LockFileName, lockContent)

	return dir
}

func TestFromPath_valid(t *testing.T) {
	t.Parallel()

	dir := newLockSpecDir(t)

	ls, err := lockspec.FromPath(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, ls.Path)
	assert.True(t, ls.FilesExist())
	assert.Equal(
		t,
		filepath.Join(dir, "pixi.toml"),
		ls.SpecFile(),
	)
	assert.Equal(
		t,
		filepath.Join(dir, "pixi.lock"),
		ls.LockFile(),
	)
	assert.Equal(t, "lockspec: "+dir, ls.String())
}

func TestFromPath_empty_dir(t *testing.T) {
	t.Parallel()

	ls, err := lockspec.FromPath(t.TempDir())

	assert.Nil(t, ls)
	assert.ErrorIs(t, err, lockspec.ErrNotFound)
}

func TestFromPath_partial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		present string
		missing string
	}{
		{
			name:    "only spec",
			present: lockspec.SpecFileName,
			missing: lockspec.LockFileName,
		},
		{
			name:    "only lock",
			present: lockspec.LockFileName,
			missing: lockspec.SpecFileName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, dir, tt.present, "version: 6\n")

			ls, err := lockspec.FromPath(dir)

			assert.Nil(t, ls)
			require.ErrorIs(t, err, lockspec.ErrPartial)
			assert.ErrorContains(t, err, tt.missing)
		})
	}
}

func TestFilesExist_flips_when_file_deleted(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		lockspec.SpecFileName,
		lockspec.LockFileName,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := newLockSpecDir(t)
			ls := &lockspec.LockSpec{Path: dir}
			require.True(t, ls.FilesExist())

			require.NoError(
				t, os.Remove(filepath.Join(dir, name)),
			)

			assert.False(t, ls.FilesExist())
		})
	}
}

func TestEnsureMetadata_adds_table(t *testing.T) {
	t.Parallel()

	dir := newLockSpecDir(t)
	ls := &lockspec.LockSpec{Path: dir}

	require.NoError(t, ls.EnsureMetadata("demo-env"))

	name, err := ls.Name()
	require.NoError(t, err)
	assert.Equal(t, "demo-env", name)

	raw, err := os.ReadFile(ls.SpecFile())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[araki]")
	assert.Contains(t, string(raw), "lockspec_name")
	assert.Contains(t, string(raw), "demo-env")
	assert.Contains(t, string(raw), "python")
}

func TestEnsureMetadata_idempotent(t *testing.T) {
	t.Parallel()

	dir := newLockSpecDir(t)
	ls := &lockspec.LockSpec{Path: dir}

	require.NoError(t, ls.EnsureMetadata("demo-env"))

	first, err := os.ReadFile(ls.SpecFile())
	require.NoError(t, err)

	require.NoError(t, ls.EnsureMetadata("demo-env"))

	second, err := os.ReadFile(ls.SpecFile())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsureMetadata_keeps_existing_table(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	original := specContent +
		"\n[araki]\nlockspec_name = \"original\"\n"
	writeFile(t, dir, lockspec.SpecFileName, original)
	writeFile(t, dir, lockspec.LockFileName, lockContent)

	ls := &lockspec.LockSpec{Path: dir}

	require.NoError(t, ls.EnsureMetadata("other"))

	raw, err := os.ReadFile(ls.SpecFile())
	require.NoError(t, err)
	assert.Equal(t, original, string(raw))

	name, err := ls.Name()
	require.NoError(t, err)
	assert.Equal(t, "original", name)
}

func TestEnsureMetadata_invalid_toml(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, lockspec.SpecFileName, "[broken\n")

	ls := &lockspec.LockSpec{Path: dir}

	err := ls.EnsureMetadata("x")

	assert.ErrorContains(t, err, "as toml")
}

func TestName_falls_back_to_directory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "my-env")
	require.NoError(t, os.Mkdir(dir, 0o750))
	writeFile(t, dir, lockspec.SpecFileName, specContent)

	ls := &lockspec.LockSpec{Path: dir}

	name, err := ls.Name()

	require.NoError(t, err)
	assert.Equal(t, "my-env", name)
}

func TestLockVersion(t *testing.T) {
	t.Parallel()

	ls := &lockspec.LockSpec{Path: newLockSpecDir(t)}

	v, err := ls.LockVersion()

	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestLockVersion_missing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, lockspec.LockFileName, "packages: []\n")

	ls := &lockspec.LockSpec{Path: dir}

	_, err := ls.LockVersion()

	assert.ErrorIs(t, err, lockspec.ErrNoLockVersion)
}

func TestRemoveFiles(t *testing.T) {
	t.Parallel()

	dir := newLockSpecDir(t)
	ls := &lockspec.LockSpec{Path: dir}

	require.NoError(t, os.MkdirAll(
		filepath.Join(ls.GitDir(), "objects"), 0o750,
	))
	writeFile(t, dir, "README.md", "keep me\n")

	require.NoError(t, ls.RemoveFiles())

	assert.False(t, ls.FilesExist())
	assert.NoDirExists(t, ls.GitDir())
	assert.FileExists(t, filepath.Join(dir, "README.md"))
}

func TestRemoveFiles_missing_is_noop(t *testing.T) {
	t.Parallel()

	ls := &lockspec.LockSpec{Path: t.TempDir()}

	assert.NoError(t, ls.RemoveFiles())
	assert.NoError(t, ls.RemoveFiles())
}
