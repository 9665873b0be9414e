package lockspec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// File and directory names owned by a LockSpec.
const (
	SpecFileName = "pixi.toml"
	LockFileName = "pixi.lock"
	GitDirName   = ".araki-git"
)

// Keys of the metadata table injected into the spec
// file.
const (
	MetadataKey = "araki"
	NameKey     = "lockspec_name"
)

var (
	// ErrNotFound is returned when neither file of the
	// pair exists.
	ErrNotFound = errors.New("no lockspec files found")
	// ErrPartial is returned when only one file of the
	// pair exists.
	ErrPartial = errors.New(
		"incomplete lockspec: both pixi.toml and pixi.lock are required",
	)
	// ErrNoLockVersion is returned when the lock file
	// has no integer version field.
	ErrNoLockVersion = errors.New("lock file has no version")
)

// LockSpec is a directory holding a spec file and a
// lock file tracked as one unit.
type LockSpec struct {
	// Path is the directory containing the pair.
	Path string
}

// FromPath validates that path holds both files and
// returns the LockSpec.
func FromPath(path string) (*LockSpec, error) {
	const errCtx = "loading lockspec"

	ls := &LockSpec{Path: path}

	spec := exists(ls.SpecFile())
	lock := exists(ls.LockFile())

	switch {
	case spec && lock:
		return ls, nil
	case !spec && !lock:
		return nil, fmt.Errorf(
			"%s: %w in %s", errCtx, ErrNotFound, path,
		)
	case !spec:
		return nil, fmt.Errorf(
			"%s: %w: missing %s in %s",
			errCtx, ErrPartial, SpecFileName, path,
		)
	default:
		return nil, fmt.Errorf(
			"%s: %w: missing %s in %s",
			errCtx, ErrPartial, LockFileName, path,
		)
	}
}

// SpecFile returns the path of pixi.toml.
func (l *LockSpec) SpecFile() string {
	return filepath.Join(l.Path, SpecFileName)
}

// LockFile returns the path of pixi.lock.
func (l *LockSpec) LockFile() string {
	return filepath.Join(l.Path, LockFileName)
}

// GitDir returns the path of the history directory.
func (l *LockSpec) GitDir() string {
	return filepath.Join(l.Path, GitDirName)
}

// FilesExist reports whether both files are present.
func (l *LockSpec) FilesExist() bool {
	return exists(l.SpecFile()) && exists(l.LockFile())
}

func (l *LockSpec) String() string {
	return "lockspec: " + l.Path
}

// EnsureMetadata adds an [araki] table with
// lockspec_name = name to the spec file. An existing
// [araki] table is left as is and the file is not
// rewritten.
func (l *LockSpec) EnsureMetadata(name string) error {
	const errCtx = "ensuring araki metadata"

	doc, err := l.readSpec()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, ok := doc[MetadataKey]; ok {
		return nil
	}

	doc[MetadataKey] = map[string]any{NameKey: name}

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf(
			"%s: encode %s: %w",
			errCtx, l.SpecFile(), err,
		)
	}

	//nolint:gosec // spec file stays world readable
	if err := os.WriteFile(
		l.SpecFile(), out, 0o644,
	); err != nil {
		return fmt.Errorf(
			"%s: write %s: %w",
			errCtx, l.SpecFile(), err,
		)
	}

	return nil
}

// Name returns the lockspec_name recorded in the spec
// file, falling back to the directory name when no
// metadata has been injected yet.
func (l *LockSpec) Name() (string, error) {
	const errCtx = "reading lockspec name"

	doc, err := l.readSpec()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if meta, ok := doc[MetadataKey].(map[string]any); ok {
		if name, ok := meta[NameKey].(string); ok &&
			name != "" {
			return name, nil
		}
	}

	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return filepath.Base(abs), nil
}

// LockVersion returns the version field of the lock
// file.
func (l *LockSpec) LockVersion() (int, error) {
	const errCtx = "reading lock file version"

	raw, err := os.ReadFile(l.LockFile())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	var head struct {
		Version *int `yaml:"version"`
	}

	if err := yaml.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf(
			"%s: parse %s: %w",
			errCtx, l.LockFile(), err,
		)
	}

	if head.Version == nil {
		return 0, fmt.Errorf(
			"%s: %w: %s",
			errCtx, ErrNoLockVersion, l.LockFile(),
		)
	}

	return *head.Version, nil
}

// RemoveFiles deletes the spec file, the lock file
// and the history directory. Missing entries are not
// an error.
func (l *LockSpec) RemoveFiles() error {
	const errCtx = "removing lockspec files"

	for _, fn := range []string{l.SpecFile(), l.LockFile()} {
		err := os.Remove(fn)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	// RemoveAll already treats a missing path as
	// success.
	if err := os.RemoveAll(l.GitDir()); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func (l *LockSpec) readSpec() (map[string]any, error) {
	raw, err := os.ReadFile(l.SpecFile())
	if err != nil {
		return nil, fmt.Errorf(
			"read %s: %w", l.SpecFile(), err,
		)
	}

	doc := map[string]any{}

	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf(
			"parse %s as toml: %w", l.SpecFile(), err,
		)
	}

	return doc, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
