package credcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the token file name inside the
// configuration directory.
const FileName = "araki-token"

const (
	fileMode fs.FileMode = 0o600
	dirMode  fs.FileMode = 0o700
)

// Cache reads and writes the cached token.
type Cache struct {
	path string
}

// New returns a Cache storing its token under dir.
func New(dir string) *Cache {
	return &Cache{path: filepath.Join(dir, FileName)}
}

// Path returns the token file location.
func (c *Cache) Path() string {
	return c.path
}

// Load returns the cached token. A missing file is
// reported as ok == false with a nil error.
func (c *Cache) Load() (token string, ok bool, err error) {
	const errCtx = "loading cached token"

	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("%s: %w", errCtx, err)
	}

	token = strings.TrimSpace(string(raw))
	if token == "" {
		return "", false, nil
	}

	return token, true, nil
}

// Store replaces the cached token. The file is
// truncated, written newline-terminated and forced to
// owner-only permissions.
func (c *Cache) Store(token string) error {
	const errCtx = "storing token"

	if err := os.MkdirAll(
		filepath.Dir(c.path), dirMode,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := os.WriteFile(
		c.path, []byte(token+"\n"), fileMode,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// WriteFile keeps the mode of a pre-existing
	// file.
	if err := os.Chmod(c.path, fileMode); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Clear removes the cached token. A missing file is
// not an error.
func (c *Cache) Clear() error {
	const errCtx = "clearing token"

	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}
