package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes working directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator confines plaintext file access to one directory tree.
// All reads and writes go through an os.Root, so symlinks and ".." cannot
// lead outside the tree.
type PathValidator struct {
	root *os.Root
	dir  string
}

// New opens dir as the confinement root
func New(dir string) (*PathValidator, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory: %w", err)
	}

	return &PathValidator{root: root, dir: absDir}, nil
}

func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Dir returns the absolute confinement directory
func (pv *PathValidator) Dir() string {
	return pv.dir
}

// ValidateAndNormalize checks a relative path and returns it cleaned with
// forward slashes. Empty, absolute and escaping paths are rejected, as are
// names filepath.IsLocal refuses (Windows reserved names among them).
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}
	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	rel, err := filepath.Rel(pv.dir, filepath.Join(pv.dir, filepath.Clean(userPath)))
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}
	return filepath.ToSlash(rel), nil
}

// Relativize accepts a user path that may be absolute. Absolute paths
// inside the root are rewritten relative to it; anything else goes
// through ValidateAndNormalize.
func (pv *PathValidator) Relativize(userPath string) (string, error) {
	if !filepath.IsAbs(userPath) {
		return pv.ValidateAndNormalize(userPath)
	}
	rel, err := filepath.Rel(pv.dir, filepath.Clean(userPath))
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}
	return pv.ValidateAndNormalize(rel)
}

func (pv *PathValidator) platform(path string) (string, error) {
	if _, err := pv.ValidateAndNormalize(filepath.FromSlash(path)); err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return filepath.FromSlash(path), nil
}

// WriteFileInRoot writes data to a validated path under the root
func (pv *PathValidator) WriteFileInRoot(path string, data []byte, perm os.FileMode) error {
	p, err := pv.platform(path)
	if err != nil {
		return err
	}
	return pv.root.WriteFile(p, data, perm)
}

// MkdirAllInRoot creates a validated directory path under the root
func (pv *PathValidator) MkdirAllInRoot(path string, perm os.FileMode) error {
	p, err := pv.platform(path)
	if err != nil {
		return err
	}
	return pv.root.MkdirAll(p, perm)
}

// ReadFileInRoot reads a validated path under the root
func (pv *PathValidator) ReadFileInRoot(path string) ([]byte, error) {
	p, err := pv.platform(path)
	if err != nil {
		return nil, err
	}
	return pv.root.ReadFile(p)
}

// StatInRoot stats a validated path under the root
func (pv *PathValidator) StatInRoot(path string) (os.FileInfo, error) {
	p, err := pv.platform(path)
	if err != nil {
		return nil, err
	}
	return pv.root.Stat(p)
}
