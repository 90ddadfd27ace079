// Package workspace implements the Workspace Port contract and the
// Journal/Preview decorators layered on top of it, adapted from the
// teacher's tools/files path-resolution and read/write/patch tools.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotExist is returned by Stat for a path that does not exist, matching
// the contract's "stat -> ... | null" by way of a typed sentinel instead
// of a bare nil.
var ErrNotExist = fs.ErrNotExist

// Stat describes a path as required by spec §4.D.
type Stat struct {
	IsFile      bool
	IsDirectory bool
	MTimeMs     int64
	Size        int64
}

// Port is the uniform file I/O surface every workspace implementation
// satisfies: readFile, writeFile, deletePath, renamePath, stat, and the
// optional listFiles.
type Port interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	DeletePath(path string) error
	RenamePath(from, to string) error
	Stat(path string) (*Stat, error)
	ListFiles(glob string) ([]string, error)
}

// Local is a Port backed by a directory on the local filesystem. Paths
// are resolved relative to Root and rejected if they would escape it,
// adapting the teacher's files.Resolver escape check.
type Local struct {
	Root string
}

// NewLocal creates a Local port rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

// Resolve returns an absolute, workspace-contained path for the given
// workspace-relative (or absolute) input path.
func (l *Local) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(l.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

// ReadFile reads the full contents of path.
func (l *Local) ReadFile(path string) ([]byte, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// WriteFile writes data to path, creating missing parent directories.
func (l *Local) WriteFile(path string, data []byte) error {
	resolved, err := l.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	return os.WriteFile(resolved, data, 0o644)
}

// DeletePath recursively removes path. Deleting an absent path is a no-op.
func (l *Local) DeletePath(path string) error {
	resolved, err := l.Resolve(path)
	if err != nil {
		return err
	}
	return os.RemoveAll(resolved)
}

// RenamePath moves from to to, creating to's parent directories.
func (l *Local) RenamePath(from, to string) error {
	fromResolved, err := l.Resolve(from)
	if err != nil {
		return err
	}
	toResolved, err := l.Resolve(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(toResolved), 0o755); err != nil {
		return fmt.Errorf("create destination parent directories: %w", err)
	}
	return os.Rename(fromResolved, toResolved)
}

// Stat returns file metadata, or (nil, nil) if path does not exist.
func (l *Local) Stat(path string) (*Stat, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &Stat{
		IsFile:      !info.IsDir(),
		IsDirectory: info.IsDir(),
		MTimeMs:     info.ModTime().UnixMilli(),
		Size:        info.Size(),
	}, nil
}

// ListFiles returns workspace-relative paths of every regular file under
// Root matching glob (doublestar syntax; "**" recurses). An empty glob
// matches every file.
func (l *Local) ListFiles(glob string) ([]string, error) {
	rootAbs, err := filepath.Abs(l.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	pattern := glob
	if pattern == "" {
		pattern = "**"
	}
	var out []string
	err = filepath.WalkDir(rootAbs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootAbs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}
