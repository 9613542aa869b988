package tier

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Tree is the read-only document store the resolver consults. Paths are
// slash separated and relative to the source root.
type Tree interface {
	// ReadFile returns the content at p. Missing files report fs.ErrNotExist.
	ReadFile(p string) ([]byte, error)
	// ReadDir returns the sorted file names inside dir. A missing directory
	// is reported as empty.
	ReadDir(dir string) ([]string, error)
	// SubDirs returns the sorted directory names inside dir.
	SubDirs(dir string) ([]string, error)
}

// FSTree serves a Tree from an afero filesystem.
type FSTree struct {
	fs   afero.Fs
	root string
}

// NewFSTree roots a tree at root inside fsys.
func NewFSTree(fsys afero.Fs, root string) *FSTree {
	return &FSTree{fs: fsys, root: filepath.Clean(root)}
}

// OSTree serves a tree from the operating system filesystem.
func OSTree(root string) *FSTree {
	return NewFSTree(afero.NewOsFs(), root)
}

// Root returns the directory the tree is rooted at.
func (t *FSTree) Root() string {
	return t.root
}

// Fs exposes the backing filesystem.
func (t *FSTree) Fs() afero.Fs {
	return t.fs
}

func (t *FSTree) abs(p string) string {
	return filepath.Join(t.root, filepath.FromSlash(path.Clean("/"+p)))
}

func (t *FSTree) ReadFile(p string) ([]byte, error) {
	data, err := afero.ReadFile(t.fs, t.abs(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("tier: read %s: %w", p, err)
	}
	return data, nil
}

func (t *FSTree) ReadDir(dir string) ([]string, error) {
	return t.list(dir, false)
}

func (t *FSTree) SubDirs(dir string) ([]string, error) {
	return t.list(dir, true)
}

func (t *FSTree) list(dir string, dirs bool) ([]string, error) {
	entries, err := afero.ReadDir(t.fs, t.abs(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tier: read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() != dirs || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
