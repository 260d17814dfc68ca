// Package walker discovers categories and source files in a corpus tree.
//
// A corpus root holds one directory per category; every file below a
// category directory whose name ends in the configured extension is a
// source unit labelled with that category.
package walker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/patternvec/pkg/types"
)

// ListCategories returns the names of the immediate subdirectories of root in
// directory listing order. Plain files directly under root are ignored.
func ListCategories(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	var categories []string
	for _, e := range entries {
		if isDir(root, e) {
			categories = append(categories, e.Name())
		}
	}
	return categories, nil
}

// FindFiles returns every regular file below root, at any depth, whose name
// ends in ext
func FindFiles(root, ext string) ([]string, error) {
	return New().FindFiles(root, ext)
}

// Walker finds files with optional exclusions. The zero options match
// FindFiles: only the extension filters.
type Walker struct {
	ignoreFile string
	skipHidden bool
}

// Option configures a Walker
type Option func(*Walker)

// WithIgnoreFile excludes paths matched by a gitignore-style file of the given
// name found directly under the walked root
func WithIgnoreFile(name string) Option {
	return func(w *Walker) {
		w.ignoreFile = name
	}
}

// WithHidden controls whether dot-directories below the root are skipped
func WithHidden(skip bool) Option {
	return func(w *Walker) {
		w.skipHidden = skip
	}
}

// New creates a Walker
func New(opts ...Option) *Walker {
	w := &Walker{}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Skipped is a path the walk could not read
type Skipped struct {
	Path string
	Err  error
}

// ScanResult holds the files a walk matched and the entries it skipped
type ScanResult struct {
	Files   []string
	Skipped []Skipped
}

// FindFiles walks root and returns matching files in lexical order.
// Unreadable entries below root are left out; use Scan to see them.
func (w *Walker) FindFiles(root, ext string) ([]string, error) {
	res, err := w.Scan(root, ext)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

// Scan walks root and returns matching files in lexical order. A symlinked
// root is followed. Only a root that cannot be read is an error; entries
// below it that fail are collected in Skipped and the walk goes on.
// Returned paths stay under root as given.
func (w *Walker) Scan(root, ext string) (*ScanResult, error) {
	matcher, err := w.loadIgnore(root)
	if err != nil {
		return nil, err
	}

	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	res := &ScanResult{}
	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if path == walkRoot {
			return err
		}

		rel, relErr := filepath.Rel(walkRoot, path)
		if relErr != nil {
			return relErr
		}
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Path: filepath.Join(root, rel), Err: err})
			return nil
		}
		slashRel := filepath.ToSlash(rel)

		if d.IsDir() {
			if w.skipHidden && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(slashRel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(slashRel) {
			return nil
		}

		res.Files = append(res.Files, filepath.Join(root, rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return res, nil
}

func (w *Walker) loadIgnore(root string) (*gitignore.GitIgnore, error) {
	if w.ignoreFile == "" {
		return nil, nil
	}

	path := filepath.Join(root, w.ignoreFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat ignore file: %w", err)
	}

	matcher, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}
	return matcher, nil
}

// ReadSourceUnit reads a file and labels it with its category
func ReadSourceUnit(path, category string) (*types.SourceUnit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	unit := types.NewSourceUnit(path, category, string(content))
	unit.Language = enry.GetLanguage(filepath.Base(path), content)
	return unit, nil
}

// isDir follows symlinks so a linked category directory still counts
func isDir(root string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, e.Name()))
	return err == nil && info.IsDir()
}
