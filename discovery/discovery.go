// Package discovery expands path arguments into the XML files to validate.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// DefaultExclusions are basenames of XML files that never declare a schema
var DefaultExclusions = []string{".phpcs.xml", "phpcs.xml", "phpunit.xml"}

// File is one discovered document
type File struct {
	// Path opens the file
	Path string
	// Name is the display name, relative to the project root
	Name string
}

// Target is the expansion of one path argument
type Target struct {
	Path string
	// Excluded is set for a file argument on the exclusion list
	Excluded bool
	Files    []File
}

// Finder discovers files below a project root
type Finder struct {
	fs         afero.Fs
	root       string
	exclusions map[string]bool
	logger     log.Logger
}

// NewFinder creates a finder. extra basenames are excluded on top of
// DefaultExclusions.
func NewFinder(fs afero.Fs, root string, extra []string, logger log.Logger) *Finder {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	exclusions := map[string]bool{}
	for _, name := range append(append([]string{}, DefaultExclusions...), extra...) {
		exclusions[name] = true
	}
	return &Finder{fs: fs, root: filepath.Clean(root), exclusions: exclusions, logger: logger}
}

// Excluded reports whether basename is on the exclusion list
func (f *Finder) Excluded(basename string) bool {
	return f.exclusions[basename]
}

// Exclusions returns the exclusion list in lexical order
func (f *Finder) Exclusions() []string {
	names := make([]string, 0, len(f.exclusions))
	for name := range f.exclusions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Find expands path. A directory yields every *.xml file below it in
// lexical order, skipping excluded names and dot files. Anything else,
// including a path that does not exist, is taken as a single file so that
// reading it reports the problem.
func (f *Finder) Find(path string) (Target, error) {
	target := Target{Path: path}
	info, err := f.fs.Stat(path)
	if err != nil || !info.IsDir() {
		if f.Excluded(filepath.Base(path)) {
			target.Excluded = true
			return target, nil
		}
		target.Files = []File{{Path: path, Name: f.Name(path)}}
		return target, nil
	}

	err = afero.Walk(f.fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if p != path && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".xml" || f.Excluded(name) {
			return nil
		}
		target.Files = append(target.Files, File{Path: p, Name: f.Name(p)})
		return nil
	})
	if err != nil {
		return target, errors.Wrapf(err, "scan %s", path)
	}
	level.Debug(f.logger).Log("msg", "directory scanned", "path", path, "files", len(target.Files))
	return target, nil
}

// Read returns the content of a discovered file
func (f *Finder) Read(file File) ([]byte, error) {
	return afero.ReadFile(f.fs, file.Path)
}

// Name renders an absolute path relative to the project root with forward
// slashes. Relative paths and paths outside the root keep their cleaned
// form.
func (f *Finder) Name(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}
