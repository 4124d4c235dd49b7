// Package urn resolves urn: schema identifiers to schema files of a
// project.
//
// Identifiers have the form urn:<vendor>:<kind>:<rest>:
//
//	urn:magento:module:Magento_Store:etc/config.xsd
//	urn:magento:framework:Module/etc/module.xsd
//	urn:magento:framework-amqp:etc/queue.xsd
//	urn:magento:setup:Model/etc/config.xsd
//
// Modules and libraries are looked up in the configured components first and
// in the conventional project directories after that. Aliases map any other
// identifier prefix to a directory.
package urn

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
)

// Components registers component directories by name. Relative
// directories are relative to the project root.
type Components struct {
	// Modules maps module names like Magento_Store to directories
	Modules map[string]string `yaml:"modules"`
	// Libraries maps vendor/kind names like magento/framework to directories
	Libraries map[string]string `yaml:"libraries"`
	// Setup is the setup component directory
	Setup string `yaml:"setup"`
	// Aliases maps identifier prefixes to directories; the longest matching
	// prefix wins
	Aliases map[string]string `yaml:"aliases"`
}

// ResolutionError reports an identifier that does not name a schema file
type ResolutionError struct {
	Identifier string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unable to resolve schema %s: %s", e.Identifier, e.Reason)
}

type resolution struct {
	path string
	err  error
}

// Locator resolves identifiers against a project root. Results are
// memoised, so an identifier resolves to the same path for the lifetime of
// the Locator.
type Locator struct {
	fs         afero.Fs
	root       string
	components Components
	aliases    []string
	logger     log.Logger

	mu       sync.Mutex
	resolved map[string]resolution
}

// NewLocator creates a locator for the project at root, which must be an
// absolute path
func NewLocator(fs afero.Fs, root string, components Components, logger log.Logger) *Locator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	root = filepath.Clean(root)
	abs := func(dir string) string {
		if dir == "" || filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(root, dir)
	}

	c := Components{
		Modules:   map[string]string{},
		Libraries: map[string]string{},
		Setup:     abs(components.Setup),
		Aliases:   map[string]string{},
	}
	for name, dir := range components.Modules {
		c.Modules[name] = abs(dir)
	}
	for name, dir := range components.Libraries {
		c.Libraries[strings.ToLower(name)] = abs(dir)
	}
	aliases := make([]string, 0, len(components.Aliases))
	for prefix, dir := range components.Aliases {
		c.Aliases[prefix] = abs(dir)
		aliases = append(aliases, prefix)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})

	return &Locator{
		fs:         fs,
		root:       root,
		components: c,
		aliases:    aliases,
		logger:     logger,
		resolved:   map[string]resolution{},
	}
}

// Root returns the project root
func (l *Locator) Root() string {
	return l.root
}

// Resolve returns the schema file named by identifier. Failures are
// *ResolutionError.
func (l *Locator) Resolve(identifier string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.resolved[identifier]; ok {
		return r.path, r.err
	}
	path, err := l.resolve(identifier)
	l.resolved[identifier] = resolution{path: path, err: err}
	if err != nil {
		level.Debug(l.logger).Log("msg", "schema identifier not resolved", "urn", identifier, "err", err)
	} else {
		level.Debug(l.logger).Log("msg", "schema identifier resolved", "urn", identifier, "path", path)
	}
	return path, err
}

func (l *Locator) resolve(identifier string) (string, error) {
	fail := func(format string, args ...interface{}) (string, error) {
		return "", &ResolutionError{Identifier: identifier, Reason: fmt.Sprintf(format, args...)}
	}

	for _, prefix := range l.aliases {
		if strings.HasPrefix(identifier, prefix) {
			return l.file(identifier, []string{l.components.Aliases[prefix]}, strings.TrimPrefix(identifier, prefix))
		}
	}

	if !strings.HasPrefix(identifier, "urn:") {
		return fail("not a urn")
	}
	parts := strings.SplitN(strings.TrimPrefix(identifier, "urn:"), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return fail("expected urn:<vendor>:<kind>:<path>")
	}
	vendor, kind, rest := parts[0], parts[1], parts[2]

	switch {
	case kind == "module":
		component, rel, found := strings.Cut(rest, ":")
		if !found || component == "" {
			return fail("expected urn:%s:module:<Vendor_Module>:<path>", vendor)
		}
		return l.file(identifier, l.moduleDirs(vendor, component), rel)
	case kind == "framework" || strings.HasPrefix(kind, "framework-"):
		name := strings.ToLower(vendor + "/" + kind)
		var dirs []string
		if dir, ok := l.components.Libraries[name]; ok {
			dirs = append(dirs, dir)
		}
		dirs = append(dirs, filepath.Join(l.root, "vendor", strings.ToLower(vendor), kind))
		return l.file(identifier, dirs, rest)
	case kind == "setup":
		dir := l.components.Setup
		if dir == "" {
			dir = filepath.Join(l.root, "setup")
		}
		return l.file(identifier, []string{dir}, rest)
	}
	return fail("unsupported component kind %q", kind)
}

// moduleDirs lists the directories a module may live in, in lookup order
func (l *Locator) moduleDirs(vendor, component string) []string {
	var dirs []string
	if dir, ok := l.components.Modules[component]; ok {
		dirs = append(dirs, dir)
	}
	moduleVendor, module, found := strings.Cut(component, "_")
	if !found {
		return dirs
	}
	return append(dirs,
		filepath.Join(l.root, "app", "code", moduleVendor, module),
		filepath.Join(l.root, "vendor", strings.ToLower(vendor), "module-"+kebab(module)),
	)
}

// file joins rel to the first existing directory of dirs and checks the
// result is a file inside it
func (l *Locator) file(identifier string, dirs []string, rel string) (string, error) {
	fail := func(format string, args ...interface{}) (string, error) {
		return "", &ResolutionError{Identifier: identifier, Reason: fmt.Sprintf(format, args...)}
	}
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return fail("empty schema path")
	}

	dir := ""
	for _, candidate := range dirs {
		if info, err := l.fs.Stat(candidate); err == nil && info.IsDir() {
			dir = candidate
			break
		}
	}
	if dir == "" {
		return fail("component directory not found")
	}

	path := filepath.Join(dir, filepath.FromSlash(rel))
	if inside, err := filepath.Rel(dir, path); err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return fail("path %s leaves the component directory", rel)
	}
	info, err := l.fs.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fail("file %s does not exist", l.Rel(path))
	case err != nil:
		return fail("%v", err)
	case info.IsDir():
		return fail("%s is a directory", l.Rel(path))
	}
	return path, nil
}

// Rel renders path relative to the project root with forward slashes.
// Paths outside the root are returned unchanged.
func (l *Locator) Rel(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// kebab turns CatalogInventory into catalog-inventory
func kebab(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
