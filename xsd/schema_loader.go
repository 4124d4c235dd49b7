package xsd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// LocationResolver maps urn: schema locations to schema files
type LocationResolver interface {
	Resolve(identifier string) (string, error)
}

// LoadError reports a schema that could not be read, parsed or linked
type LoadError struct {
	Location string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load schema %s: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader loads schema documents together with everything they include and
// import
type Loader struct {
	fs       afero.Fs
	resolver LocationResolver
	logger   log.Logger
}

// NewLoader creates a loader reading from fs. resolver handles urn:
// locations and may be nil when schemas use relative locations only.
func NewLoader(fs afero.Fs, resolver LocationResolver, logger log.Logger) *Loader {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Loader{fs: fs, resolver: resolver, logger: logger}
}

// loadState tracks the documents of one Load call
type loadState struct {
	schema *Schema
	// location plus chameleon namespace, so the same file included into two
	// namespaces is read twice
	loaded map[string]bool
}

// Load reads the schema at path and compiles it. Errors are *LoadError.
func (l *Loader) Load(path string) (*Schema, error) {
	state := &loadState{schema: newSchema(), loaded: map[string]bool{}}
	if err := l.loadDocument(state, path, false, ""); err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}
	if err := state.schema.link(); err != nil {
		return nil, &LoadError{Location: path, Err: err}
	}
	level.Debug(l.logger).Log("msg", "schema compiled", "path", path,
		"elements", len(state.schema.ElementDecls), "types", len(state.schema.TypeDefs))
	return state.schema, nil
}

func (l *Loader) loadDocument(state *loadState, path string, include bool, includerNS string) error {
	key := path
	if include {
		key += "#" + includerNS
	}
	if state.loaded[key] {
		return nil
	}
	state.loaded[key] = true

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	doc, err := xmldom.NewDecoderFromBytes(data).Decode()
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	directives, err := parseDocument(state.schema, doc, path, include, includerNS)
	if err != nil {
		return err
	}
	tns := includerNS
	if !include {
		tns = attr(doc.DocumentElement(), "targetNamespace")
	}

	for _, d := range directives {
		if d.location == "" {
			// an import without a location relies on components loaded elsewhere
			continue
		}
		location, err := l.locate(d.location, path)
		switch d.kind {
		case "include", "redefine":
			if err == nil {
				err = l.loadDocument(state, location, true, tns)
			}
			if err != nil {
				return errors.Wrapf(err, "%s %s", d.kind, d.location)
			}
		case "import":
			if err == nil {
				err = l.loadDocument(state, location, false, "")
			}
			if err != nil {
				level.Warn(l.logger).Log("msg", "skipping schema import", "schema", path,
					"namespace", d.namespace, "location", d.location, "err", err)
			}
		}
	}
	return nil
}

// locate turns a schemaLocation into a file path. urn: identifiers go
// through the resolver, relative paths are relative to the including
// document.
func (l *Loader) locate(location, base string) (string, error) {
	switch {
	case strings.HasPrefix(location, "urn:"):
		if l.resolver == nil {
			return "", errors.Errorf("no resolver for schema location %s", location)
		}
		return l.resolver.Resolve(location)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return "", errors.Errorf("remote schema location %s is not supported", location)
	case strings.HasPrefix(location, "file://"):
		return filepath.FromSlash(strings.TrimPrefix(location, "file://")), nil
	case filepath.IsAbs(location):
		return location, nil
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(location)), nil
}
