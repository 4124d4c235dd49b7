// Package config holds the settings of the xml:validate command.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/agentflare-ai/go-xmlvalidate/urn"
	"github.com/agentflare-ai/go-xmlvalidate/xsd"
)

// DefaultFile is the configuration file looked up in the working directory
const DefaultFile = ".xmlvalidate.yaml"

// Config is the command configuration
type Config struct {
	// ProjectRoot anchors display paths and schema lookups. A relative root
	// is relative to the directory of the configuration file.
	ProjectRoot string `yaml:"project_root"`
	// RequireSchema makes documents without a schema declaration invalid
	RequireSchema bool `yaml:"require_schema"`
	// MaxFileSize is a human readable size such as "10 MiB"
	MaxFileSize string `yaml:"max_file_size"`
	// Concurrency is the number of files validated in parallel
	Concurrency int `yaml:"concurrency"`
	// Exclude lists basenames skipped on top of the built-in exclusions
	Exclude []string `yaml:"exclude"`
	// SchemaCacheSize bounds the number of compiled schemas kept
	SchemaCacheSize int            `yaml:"schema_cache_size"`
	Components      urn.Components `yaml:"components"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		MaxFileSize:     "10 MiB",
		Concurrency:     1,
		SchemaCacheSize: xsd.DefaultCacheSize,
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decode configuration")
	}
	return cfg, nil
}

// Load reads the file at path. A missing file yields the defaults unless
// required is set. A relative project root is resolved against the
// directory of the file.
func Load(fs afero.Fs, path string, required bool) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) && !required {
		return Default(), nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "read configuration %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	if cfg.ProjectRoot != "" && !filepath.IsAbs(cfg.ProjectRoot) {
		cfg.ProjectRoot = filepath.Join(filepath.Dir(path), cfg.ProjectRoot)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs error
	if c.Concurrency < 1 {
		errs = multierr.Append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.SchemaCacheSize < 1 {
		errs = multierr.Append(errs, fmt.Errorf("schema_cache_size must be at least 1, got %d", c.SchemaCacheSize))
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, name := range c.Exclude {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errs = multierr.Append(errs, fmt.Errorf("exclude entry %q must be a file name", name))
		}
	}
	for prefix := range c.Components.Aliases {
		if !strings.HasPrefix(prefix, "urn:") {
			errs = multierr.Append(errs, fmt.Errorf("alias %q must start with urn:", prefix))
		}
	}
	return errs
}

// MaxFileSizeBytes parses MaxFileSize. Zero disables the limit.
func (c Config) MaxFileSizeBytes() (int64, error) {
	if c.MaxFileSize == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, errors.Wrapf(err, "max_file_size %q", c.MaxFileSize)
	}
	return int64(size), nil
}
